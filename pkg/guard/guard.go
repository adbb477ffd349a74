package guard

import (
	"context"
	"net/http"

	"github.com/platinummonkey/wagerline/pkg/contextkeys"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
)

// StateFunc returns the access state for a request that carries no
// gate-resolved access
type StateFunc func(r *http.Request) State

// Resolver resolves the access of a signed-in user
type Resolver interface {
	Access(ctx context.Context, userID, metadataRole string) (*rbac.Access, error)
}

// FetchState resolves access on demand through the session provider. It
// never returns Loading.
func FetchState(provider session.Provider, resolver Resolver) StateFunc {
	return func(r *http.Request) State {
		ctx := r.Context()
		s, ok := contextkeys.Session(ctx).(*session.Session)
		if !ok || s == nil {
			var err error
			s, err = provider.GetSession(ctx, r)
			if err != nil {
				return Failed(err)
			}
		}
		if s == nil {
			return Ready(nil)
		}

		access, err := resolver.Access(ctx, s.User.ID, s.User.Metadata.Role)
		if err != nil {
			return Failed(err)
		}
		return Ready(access)
	}
}

// Guard renders a fragment only when the requirement holds
type Guard struct {
	req      Requirement
	state    StateFunc
	fallback http.Handler
	loading  http.Handler
}

// Option configures a Guard
type Option func(*Guard)

// WithState sets how access is found when the gate did not resolve it
func WithState(fn StateFunc) Option {
	return func(g *Guard) { g.state = fn }
}

// WithFallback replaces the default "access denied" fragment
func WithFallback(h http.Handler) Option {
	return func(g *Guard) { g.fallback = h }
}

// WithLoading replaces the default loading fragment
func WithLoading(h http.Handler) Option {
	return func(g *Guard) { g.loading = h }
}

// WithRedirect redirects denied requests to target instead of rendering
// the fallback
func WithRedirect(target string) Option {
	return func(g *Guard) { g.req.RedirectTo = target }
}

// New creates a guard for req
func New(req Requirement, opts ...Option) *Guard {
	g := &Guard{
		req:      req,
		fallback: http.HandlerFunc(deniedFragment),
		loading:  http.HandlerFunc(loadingFragment),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the access state for r: the gate-resolved access when
// present, otherwise the configured StateFunc
func (g *Guard) State(r *http.Request) State {
	if access, ok := rbac.AccessFromContext(r.Context()); ok {
		return Ready(access)
	}
	if g.state != nil {
		return g.state(r)
	}
	return Ready(nil)
}

// Wrap returns a handler that serves next only when the requirement holds
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := g.State(r)
		switch Evaluate(state, g.req) {
		case RenderChildren:
			next.ServeHTTP(w, r)
		case RenderLoading:
			g.loading.ServeHTTP(w, r)
		case RenderRedirect:
			http.Redirect(w, r, g.req.RedirectTo, http.StatusSeeOther)
		default:
			if err := state.Err(); err != nil {
				observability.FromContext(r.Context()).WithError(err).
					Warn("Guard could not resolve access, rendering fallback")
			}
			g.fallback.ServeHTTP(w, r)
		}
	})
}

func deniedFragment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`<div class="guard-denied" role="alert">access denied</div>`))
}

func loadingFragment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(`<div class="guard-loading" aria-busy="true"></div>`))
}
