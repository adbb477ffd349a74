package gate

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/wagerline/pkg/contextkeys"
	"github.com/platinummonkey/wagerline/pkg/httputil"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
)

// UserIDHeader carries the resolved user id to the page renderer. Inbound
// values are always discarded.
const UserIDHeader = "X-User-Id"

// AccessResolver resolves the access of a signed-in user
type AccessResolver interface {
	Access(ctx context.Context, userID, metadataRole string) (*rbac.Access, error)
}

// Gate enforces the route table on every navigable request
type Gate struct {
	table    atomic.Pointer[Table]
	provider session.Provider
	resolver AccessResolver
	cookies  session.Cookies
	metrics  *observability.Metrics
}

// Option configures a Gate
type Option func(*Gate)

// WithCookies sets the cookie attributes used when writing refreshed tokens
func WithCookies(c session.Cookies) Option {
	return func(g *Gate) { g.cookies = c }
}

// WithMetrics records decisions in metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// New creates a gate
func New(table *Table, provider session.Provider, resolver AccessResolver, opts ...Option) *Gate {
	g := &Gate{provider: provider, resolver: resolver}
	g.table.Store(table)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Table returns the route table in effect
func (g *Gate) Table() *Table {
	return g.table.Load()
}

// SetTable swaps the route table atomically
func (g *Gate) SetTable(t *Table) {
	g.table.Store(t)
}

// Middleware wraps next with the gate
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(UserIDHeader)

		ctx := rbac.WithRequestMemo(r.Context())
		logger := observability.FromContext(ctx)
		table := g.Table()

		s, err := g.provider.GetSession(ctx, r)
		if err != nil {
			logger.WithError(err).Warn("Session lookup failed, treating request as unauthenticated")
			s = nil
		}
		if s != nil && s.Refreshed {
			g.cookies.Set(w, s)
		}

		d := g.decide(ctx, table, r, s)
		g.metrics.RecordGateDecision(string(d.State), string(d.Action))

		if s != nil {
			logger = logger.WithField("user_id", s.User.ID)
			httputil.AnnotateUser(ctx, s.User.ID)
		}
		g.logDecision(logger, r, d)

		if d.Action != ActionPass {
			g.deny(w, r, table, d)
			return
		}

		if s != nil {
			ctx = contextkeys.WithSession(ctx, s)
			ctx = contextkeys.WithUserID(ctx, s.User.ID)
			ctx = observability.WithLogger(ctx, logger)
			r.Header.Set(UserIDHeader, s.User.ID)
		}
		if d.Access != nil {
			ctx = rbac.WithAccess(ctx, d.Access)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) decide(ctx context.Context, table *Table, r *http.Request, s *session.Session) Decision {
	ctx, span := observability.Tracer().Start(ctx, "gate.Decide")
	defer span.End()

	var resolve Resolve
	if s != nil {
		resolve = func() (*rbac.Access, error) {
			return g.resolver.Access(ctx, s.User.ID, s.User.Metadata.Role)
		}
	}

	d := table.Decide(r.URL.Path, r.URL.RawQuery, resolve)
	span.SetAttributes(
		attribute.String("gate.state", string(d.State)),
		attribute.String("gate.action", string(d.Action)),
		attribute.String("gate.access", string(d.Rule.Access)),
	)
	if d.Err != nil && isLookupFailure(d.Err) {
		span.RecordError(d.Err)
		span.SetStatus(codes.Error, "role lookup failed")
	}
	return d
}

func (g *Gate) logDecision(logger *observability.Logger, r *http.Request, d Decision) {
	if d.Action == ActionPass {
		return
	}

	entry := logger.WithFields(map[string]interface{}{
		"path":     r.URL.Path,
		"state":    string(d.State),
		"action":   string(d.Action),
		"location": d.Location,
	})

	switch {
	case isLookupFailure(d.Err):
		entry.WithError(d.Err).Error("Role lookup failed, failing closed")
	case errors.Is(d.Err, rbac.ErrNoRoleAssigned):
		entry.Warn("Authenticated user has no role assigned")
	default:
		entry.Info("Request redirected by gate")
	}
}

// deny redirects page requests and answers API requests with a status
func (g *Gate) deny(w http.ResponseWriter, r *http.Request, table *Table, d Decision) {
	if !table.IsAPI(r.URL.Path) {
		http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
		return
	}

	switch {
	case d.Action == ActionLogin:
		httputil.WriteUnauthorized(w, "authentication required")
	case isLookupFailure(d.Err):
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	case errors.Is(d.Err, rbac.ErrNoRoleAssigned):
		httputil.WriteForbidden(w, "no role assigned")
	default:
		httputil.WriteForbidden(w, "insufficient permissions")
	}
}

// isLookupFailure separates failed checks from policy outcomes
func isLookupFailure(err error) bool {
	return err != nil && !errors.Is(err, rbac.ErrUnauthorized) && !errors.Is(err, rbac.ErrNoRoleAssigned)
}
