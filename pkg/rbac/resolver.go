package rbac

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/wagerline/pkg/contextkeys"
	"github.com/platinummonkey/wagerline/pkg/observability"
)

// RoleFetcher loads the roles assigned to a user
type RoleFetcher interface {
	FetchRoles(ctx context.Context, userID string) ([]Role, error)
}

// requestMemo deduplicates role fetches within one request
type requestMemo struct {
	group singleflight.Group
	mu    sync.Mutex
	roles map[string][]Role
}

func (m *requestMemo) get(userID string) ([]Role, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles, ok := m.roles[userID]
	return roles, ok
}

func (m *requestMemo) put(userID string, roles []Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[userID] = roles
}

// WithRequestMemo attaches a fresh role memo to ctx unless one is already
// present. The memo lives exactly as long as the request context.
func WithRequestMemo(ctx context.Context) context.Context {
	if _, ok := ctx.Value(contextkeys.RoleMemoKey).(*requestMemo); ok {
		return ctx
	}
	return context.WithValue(ctx, contextkeys.RoleMemoKey, &requestMemo{roles: make(map[string][]Role)})
}

// WithFreshMemo attaches a new role memo to ctx, replacing any inherited
// one. Long-lived streams use it so each re-resolution sees current roles.
func WithFreshMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextkeys.RoleMemoKey, &requestMemo{roles: make(map[string][]Role)})
}

func memoFromContext(ctx context.Context) *requestMemo {
	memo, _ := ctx.Value(contextkeys.RoleMemoKey).(*requestMemo)
	return memo
}

// Resolver resolves roles for a user: request memo first, then the
// optional cross-request cache, then the store
type Resolver struct {
	fetcher RoleFetcher
	cache   Cache
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache enables the cross-request cache
func WithCache(cache Cache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithMetrics records fetch latency and cache events
func WithMetrics(metrics *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// NewResolver creates a resolver backed by fetcher
func NewResolver(fetcher RoleFetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		tracer:  observability.Tracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roles returns the roles of userID. Errors from the store are returned
// unchanged and are never memoized or cached.
func (r *Resolver) Roles(ctx context.Context, userID string) ([]Role, error) {
	memo := memoFromContext(ctx)
	if memo == nil {
		return r.load(ctx, userID)
	}

	if roles, ok := memo.get(userID); ok {
		r.metrics.RecordRoleCache("memo", "hit")
		return roles, nil
	}
	r.metrics.RecordRoleCache("memo", "miss")

	v, err, _ := memo.group.Do(userID, func() (interface{}, error) {
		roles, err := r.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		memo.put(userID, roles)
		return roles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Role), nil
}

// Access resolves roles and derives the effective access of the principal
func (r *Resolver) Access(ctx context.Context, userID, metadataRole string) (*Access, error) {
	roles, err := r.Roles(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewAccess(userID, metadataRole, roles), nil
}

func (r *Resolver) load(ctx context.Context, userID string) ([]Role, error) {
	var generation uint64
	if r.cache != nil {
		generation = r.cache.Generation(ctx)
		if roles, ok := r.cache.Get(ctx, userID); ok {
			r.metrics.RecordRoleCache("lru", "hit")
			return roles, nil
		}
		r.metrics.RecordRoleCache("lru", "miss")
	}

	ctx, span := r.tracer.Start(ctx, "rbac.FetchRoles",
		trace.WithAttributes(attribute.String("enduser.id", userID)))
	defer span.End()

	start := time.Now()
	roles, err := r.fetcher.FetchRoles(ctx, userID)
	if err != nil {
		r.metrics.ObserveRoleFetch("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "role fetch failed")
		return nil, err
	}
	r.metrics.ObserveRoleFetch("success", time.Since(start))
	span.SetAttributes(attribute.Int("rbac.role_count", len(roles)))

	if r.cache != nil && !r.cache.SetIfGeneration(ctx, userID, roles, generation) {
		r.metrics.RecordRoleCache("lru", "stale_fill")
	}
	return roles, nil
}
