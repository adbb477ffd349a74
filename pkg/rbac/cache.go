package rbac

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores fetched roles across requests. Every implementation must be
// paired with an Invalidator so role mutations are never served stale past
// the invalidation signal.
//
// Generation changes on every Invalidate or Purge. A fill that read the
// store before an invalidation passes the generation it saw to
// SetIfGeneration, which drops the stale roles.
type Cache interface {
	Get(ctx context.Context, userID string) ([]Role, bool)
	Set(ctx context.Context, userID string, roles []Role)
	Generation(ctx context.Context) uint64
	SetIfGeneration(ctx context.Context, userID string, roles []Role, generation uint64) bool
	Invalidate(ctx context.Context, userID string)
	Purge(ctx context.Context)
}

// LRUCache is an in-memory, size bounded role cache with a TTL
type LRUCache struct {
	mu         sync.Mutex
	generation uint64
	cache      *lru.LRU[string, []Role]
}

// NewLRUCache creates a cache holding at most size users for ttl
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUCache{
		cache: lru.NewLRU[string, []Role](size, nil, ttl),
	}
}

// Get returns a copy of the cached roles
func (c *LRUCache) Get(ctx context.Context, userID string) ([]Role, bool) {
	roles, ok := c.cache.Get(userID)
	if !ok {
		return nil, false
	}
	return cloneRoles(roles), true
}

func (c *LRUCache) Set(ctx context.Context, userID string, roles []Role) {
	c.cache.Add(userID, cloneRoles(roles))
}

func (c *LRUCache) Generation(ctx context.Context) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfGeneration stores roles only when no invalidation happened since
// generation was read
func (c *LRUCache) SetIfGeneration(ctx context.Context, userID string, roles []Role, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.cache.Add(userID, cloneRoles(roles))
	return true
}

func (c *LRUCache) Invalidate(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Remove(userID)
}

func (c *LRUCache) Purge(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Purge()
}

// Len reports the number of cached users
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

func cloneRoles(roles []Role) []Role {
	out := make([]Role, len(roles))
	for i, role := range roles {
		out[i] = role
		out[i].Permissions = append([]string(nil), role.Permissions...)
	}
	return out
}
