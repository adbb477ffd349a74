package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

// DefaultInvalidationChannel is the Redis channel role changes are
// published on
const DefaultInvalidationChannel = "wagerline:rbac:invalidate"

// Invalidation identifies what changed. An empty UserID means every
// cached entry is stale.
type Invalidation struct {
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason"`
}

// Invalidator broadcasts role changes to every cache that may hold them
type Invalidator interface {
	Publish(ctx context.Context, inv Invalidation) error
}

// InvalidationSource lets in-process consumers, such as open access
// streams, react to role changes after the cache was evicted
type InvalidationSource interface {
	OnInvalidation(fn func(Invalidation)) (unsubscribe func())
}

type invalidationListeners struct {
	mu    sync.Mutex
	next  int
	funcs map[int]func(Invalidation)
}

// OnInvalidation registers fn for every applied invalidation
func (l *invalidationListeners) OnInvalidation(fn func(Invalidation)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.funcs == nil {
		l.funcs = make(map[int]func(Invalidation))
	}
	id := l.next
	l.next++
	l.funcs[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.funcs, id)
		l.mu.Unlock()
	}
}

func (l *invalidationListeners) notify(inv Invalidation) {
	l.mu.Lock()
	funcs := make([]func(Invalidation), 0, len(l.funcs))
	for _, fn := range l.funcs {
		funcs = append(funcs, fn)
	}
	l.mu.Unlock()

	for _, fn := range funcs {
		fn(inv)
	}
}

// LocalInvalidator evicts a cache in the same process
type LocalInvalidator struct {
	invalidationListeners
	cache Cache
}

// NewLocalInvalidator creates an invalidator for a single instance
func NewLocalInvalidator(cache Cache) *LocalInvalidator {
	return &LocalInvalidator{cache: cache}
}

func (l *LocalInvalidator) Publish(ctx context.Context, inv Invalidation) error {
	applyInvalidation(ctx, l.cache, inv)
	l.notify(inv)
	return nil
}

// RedisInvalidator publishes invalidations on a Redis channel. Every
// instance runs Listen so all local caches are evicted, including the
// publisher's own. Local subscribers are notified on publish and again
// when the message comes back through Listen.
type RedisInvalidator struct {
	invalidationListeners
	client  *redis.Client
	channel string
	cache   Cache
	logger  *observability.Logger

	mu       sync.Mutex
	received int
}

// NewRedisInvalidator creates an invalidator fanning out through Redis
func NewRedisInvalidator(client *redis.Client, channel string, cache Cache, logger *observability.Logger) *RedisInvalidator {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &RedisInvalidator{
		client:  client,
		channel: channel,
		cache:   cache,
		logger:  logger,
	}
}

// Publish evicts locally, then notifies the other instances
func (r *RedisInvalidator) Publish(ctx context.Context, inv Invalidation) error {
	applyInvalidation(ctx, r.cache, inv)
	r.notify(inv)

	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and applies invalidations until ctx is
// cancelled. ready, when not nil, is closed once the subscription is
// confirmed.
func (r *RedisInvalidator) Listen(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var inv Invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				r.logger.WithError(err).Warn("Ignoring malformed role invalidation")
				continue
			}
			applyInvalidation(ctx, r.cache, inv)
			r.notify(inv)

			r.mu.Lock()
			r.received++
			r.mu.Unlock()
		}
	}
}

// Received reports how many remote invalidations were applied
func (r *RedisInvalidator) Received() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

func applyInvalidation(ctx context.Context, cache Cache, inv Invalidation) {
	if cache == nil {
		return
	}
	if inv.UserID == "" {
		cache.Purge(ctx)
		return
	}
	cache.Invalidate(ctx, inv.UserID)
}

// noopInvalidator is used when no cross-request cache is configured
type noopInvalidator struct{}

func (noopInvalidator) Publish(ctx context.Context, inv Invalidation) error { return nil }
