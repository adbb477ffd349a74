package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

// DefaultTTL is how long a draft survives without being saved again
const DefaultTTL = 24 * time.Hour

const keyPrefix = "draft:bet:"

// Store persists one draft per user
type Store interface {
	Save(ctx context.Context, bet *Bet) error
	Get(ctx context.Context, userID string) (*Bet, error)
	Clear(ctx context.Context, userID string) error
}

// RedisStore is a Store backed by Redis
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRedisStore creates a store. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, metrics: metrics, now: time.Now}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Save validates bet, stamps id and timestamps, and writes it with the TTL.
// Saving again keeps the id and creation time and extends the expiry.
func (s *RedisStore) Save(ctx context.Context, bet *Bet) (err error) {
	defer func() { s.metrics.RecordDraftOperation("save", err) }()

	if err := bet.Validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = now
	}
	bet.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := s.client.Set(ctx, key(bet.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Get returns the user's draft or ErrNotFound
func (s *RedisStore) Get(ctx context.Context, userID string) (bet *Bet, err error) {
	defer func() {
		if !errors.Is(err, ErrNotFound) {
			s.metrics.RecordDraftOperation("get", err)
		}
	}()

	data, err := s.client.Get(ctx, key(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	bet = &Bet{}
	if err := json.Unmarshal(data, bet); err != nil {
		return nil, fmt.Errorf("%w: malformed draft: %w", ErrStorage, err)
	}
	return bet, nil
}

// Clear deletes the user's draft. Clearing a missing draft is not an error.
func (s *RedisStore) Clear(ctx context.Context, userID string) (err error) {
	defer func() { s.metrics.RecordDraftOperation("clear", err) }()

	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
