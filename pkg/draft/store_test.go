package draft

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/wagerline/pkg/observability"
)

func setupStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis, *observability.Metrics) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewRedisStore(client, ttl, metrics), mr, metrics
}

func footballBet(userID string) *Bet {
	return &Bet{
		UserID:     userID,
		Game:       GameFootball,
		Selections: []Selection{{MatchID: "m-1", Outcome: "home"}},
		Stake:      10,
	}
}

func TestBetValidate(t *testing.T) {
	tests := []struct {
		name    string
		bet     Bet
		wantErr bool
	}{
		{"valid football", *footballBet("u1"), false},
		{"valid loto", Bet{UserID: "u1", Game: GameLoto, Selections: []Selection{{DrawID: "d-1", Numbers: []int{3, 7, 11}}}, Stake: 2}, false},
		{"missing user", Bet{Game: GameLoto, Selections: []Selection{{Numbers: []int{1}}}, Stake: 1}, true},
		{"unknown game", Bet{UserID: "u1", Game: "poker", Selections: []Selection{{Numbers: []int{1}}}, Stake: 1}, true},
		{"no selections", Bet{UserID: "u1", Game: GameLoto, Stake: 1}, true},
		{"football without outcome", Bet{UserID: "u1", Game: GameFootball, Selections: []Selection{{MatchID: "m-1"}}, Stake: 1}, true},
		{"loto without numbers", Bet{UserID: "u1", Game: GameLoto, Selections: []Selection{{DrawID: "d-1"}}, Stake: 1}, true},
		{"zero stake", Bet{UserID: "u1", Game: GameLoto, Selections: []Selection{{Numbers: []int{1}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bet.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedisStore_SaveGetClear(t *testing.T) {
	store, mr, metrics := setupStore(t, time.Hour)
	ctx := context.Background()

	bet := footballBet("u1")
	require.NoError(t, store.Save(ctx, bet))
	assert.NotEmpty(t, bet.ID)
	assert.False(t, bet.CreatedAt.IsZero())
	assert.Equal(t, bet.CreatedAt.Add(time.Hour), bet.ExpiresAt)

	assert.True(t, mr.Exists("draft:bet:u1"))
	assert.Equal(t, time.Hour, mr.TTL("draft:bet:u1"))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, bet.ID, got.ID)
	assert.Equal(t, GameFootball, got.Game)
	assert.Equal(t, bet.Selections, got.Selections)

	require.NoError(t, store.Clear(ctx, "u1"))
	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DraftOperationsTotal.WithLabelValues("save", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DraftOperationsTotal.WithLabelValues("get", "success")))
}

func TestRedisStore_ResaveKeepsIdentity(t *testing.T) {
	store, _, _ := setupStore(t, time.Hour)
	ctx := context.Background()

	bet := footballBet("u1")
	require.NoError(t, store.Save(ctx, bet))
	id, created := bet.ID, bet.CreatedAt

	bet.Stake = 25
	require.NoError(t, store.Save(ctx, bet))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, float64(25), got.Stake)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr, _ := setupStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, footballBet("u1")))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_IsolatedPerUser(t *testing.T) {
	store, _, _ := setupStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, footballBet("u1")))
	_, err := store.Get(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Clear(ctx, "u2"))
	_, err = store.Get(ctx, "u1")
	assert.NoError(t, err)
}

func TestRedisStore_Errors(t *testing.T) {
	store, mr, _ := setupStore(t, time.Hour)
	ctx := context.Background()

	err := store.Save(ctx, &Bet{UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, mr.Set("draft:bet:u1", "{not json"))
	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrStorage)

	mr.Close()
	err = store.Save(ctx, footballBet("u1"))
	assert.ErrorIs(t, err, ErrStorage)
}
