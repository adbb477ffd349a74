package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/wagerline/pkg/audit"
	"github.com/platinummonkey/wagerline/pkg/draft"
	"github.com/platinummonkey/wagerline/pkg/gate"
	"github.com/platinummonkey/wagerline/pkg/guard"
	"github.com/platinummonkey/wagerline/pkg/middleware"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
)

// headerProvider treats X-Test-User as a valid session
type headerProvider struct{}

func (headerProvider) GetSession(ctx context.Context, r *http.Request) (*session.Session, error) {
	id := r.Header.Get("X-Test-User")
	if id == "" {
		return nil, nil
	}
	return &session.Session{AccessToken: "token-" + id, User: session.User{ID: id}}, nil
}

func (headerProvider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	return nil, session.ErrInvalidCredentials
}

func (headerProvider) SignOut(ctx context.Context, s *session.Session) error { return nil }

func (headerProvider) OnAuthStateChange(fn func(session.Event)) func() { return func() {} }

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, rbac.RunMigrations(ctx, db))

	store := rbac.NewStore(db)
	_, err = store.SeedBuiltInRoles(ctx)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceUserRoles(ctx, "alice", []string{rbac.RoleUser}))
	require.NoError(t, store.ReplaceUserRoles(ctx, "root", []string{rbac.RoleAdmin}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	provider := headerProvider{}
	resolver := rbac.NewResolver(store)
	service := rbac.NewService(store, rbac.NewLocalInvalidator(nil), audit.NoopLogger{}, metrics)

	table, err := gate.DefaultTable()
	require.NoError(t, err)
	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	})

	renderer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("rendered " + r.URL.Path + " for " + r.Header.Get(gate.UserIDHeader)))
	})

	return newRouter(components{
		logger:  logger,
		metrics: metrics,
		gate:    gate.New(table, provider, resolver, gate.WithMetrics(metrics)),
		sessions: session.NewHandlers(provider, session.Cookies{}, session.HandlerConfig{
			LoginPath:    table.Login,
			DispatchPath: "/dashboard",
			ReturnParam:  table.ReturnParam,
		}, audit.NoopLogger{}, metrics),
		loginLimit: middleware.RateLimit(limiter, "login", metrics),
		roles:      rbac.NewHandlers(service),
		drafts:     draft.NewHandlers(draft.NewRedisStore(client, 0, metrics)),
		stream:     guard.NewStreamHandler(provider, resolver),
		renderer:   renderer,
	})
}

func do(h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Pages(t *testing.T) {
	h := setupServer(t)

	tests := []struct {
		name         string
		path         string
		user         string
		wantStatus   int
		wantLocation string
		wantBody     string
	}{
		{"public page", "/", "", http.StatusOK, "", "rendered / for "},
		{"login page renders", "/auth/login", "", http.StatusOK, "", "rendered /auth/login"},
		{"signed-in user leaves login", "/auth/login", "alice", http.StatusTemporaryRedirect, "/user/dashboard", ""},
		{"protected page sends to login", "/user/bets", "", http.StatusTemporaryRedirect, "/auth/login?redirectedFrom=/user/bets", ""},
		{"user page carries the user id", "/user/bets", "alice", http.StatusOK, "", "rendered /user/bets for alice"},
		{"dispatch goes home", "/dashboard", "root", http.StatusTemporaryRedirect, "/Overview", ""},
		{"admin page denied", "/Overview", "alice", http.StatusTemporaryRedirect, "/unauthorized", ""},
		{"transactions for admins", "/transactions/42", "root", http.StatusOK, "", "rendered /transactions/42 for root"},
		{"transactions denied", "/transactions", "alice", http.StatusTemporaryRedirect, "/unauthorized", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, "GET", tt.path, tt.user, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouter_API(t *testing.T) {
	h := setupServer(t)

	t.Run("own access", func(t *testing.T) {
		rec := do(h, "GET", "/api/me/access", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var snap rbac.Snapshot
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
		assert.Equal(t, "alice", snap.UserID)
		assert.Equal(t, []string{rbac.RoleUser}, snap.Roles)
		assert.False(t, snap.IsAdmin)
	})

	t.Run("unauthenticated api call", func(t *testing.T) {
		rec := do(h, "GET", "/api/me/access", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
	})

	t.Run("admin api", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(h, "GET", "/api/admin/rbac/roles", "alice", "").Code)

		rec := do(h, "GET", "/api/admin/rbac/roles", "root", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), rbac.RolePremiumUser)
	})

	t.Run("unknown api path", func(t *testing.T) {
		rec := do(h, "GET", "/api/me/unknown", "alice", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotContains(t, rec.Body.String(), "rendered")
	})

	t.Run("draft bet", func(t *testing.T) {
		body := `{"game":"football","selections":[{"match_id":"m1","outcome":"home"}],"stake":5}`
		rec := do(h, "PUT", "/api/draft-bet", "alice", body)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(h, "GET", "/api/draft-bet", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var bet draft.Bet
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&bet))
		assert.Equal(t, "alice", bet.UserID)

		assert.Equal(t, http.StatusNotFound, do(h, "GET", "/api/draft-bet", "root", "").Code)
	})

	t.Run("navigation", func(t *testing.T) {
		rec := do(h, "GET", "/api/me/nav", "root", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "/Overview")
	})
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	h := setupServer(t)
	body := `{"email":"a@example.com","password":"wrong"}`

	rec := do(h, "POST", "/auth/login", "", body)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?error=invalid_credentials", rec.Header().Get("Location"))

	rec = do(h, "POST", "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRouter_Logout(t *testing.T) {
	h := setupServer(t)

	rec := do(h, "POST", "/auth/logout", "alice", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}
