package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/wagerline/pkg/audit"
)

type stubProvider struct {
	session   *Session
	signInErr error
	signedOut []*Session
	events    *Broadcaster
}

func (p *stubProvider) GetSession(ctx context.Context, r *http.Request) (*Session, error) {
	if _, err := r.Cookie(AccessCookieName); err != nil {
		return nil, nil
	}
	return p.session, nil
}

func (p *stubProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	if password != "s3cret" {
		return nil, ErrInvalidCredentials
	}
	return p.session, nil
}

func (p *stubProvider) SignOut(ctx context.Context, s *Session) error {
	p.signedOut = append(p.signedOut, s)
	return nil
}

func (p *stubProvider) OnAuthStateChange(fn func(Event)) func() {
	return p.events.Subscribe(fn)
}

type auditSink struct {
	events []*audit.AuditEvent
}

func (a *auditSink) Log(ctx context.Context, event *audit.AuditEvent) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditSink) Close() error { return nil }

func setupHandlers(t *testing.T) (*mux.Router, *stubProvider, *auditSink) {
	t.Helper()

	provider := &stubProvider{
		session: &Session{AccessToken: "access", RefreshToken: "refresh", User: User{ID: "u1"}},
		events:  NewBroadcaster(),
	}
	sink := &auditSink{}
	router := mux.NewRouter()
	NewHandlers(provider, Cookies{}, HandlerConfig{LoginPath: "/login", DispatchPath: "/dashboard"}, sink, nil).
		RegisterRoutes(router)
	return router, provider, sink
}

func postForm(router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name           string
		form           url.Values
		wantLocation   string
		wantCookies    int
		wantAuditEvent audit.EventType
	}{
		{
			name:           "redirects to original destination",
			form:           url.Values{"email": {"ada@example.com"}, "password": {"s3cret"}, "redirectedFrom": {"/bets?game=loto"}},
			wantLocation:   "/bets?game=loto",
			wantCookies:    2,
			wantAuditEvent: audit.EventTypeAuthLogin,
		},
		{
			name:           "defaults to dispatcher",
			form:           url.Values{"email": {"ada@example.com"}, "password": {"s3cret"}},
			wantLocation:   "/dashboard",
			wantCookies:    2,
			wantAuditEvent: audit.EventTypeAuthLogin,
		},
		{
			name:           "rejects open redirects",
			form:           url.Values{"email": {"ada@example.com"}, "password": {"s3cret"}, "redirectedFrom": {"//evil.example.com"}},
			wantLocation:   "/dashboard",
			wantCookies:    2,
			wantAuditEvent: audit.EventTypeAuthLogin,
		},
		{
			name:           "bad credentials return to login",
			form:           url.Values{"email": {"ada@example.com"}, "password": {"nope"}, "redirectedFrom": {"/bets"}},
			wantLocation:   "/login?error=invalid_credentials&redirectedFrom=%2Fbets",
			wantAuditEvent: audit.EventTypeAuthLoginFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _, sink := setupHandlers(t)

			rec := postForm(router, "/auth/login", tt.form)
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Len(t, rec.Result().Cookies(), tt.wantCookies)

			require.Len(t, sink.events, 1)
			assert.Equal(t, tt.wantAuditEvent, sink.events[0].EventType)
		})
	}
}

func TestLogin_ProviderUnavailable(t *testing.T) {
	router, provider, sink := setupHandlers(t)
	provider.signInErr = errors.Join(ErrProviderUnavailable, errors.New("dial tcp: refused"))

	rec := postForm(router, "/auth/login", url.Values{"email": {"ada@example.com"}, "password": {"s3cret"}})
	assert.Equal(t, "/login?error=unavailable", rec.Header().Get("Location"))
	require.Len(t, sink.events, 1)
	assert.NotContains(t, sink.events[0].Message, "refused")
}

func TestLogin_JSONBody(t *testing.T) {
	router, _, _ := setupHandlers(t)

	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"s3cret","redirectedFrom":"/football"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/football", rec.Header().Get("Location"))
}

func TestLogin_Middleware(t *testing.T) {
	provider := &stubProvider{session: &Session{User: User{ID: "u1"}}, events: NewBroadcaster()}
	router := mux.NewRouter()
	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	NewHandlers(provider, Cookies{}, HandlerConfig{}, nil, nil).RegisterRoutes(router, blocked)

	rec := postForm(router, "/auth/login", url.Values{"email": {"a"}, "password": {"b"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLogout(t *testing.T) {
	router, provider, sink := setupHandlers(t)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "access"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Len(t, provider.signedOut, 1)
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
	}
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.EventTypeAuthLogout, sink.events[0].EventType)
	assert.Equal(t, "u1", sink.events[0].ActorID)

	// without a session only the cookies are cleared
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/auth/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, provider.signedOut, 1)
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/bets", "/bets"},
		{"/bets?game=loto", "/bets?game=loto"},
		{"", "/home"},
		{"bets", "/home"},
		{"//evil.example.com", "/home"},
		{"/\\evil.example.com", "/home"},
		{"https://evil.example.com/", "/home"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeRedirect(tt.target, "/home"))
		})
	}
}
