package session

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects a sign-in
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable wraps transport and unexpected provider failures
	ErrProviderUnavailable = errors.New("session provider unavailable")

	// ErrTokenExpired is returned by verifiers for well-formed but expired tokens
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned by verifiers for tokens that fail verification
	ErrTokenInvalid = errors.New("token invalid")
)

// Metadata is the application metadata the provider attaches to a user
type Metadata struct {
	Role string `json:"role,omitempty"`
}

// User is the authenticated principal
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Metadata Metadata `json:"metadata"`
}

// Session is a verified access token and the user it identifies
type Session struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`

	// Refreshed is set when GetSession exchanged the refresh token during
	// this request; the caller must write the new tokens back.
	Refreshed bool `json:"-"`
}

// Expired reports whether the access token has expired at now
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// Provider is the session provider consumed by the gate and guards
type Provider interface {
	// GetSession returns the current session, or nil when there is none.
	// Invalid or expired tokens yield (nil, nil); only transport failures
	// return an error.
	GetSession(ctx context.Context, r *http.Request) (*Session, error)

	// SignInWithPassword exchanges credentials for a session
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignOut revokes the session at the provider
	SignOut(ctx context.Context, s *Session) error

	// OnAuthStateChange registers fn for auth events and returns a function
	// that removes it
	OnAuthStateChange(fn func(Event)) (unsubscribe func())
}
