package session

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessCookieName  = "wl-access-token"
	RefreshCookieName = "wl-refresh-token"

	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Cookies writes and clears the session cookies
type Cookies struct {
	Secure     bool
	Domain     string
	RefreshTTL time.Duration
}

// Set writes the tokens of s. The access cookie expires with the token so
// the browser drops it and the next request goes through a refresh.
func (c Cookies) Set(w http.ResponseWriter, s *Session) {
	access := c.cookie(AccessCookieName, s.AccessToken)
	if !s.ExpiresAt.IsZero() {
		access.Expires = s.ExpiresAt
	}
	http.SetCookie(w, access)

	if s.RefreshToken != "" {
		ttl := c.RefreshTTL
		if ttl <= 0 {
			ttl = defaultRefreshTTL
		}
		refresh := c.cookie(RefreshCookieName, s.RefreshToken)
		refresh.MaxAge = int(ttl.Seconds())
		http.SetCookie(w, refresh)
	}
}

// Clear expires both session cookies
func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		cookie := c.cookie(name, "")
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		http.SetCookie(w, cookie)
	}
}

func (c Cookies) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// tokensFromRequest returns the access token from the Authorization header
// or cookie, and the refresh token from its cookie
func tokensFromRequest(r *http.Request) (access, refresh string) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			access = strings.TrimSpace(auth[len(prefix):])
		}
	}
	if access == "" {
		if c, err := r.Cookie(AccessCookieName); err == nil {
			access = c.Value
		}
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		refresh = c.Value
	}
	return access, refresh
}
