package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// apiKeyHeader carries the public API key on every provider call
const apiKeyHeader = "apikey"

// HostedConfig configures HostedProvider
type HostedConfig struct {
	// URL is the provider base URL, for example https://project.example.co
	URL string

	// APIKey is the public (anon) API key
	APIKey string

	Verifier TokenVerifier

	// HTTPClient is used for provider calls; its transport gains the API
	// key header. Defaults to a client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// HostedProvider implements Provider against the hosted auth service.
// Token grants are POST <url>/auth/v1/token?grant_type=<grant> with a JSON
// body ({"email","password"} or {"refresh_token"}) and answer with an
// OAuth2 style token object.
type HostedProvider struct {
	baseURL  string
	client   *http.Client
	verifier TokenVerifier
	events   *Broadcaster
}

// NewHostedProvider creates a provider for cfg
func NewHostedProvider(cfg HostedConfig) (*HostedProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("provider url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	base := http.DefaultTransport
	if cfg.HTTPClient != nil {
		if cfg.HTTPClient.Transport != nil {
			base = cfg.HTTPClient.Transport
		}
		if cfg.HTTPClient.Timeout > 0 {
			timeout = cfg.HTTPClient.Timeout
		}
	}

	baseURL := strings.TrimRight(cfg.URL, "/")
	return &HostedProvider{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &apiKeyTransport{key: cfg.APIKey, base: base},
		},
		verifier: cfg.Verifier,
		events:   NewBroadcaster(),
	}, nil
}

// GetSession returns the session carried by r, refreshing an expired
// access token when a refresh token is present
func (p *HostedProvider) GetSession(ctx context.Context, r *http.Request) (*Session, error) {
	access, refresh := tokensFromRequest(r)

	if access != "" {
		claims, err := p.verifier.Verify(ctx, access)
		if err == nil {
			return &Session{
				AccessToken:  access,
				RefreshToken: refresh,
				ExpiresAt:    claims.ExpiresAt,
				User:         claims.User(),
			}, nil
		}
		if !errors.Is(err, ErrTokenExpired) {
			return nil, nil
		}
	}

	if refresh == "" {
		return nil, nil
	}
	return p.refresh(ctx, refresh)
}

// SignInWithPassword runs the password grant
func (p *HostedProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	token, err := p.grant(ctx, "password", passwordGrant{Email: email, Password: password})
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("%w: password grant failed: %w", ErrProviderUnavailable, err)
	}

	s, err := p.sessionFromToken(ctx, token)
	if err != nil {
		return nil, err
	}

	p.events.Emit(Event{Type: EventSignedIn, User: s.User})
	return s, nil
}

// SignOut revokes the session at the provider. A token the provider no
// longer accepts counts as signed out.
func (p *HostedProvider) SignOut(ctx context.Context, s *Session) error {
	if s == nil || s.AccessToken == "" {
		return nil
	}

	client := oauth2.NewClient(p.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: logout failed: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("%w: logout returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	p.events.Emit(Event{Type: EventSignedOut, User: s.User})
	return nil
}

// OnAuthStateChange registers fn for auth events
func (p *HostedProvider) OnAuthStateChange(fn func(Event)) func() {
	return p.events.Subscribe(fn)
}

func (p *HostedProvider) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	token, err := p.grant(ctx, "refresh_token", refreshGrant{RefreshToken: refreshToken})
	if err != nil {
		if isClientError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: refresh grant failed: %w", ErrProviderUnavailable, err)
	}

	s, err := p.sessionFromToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.Refreshed = true

	p.events.Emit(Event{Type: EventTokenRefreshed, User: s.User})
	return s, nil
}

func (p *HostedProvider) sessionFromToken(ctx context.Context, token *oauth2.Token) (*Session, error) {
	claims, err := p.verifier.Verify(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: issued token failed verification: %w", ErrProviderUnavailable, err)
	}

	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = token.Expiry
	}

	return &Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         claims.User(),
	}, nil
}

func (p *HostedProvider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// GrantError is a rejection from the token endpoint
type GrantError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *GrantError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Code)
}

func (p *HostedProvider) grant(ctx context.Context, grantType string, body interface{}) (*oauth2.Token, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s grant: %w", grantType, err)
	}

	endpoint := p.baseURL + "/auth/v1/token?grant_type=" + url.QueryEscape(grantType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		grantErr := &GrantError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(grantErr)
		return nil, grantErr
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}

// isClientError reports whether err is a 4xx response from the token
// endpoint
func isClientError(err error) bool {
	var grantErr *GrantError
	if errors.As(err, &grantErr) {
		return grantErr.StatusCode >= 400 && grantErr.StatusCode < 500
	}
	return false
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(apiKeyHeader, t.key)
	return t.base.RoundTrip(req)
}
