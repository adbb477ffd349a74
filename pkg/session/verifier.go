package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified fields of an access token
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// User maps verified claims to a User
func (c *Claims) User() User {
	return User{ID: c.Subject, Email: c.Email, Metadata: Metadata{Role: c.Role}}
}

// TokenVerifier verifies a raw access token. Implementations return
// ErrTokenExpired or ErrTokenInvalid.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// tokenClaims is the JWT payload issued by the hosted auth service
type tokenClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email"`
	AppMetadata Metadata `json:"app_metadata"`
}

// HMACVerifier verifies HS256 tokens signed with the project secret
type HMACVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewHMACVerifier creates a verifier for the shared JWT secret. An empty
// issuer disables the issuer check.
func NewHMACVerifier(secret, issuer string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &HMACVerifier{secret: []byte(secret), issuer: issuer, leeway: 5 * time.Second}, nil
}

// Verify parses and validates raw
func (v *HMACVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &tc, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	claims := &Claims{Subject: tc.Subject, Email: tc.Email, Role: tc.AppMetadata.Role}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}

// JWKSVerifier verifies asymmetric tokens against the provider key set
type JWKSVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewJWKSVerifier creates a verifier backed by a remote JWKS. Keys are
// fetched lazily and cached by the key set.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{
		SkipClientIDCheck:    true,
		SkipIssuerCheck:      issuer == "",
		SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
	})
	return &JWKSVerifier{verifier: verifier}, nil
}

// Verify parses and validates raw
func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	var extra struct {
		Email       string   `json:"email"`
		AppMetadata Metadata `json:"app_metadata"`
	}
	if err := token.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %w", ErrTokenInvalid, err)
	}

	return &Claims{
		Subject:   token.Subject,
		Email:     extra.Email,
		Role:      extra.AppMetadata.Role,
		ExpiresAt: token.Expiry,
	}, nil
}
