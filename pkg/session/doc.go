// Package session adapts the hosted authentication service to wagerline.
//
// The Provider interface is what the gate, guards and draft store consume:
//
//	s, err := provider.GetSession(ctx, r)
//	if err != nil {
//		// transport failure; the gate treats the request as unauthenticated
//	}
//	if s == nil {
//		// no session, or an invalid/expired one that could not be refreshed
//	}
//
// HostedProvider signs users in with the OAuth2 password grant, refreshes
// expired access tokens with the refresh grant and verifies tokens either
// with the project HS256 secret or against the provider JWKS. Tokens are
// carried in HTTP-only cookies (wl-access-token, wl-refresh-token) or an
// Authorization: Bearer header.
//
// Auth state changes (SignedIn, SignedOut, TokenRefreshed) are fanned out to
// subscribers registered with OnAuthStateChange.
package session
