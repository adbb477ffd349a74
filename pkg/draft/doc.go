// Package draft persists the bet a user is building between page loads.
//
// A draft is deliberately separate from the session: it lives in Redis
// under draft:bet:<user id> with its own TTL, and is cleared explicitly, on
// expiry, or on sign-out when ClearOnSignOut is wired. Nothing
// session-derived is stored here.
package draft
