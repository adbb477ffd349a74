// Package gate intercepts every navigable request and enforces the route
// table before the page renderer or an API handler sees it.
//
// The route table (routes.yaml, embedded; override with a file) classifies
// path prefixes by access class. Decide runs a three-state machine:
//
//	UNAUTHENTICATED          public and auth_only pass, the rest go to login
//	AUTHENTICATED_NO_ROLE    anything non-public goes to the error page
//	AUTHENTICATED_WITH_ROLE  the rule decides: pass, home, unauthorized
//	                         or the rule's fallback
//
// Role lookup failures fail closed to the error page. Paths under an API
// prefix get JSON status codes (401, 403, 500) instead of redirects.
//
// On pass the gate replaces any inbound X-User-Id header with the resolved
// user id and stores the session and rbac.Access in the request context.
package gate
