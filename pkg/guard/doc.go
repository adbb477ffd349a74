// Package guard decides whether a fragment of rendered UI is shown to the
// current principal.
//
// Guards are a UX convenience. They hide controls a user cannot use; the
// gate and the API middleware in package rbac do the enforcing.
//
// A Requirement is evaluated against a State:
//
//	Loading        -> RenderLoading (never children, never fallback)
//	Ready(access)  -> RenderChildren, or RenderFallback / RenderRedirect
//	Failed(err)    -> RenderFallback
//
// Guard applies this to an http.Handler. Live tracks the State of one
// principal across auth events and StreamHandler pushes it to the browser
// as server-sent events.
package guard
