// Package rbac provides role-based access control for wagerline.
//
// # Overview
//
// A role is a named set of permission tokens. Users hold zero or more roles
// through user_roles rows. The token "all" is a wildcard: a role holding it
// satisfies every permission query.
//
// Built-in roles, from most to least privileged:
//
//	admin         ["all"]
//	moderator     view_matches, moderate_content, manage_matches
//	premium_user  view_matches, place_bets, premium_tips
//	user          view_matches, place_bets
//
// # Evaluation
//
// The evaluation functions (HasRole, HasAnyRole, HasAllRoles,
// HasPermission, HasAnyPermission, HasAllPermissions) are pure and work on
// already-fetched roles. Admin status is decided only by ResolveIsAdmin:
// the session metadata role or an assigned "admin" role is enough.
//
//	access := rbac.NewAccess(userID, metadataRole, roles)
//	if access.HasPermission(rbac.PermissionManageTransactions) {
//		// ...
//	}
//
// # Resolution
//
// Resolver fetches roles through a per-request memo (WithRequestMemo) so a
// request never fetches the same user's roles twice. An optional LRUCache
// keeps roles across requests; it must be paired with an Invalidator
// (LocalInvalidator or RedisInvalidator) and Service publishes on every
// mutation.
//
// # Errors
//
// Store failures are wrapped in ErrDataAccess and never turned into a
// denial here. ErrValidation, ErrNotFound and ErrConflict report rejected
// admin input.
package rbac
