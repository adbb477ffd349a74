package rbac

import (
	"time"
)

// PermissionAll is the wildcard permission token. A role holding it
// satisfies every permission query.
const PermissionAll = "all"

// Built-in role names
const (
	RoleAdmin       = "admin"
	RoleModerator   = "moderator"
	RolePremiumUser = "premium_user"
	RoleUser        = "user"
)

// Well-known permission tokens used by the route table and the admin API
const (
	PermissionManageRoles        = "manage_roles"
	PermissionManageUsers        = "manage_users"
	PermissionManageMatches      = "manage_matches"
	PermissionManageLottoResults = "manage_lotto_results"
	PermissionManageTransactions = "manage_transactions"
	PermissionViewMatches        = "view_matches"
	PermissionModerateContent    = "moderate_content"
	PermissionPlaceBets          = "place_bets"
	PermissionPremiumTips        = "premium_tips"
)

// rolePriority orders built-in roles from most to least privileged. Roles
// not listed rank below all of them.
var rolePriority = map[string]int{
	RoleAdmin:       0,
	RoleModerator:   1,
	RolePremiumUser: 2,
	RoleUser:        3,
}

// Role is a named bundle of permission tokens
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	Version     int       `json:"version"`
	IsBuiltIn   bool      `json:"is_built_in"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserRole links a user to a role
type UserRole struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	GrantedAt time.Time `json:"granted_at"`
}

// BuiltInRoles returns the roles seeded on first start
func BuiltInRoles() []Role {
	return []Role{
		{
			Name:        RoleAdmin,
			Permissions: []string{PermissionAll},
			IsBuiltIn:   true,
		},
		{
			Name: RoleModerator,
			Permissions: []string{
				PermissionViewMatches,
				PermissionModerateContent,
				PermissionManageMatches,
			},
			IsBuiltIn: true,
		},
		{
			Name: RolePremiumUser,
			Permissions: []string{
				PermissionViewMatches,
				PermissionPlaceBets,
				PermissionPremiumTips,
			},
			IsBuiltIn: true,
		},
		{
			Name: RoleUser,
			Permissions: []string{
				PermissionViewMatches,
				PermissionPlaceBets,
			},
			IsBuiltIn: true,
		},
	}
}
