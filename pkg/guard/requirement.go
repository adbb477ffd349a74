package guard

import "github.com/platinummonkey/wagerline/pkg/rbac"

// Combine joins the role and permission constraints
type Combine int

const (
	// Or is satisfied when either constraint holds
	Or Combine = iota
	// And needs both constraints
	And
)

// Requirement is a role/permission predicate. An empty list is no
// constraint; a requirement with no constraints is always satisfied.
type Requirement struct {
	Roles       []string
	Permissions []string

	// AllRoles and AllPermissions switch the lists from any-of to all-of
	AllRoles       bool
	AllPermissions bool

	Combine Combine

	// RedirectTo, when set, turns a denial into a redirect
	RedirectTo string
}

// Satisfied reports whether access meets r. Admins satisfy every
// constraint, the same way the gate and rbac.RequirePermission decide.
func (r Requirement) Satisfied(access *rbac.Access) bool {
	hasRoles := len(r.Roles) > 0
	hasPerms := len(r.Permissions) > 0
	if !hasRoles && !hasPerms {
		return true
	}
	if access == nil {
		return false
	}

	roleOK := true
	if hasRoles {
		if r.AllRoles {
			roleOK = access.IsAdmin() || access.HasAllRoles(r.Roles)
		} else {
			roleOK = access.IsAdmin() || access.HasAnyRole(r.Roles)
		}
	}

	permOK := true
	if hasPerms {
		if r.AllPermissions {
			permOK = access.IsAdmin() || access.HasAllPermissions(r.Permissions)
		} else {
			permOK = access.IsAdmin() || access.HasAnyPermission(r.Permissions)
		}
	}

	switch {
	case hasRoles && hasPerms && r.Combine == Or:
		return roleOK || permOK
	default:
		return roleOK && permOK
	}
}
