package rbac

import (
	"sort"
)

// The functions in this file are pure: they never perform I/O and only look
// at roles that were already fetched.

// HasRole reports whether any held role is named exactly name
func HasRole(roles []Role, name string) bool {
	for _, role := range roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether at least one of names is held. An empty names
// list never matches.
func HasAnyRole(roles []Role, names []string) bool {
	for _, name := range names {
		if HasRole(roles, name) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether every one of names is held. An empty names
// list is vacuously satisfied.
func HasAllRoles(roles []Role, names []string) bool {
	for _, name := range names {
		if !HasRole(roles, name) {
			return false
		}
	}
	return true
}

// HasPermission reports whether some held role grants permission, either
// explicitly or through the "all" wildcard
func HasPermission(roles []Role, permission string) bool {
	for _, role := range roles {
		if roleHasPermission(role, permission) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of permissions is granted.
// An empty list never matches.
func HasAnyPermission(roles []Role, permissions []string) bool {
	for _, permission := range permissions {
		if HasPermission(roles, permission) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every one of permissions is granted.
// An empty list is vacuously satisfied.
func HasAllPermissions(roles []Role, permissions []string) bool {
	for _, permission := range permissions {
		if !HasPermission(roles, permission) {
			return false
		}
	}
	return true
}

// roleHasPermission checks a single role, honouring the wildcard
func roleHasPermission(role Role, permission string) bool {
	for _, p := range role.Permissions {
		if p == PermissionAll || p == permission {
			return true
		}
	}
	return false
}

// ResolveIsAdmin is the single place that decides admin status. The session
// metadata role and an assigned role named "admin" are both sufficient.
func ResolveIsAdmin(metadataRole string, roles []Role) bool {
	return metadataRole == RoleAdmin || HasRole(roles, RoleAdmin)
}

// PrimaryRole picks the most privileged role: admin, moderator,
// premium_user, user, then any other role by name. ok is false when roles
// is empty.
func PrimaryRole(roles []Role) (Role, bool) {
	if len(roles) == 0 {
		return Role{}, false
	}
	sorted := SortByPriority(roles)
	return sorted[0], true
}

// SortByPriority returns a copy of roles ordered from most to least
// privileged
func SortByPriority(roles []Role) []Role {
	sorted := make([]Role, len(roles))
	copy(sorted, roles)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := priorityOf(sorted[i].Name), priorityOf(sorted[j].Name)
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

func priorityOf(name string) int {
	if p, ok := rolePriority[name]; ok {
		return p
	}
	return len(rolePriority)
}

// RoleNames returns the distinct role names in priority order
func RoleNames(roles []Role) []string {
	sorted := SortByPriority(roles)
	names := make([]string, 0, len(sorted))
	seen := make(map[string]struct{}, len(sorted))
	for _, role := range sorted {
		if _, ok := seen[role.Name]; ok {
			continue
		}
		seen[role.Name] = struct{}{}
		names = append(names, role.Name)
	}
	return names
}

// Permissions returns the sorted union of permissions across roles
func Permissions(roles []Role) []string {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}
