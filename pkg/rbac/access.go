package rbac

import (
	"context"

	"github.com/platinummonkey/wagerline/pkg/contextkeys"
)

// Access is the effective access of one principal for one request: the
// roles held, the union of their permissions and the admin decision. It is
// derived, never persisted.
type Access struct {
	UserID       string
	MetadataRole string
	Roles        []Role
	admin        bool
}

// NewAccess derives the effective access for userID
func NewAccess(userID, metadataRole string, roles []Role) *Access {
	return &Access{
		UserID:       userID,
		MetadataRole: metadataRole,
		Roles:        roles,
		admin:        ResolveIsAdmin(metadataRole, roles),
	}
}

// IsAdmin reports the ResolveIsAdmin decision
func (a *Access) IsAdmin() bool {
	return a != nil && a.admin
}

// HasRoles reports whether at least one role row is assigned
func (a *Access) HasRoles() bool {
	return a != nil && len(a.Roles) > 0
}

func (a *Access) HasRole(name string) bool {
	return a != nil && HasRole(a.Roles, name)
}

func (a *Access) HasAnyRole(names []string) bool {
	return a != nil && HasAnyRole(a.Roles, names)
}

func (a *Access) HasAllRoles(names []string) bool {
	return a != nil && HasAllRoles(a.Roles, names)
}

func (a *Access) HasPermission(permission string) bool {
	return a != nil && HasPermission(a.Roles, permission)
}

func (a *Access) HasAnyPermission(permissions []string) bool {
	return a != nil && HasAnyPermission(a.Roles, permissions)
}

func (a *Access) HasAllPermissions(permissions []string) bool {
	return a != nil && HasAllPermissions(a.Roles, permissions)
}

// PrimaryRoleName returns the highest-priority role name. Admins detected
// only through session metadata still report "admin".
func (a *Access) PrimaryRoleName() string {
	if a == nil {
		return ""
	}
	if a.admin {
		return RoleAdmin
	}
	if role, ok := PrimaryRole(a.Roles); ok {
		return role.Name
	}
	return ""
}

// Snapshot is the JSON view of Access served to clients
type Snapshot struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	IsAdmin     bool     `json:"is_admin"`
	PrimaryRole string   `json:"primary_role,omitempty"`
}

// Snapshot returns the client view of a
func (a *Access) Snapshot() Snapshot {
	if a == nil {
		return Snapshot{Roles: []string{}, Permissions: []string{}}
	}
	return Snapshot{
		UserID:      a.UserID,
		Roles:       RoleNames(a.Roles),
		Permissions: Permissions(a.Roles),
		IsAdmin:     a.admin,
		PrimaryRole: a.PrimaryRoleName(),
	}
}

// WithAccess stores resolved access in the request context
func WithAccess(ctx context.Context, access *Access) context.Context {
	return contextkeys.WithAccess(ctx, access)
}

// AccessFromContext returns the access resolved earlier in this request
func AccessFromContext(ctx context.Context) (*Access, bool) {
	access, ok := contextkeys.Access(ctx).(*Access)
	return access, ok && access != nil
}
