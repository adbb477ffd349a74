package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/wagerline/pkg/httputil"
)

// errorStatuses maps RBAC sentinel errors to HTTP status codes
var errorStatuses = []httputil.ErrorStatus{
	{Err: ErrValidation, Status: http.StatusBadRequest},
	{Err: ErrNotFound, Status: http.StatusNotFound},
	{Err: ErrConflict, Status: http.StatusConflict},
	{Err: ErrUnauthorized, Status: http.StatusForbidden},
	{Err: ErrDataAccess, Status: http.StatusInternalServerError},
}

// WriteError writes err with the RBAC status mapping
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteServiceError(w, r, err, errorStatuses)
}

// Handlers provides HTTP handlers for role administration
type Handlers struct {
	service *Service
}

// NewHandlers creates new RBAC handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the admin routes. The caller mounts router
// under the admin prefix and wraps it with RequirePermission.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/rbac/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/rbac/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/rbac/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/rbac/roles/{id}", h.DeleteRole).Methods("DELETE")
	router.HandleFunc("/rbac/roles/{id}/permissions", h.UpdateRolePermissions).Methods("PUT")

	router.HandleFunc("/rbac/users/{id}/roles", h.GetUserRoles).Methods("GET")
	router.HandleFunc("/rbac/users/{id}/roles", h.ReplaceUserRoles).Methods("PUT")
}

// RegisterSelfRoutes registers the endpoints any authenticated user may
// call about themselves
func (h *Handlers) RegisterSelfRoutes(router *mux.Router) {
	router.HandleFunc("/me/access", h.GetOwnAccess).Methods("GET")
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type updatePermissionsRequest struct {
	Permissions []string `json:"permissions"`
	Version     int      `json:"version,omitempty"`
}

type replaceUserRolesRequest struct {
	Roles []string `json:"roles"`
}

type rolesResponse struct {
	Roles []Role `json:"roles"`
}

// ListRoles lists every defined role
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rolesResponse{Roles: roles})
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.service.CreateRole(r.Context(), req.Name, req.Permissions)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole returns one role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRolePermissions replaces a role's permission set
func (h *Handlers) UpdateRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Permissions == nil {
		httputil.WriteBadRequest(w, "permissions is required")
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.UpdateRolePermissions(r.Context(), id, req.Permissions, req.Version)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole removes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetUserRoles lists the roles assigned to a user
func (h *Handlers) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	roles, err := h.service.UserRoles(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rolesResponse{Roles: roles})
}

// ReplaceUserRoles replaces the full role set of a user
func (h *Handlers) ReplaceUserRoles(w http.ResponseWriter, r *http.Request) {
	var req replaceUserRolesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.ReplaceUserRoles(r.Context(), id, req.Roles); err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetOwnAccess returns the caller's effective access as resolved by the
// gate for this request
func (h *Handlers) GetOwnAccess(w http.ResponseWriter, r *http.Request) {
	access, ok := AccessFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, access.Snapshot())
}
