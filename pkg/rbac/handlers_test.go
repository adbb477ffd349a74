package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*mux.Router, *Service) {
	t.Helper()

	service := NewService(setupSeededStore(t), nil, nil, nil)
	router := mux.NewRouter()
	handlers := NewHandlers(service)
	handlers.RegisterRoutes(router)
	handlers.RegisterSelfRoutes(router)
	return router, service
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_RoleLifecycle(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, "POST", "/rbac/roles", createRoleRequest{Name: "tipster", Permissions: []string{"premium_tips"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Role
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, 1, created.Version)

	rec = doJSON(t, router, "POST", "/rbac/roles", createRoleRequest{Name: "tipster", Permissions: []string{"premium_tips"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, "POST", "/rbac/roles", createRoleRequest{Name: "Bad Name"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "GET", "/rbac/roles/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "PUT", "/rbac/roles/"+created.ID+"/permissions", updatePermissionsRequest{Permissions: []string{"view_matches"}, Version: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Role
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, []string{"view_matches"}, updated.Permissions)

	rec = doJSON(t, router, "PUT", "/rbac/roles/"+created.ID+"/permissions", updatePermissionsRequest{Permissions: []string{"view_matches"}, Version: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, "PUT", "/rbac/roles/"+created.ID+"/permissions", map[string]interface{}{"version": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "DELETE", "/rbac/roles/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, "GET", "/rbac/roles/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_ListRoles(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, "GET", "/rbac/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rolesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Roles, 4)
}

func TestHandlers_UserRoles(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, "PUT", "/rbac/users/u1/roles", replaceUserRolesRequest{Roles: []string{RoleUser, RoleModerator}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, "GET", "/rbac/users/u1/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp rolesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{RoleModerator, RoleUser}, RoleNames(resp.Roles))

	rec = doJSON(t, router, "PUT", "/rbac/users/u1/roles", replaceUserRolesRequest{Roles: []string{"ghost"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "GET", "/rbac/users/nobody/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"roles":[]}`, rec.Body.String())
}

func TestHandlers_InvalidJSON(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest("POST", "/rbac/roles", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_GetOwnAccess(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/me/access", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	access := NewAccess("u1", "", []Role{userRole})
	req := httptest.NewRequest("GET", "/me/access", nil)
	req = req.WithContext(WithAccess(context.Background(), access))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, []string{RoleUser}, snap.Roles)
}
