package rbac

import (
	"net/http"

	"github.com/platinummonkey/wagerline/pkg/httputil"
	"github.com/platinummonkey/wagerline/pkg/observability"
)

// RequirePermission creates middleware that requires any of permissions.
// It reads the access the gate resolved for this request; admins always
// pass.
func RequirePermission(permissions ...string) func(http.Handler) http.Handler {
	return requireAccess(func(a *Access) bool {
		return a.IsAdmin() || a.HasAnyPermission(permissions)
	})
}

// RequireAllPermissions creates middleware that requires every permission
func RequireAllPermissions(permissions ...string) func(http.Handler) http.Handler {
	return requireAccess(func(a *Access) bool {
		return a.IsAdmin() || a.HasAllPermissions(permissions)
	})
}

// RequireRole creates middleware that requires one of roleNames
func RequireRole(roleNames ...string) func(http.Handler) http.Handler {
	return requireAccess(func(a *Access) bool {
		return a.IsAdmin() || a.HasAnyRole(roleNames)
	})
}

func requireAccess(allowed func(*Access) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := AccessFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if !allowed(access) {
				observability.FromContext(r.Context()).
					WithField("path", r.URL.Path).
					Info("Access denied by permission check")
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
