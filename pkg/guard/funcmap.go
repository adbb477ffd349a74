package guard

import (
	"html/template"

	"github.com/platinummonkey/wagerline/pkg/rbac"
)

// FuncMap exposes access checks to html/template. A nil access denies
// every check.
//
//	{{if hasPermission "place_bets"}}<button>Place bet</button>{{end}}
func FuncMap(access *rbac.Access) template.FuncMap {
	return template.FuncMap{
		"hasRole":       access.HasRole,
		"hasPermission": access.HasPermission,
		"isAdmin":       access.IsAdmin,
		"hasAnyRole": func(names ...string) bool {
			return access.HasAnyRole(names)
		},
		"hasAnyPermission": func(permissions ...string) bool {
			return access.HasAnyPermission(permissions)
		},
	}
}
