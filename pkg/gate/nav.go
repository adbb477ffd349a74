package gate

import (
	"net/http"

	"github.com/platinummonkey/wagerline/pkg/httputil"
	"github.com/platinummonkey/wagerline/pkg/rbac"
)

type navResponse struct {
	Items []NavItem `json:"items"`
	Home  string    `json:"home,omitempty"`
}

// NavHandler serves the navigation menu for the caller. It relies on the
// access the gate resolved; anonymous callers get the public entries.
func (g *Gate) NavHandler(w http.ResponseWriter, r *http.Request) {
	table := g.Table()
	access, _ := rbac.AccessFromContext(r.Context())

	resp := navResponse{Items: table.Nav(access)}
	if access.HasRoles() {
		resp.Home = table.Home(access)
	}
	httputil.WriteSuccess(w, resp)
}
