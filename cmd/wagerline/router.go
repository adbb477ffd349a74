package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/wagerline/pkg/draft"
	"github.com/platinummonkey/wagerline/pkg/gate"
	"github.com/platinummonkey/wagerline/pkg/guard"
	"github.com/platinummonkey/wagerline/pkg/httputil"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
)

// maxBodyBytes bounds JSON and form bodies accepted by in-process handlers
const maxBodyBytes = 1 << 20

// components are the request-serving parts wired by main
type components struct {
	logger     *observability.Logger
	metrics    *observability.Metrics
	gate       *gate.Gate
	sessions   *session.Handlers
	loginLimit func(http.Handler) http.Handler
	roles      *rbac.Handlers
	drafts     *draft.Handlers
	stream     *guard.StreamHandler
	renderer   http.Handler
}

// newRouter builds the public handler. Sign-in and sign-out sit in front
// of the gate; everything else, the renderer included, goes through it.
func newRouter(c components) http.Handler {
	root := mux.NewRouter()
	root.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware(c.logger),
		observability.HTTPMetricsMiddleware(c.metrics),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)

	var loginMiddleware []func(http.Handler) http.Handler
	if c.loginLimit != nil {
		loginMiddleware = append(loginMiddleware, c.loginLimit)
	}
	c.sessions.RegisterRoutes(root, loginMiddleware...)

	gated := mux.NewRouter()

	api := gated.PathPrefix("/api").Subrouter()
	c.roles.RegisterSelfRoutes(api)
	api.Handle("/me/access/stream", c.stream).Methods("GET")
	api.HandleFunc("/me/nav", c.gate.NavHandler).Methods("GET")
	c.drafts.RegisterRoutes(api)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(rbac.RequirePermission(rbac.PermissionManageRoles))
	c.roles.RegisterRoutes(admin)

	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})

	transactions := guard.New(guard.Requirement{Permissions: []string{rbac.PermissionManageTransactions}})
	gated.PathPrefix("/transactions").Handler(transactions.Wrap(c.renderer))
	gated.PathPrefix("/").Handler(c.renderer)

	root.PathPrefix("/").Handler(c.gate.Middleware(gated))
	return root
}
