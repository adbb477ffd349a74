// Package cli implements wagerctl, the operator tool for role administration.
//
// Commands talk to the database directly through rbac.Service, so every
// mutation is audited and, when Redis is configured, published as a cache
// invalidation to running servers.
//
// # Usage
//
//	wagerctl migrate
//	wagerctl seed-roles
//	wagerctl roles list -json
//	wagerctl roles create -name analyst -permissions view_matches,premium_tips
//	wagerctl roles set-permissions -role analyst -permissions view_matches -version 2
//	wagerctl roles delete -role analyst
//	wagerctl users show -user 4f1c...
//	wagerctl users set-roles -user 4f1c... -roles user,premium_user
//	wagerctl prune-audit -retention 720h
//	wagerctl audit-log -since 72h -type user.roles_replace
//
// # Environment
//
//	export WAGERLINE_POSTGRES_URL="postgres://wagerline@localhost/wagerline?sslmode=disable"
//	export WAGERLINE_REDIS_URL="redis://localhost:6379/0"
//
// Flags -db and -redis override the environment; -actor names the operator
// recorded in the audit trail.
package cli
