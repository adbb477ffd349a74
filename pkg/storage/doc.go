// Package storage opens the Postgres and Redis connections shared by the
// role store, the draft bet store, cache invalidation and health checks.
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://localhost/wagerline?sslmode=disable"
//	db, err := storage.OpenPostgres(ctx, cfg)
//	rdb, err := storage.OpenRedis(ctx, cfg)
//
// Both functions ping before returning so a misconfigured dependency fails
// at startup.
package storage
