package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/wagerline/pkg/cli"
	"github.com/platinummonkey/wagerline/pkg/storage"
)

func main() {
	rootCmd := cli.NewRootCommand(&cli.Env{
		OpenDB: func(ctx context.Context, dsn string) (*sql.DB, error) {
			cfg := storage.DefaultConfig()
			cfg.PostgresURL = dsn
			cfg.PostgresMaxConns = 2
			return storage.OpenPostgres(ctx, cfg)
		},
		OpenRedis: func(ctx context.Context, url string) (*redis.Client, error) {
			cfg := storage.DefaultConfig()
			cfg.RedisURL = url
			return storage.OpenRedis(ctx, cfg)
		},
	})

	if err := rootCmd.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
