package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/wagerline/pkg/audit"
	"github.com/platinummonkey/wagerline/pkg/contextkeys"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
)

// connectionFlags registers the flags shared by commands that touch the
// database
func connectionFlags(fs *flag.FlagSet, env *Env) {
	fs.String("db", env.Getenv("WAGERLINE_POSTGRES_URL"), "Postgres URL (defaults to $WAGERLINE_POSTGRES_URL)")
	fs.String("redis", env.Getenv("WAGERLINE_REDIS_URL"), "Redis URL for cache invalidation; empty skips publishing")
	fs.String("channel", rbac.DefaultInvalidationChannel, "Redis invalidation channel")
	fs.String("actor", "cli:"+env.Getenv("USER"), "Actor recorded in the audit trail")
}

// session is an open connection set for one command run
type session struct {
	ctx     context.Context
	db      *sql.DB
	redis   *redis.Client
	service *rbac.Service
	audit   *audit.DBLogger
}

func (s *session) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	s.db.Close()
}

func connect(env *Env, fs *flag.FlagSet) (*session, error) {
	dsn := fs.Lookup("db").Value.String()
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required (-db or WAGERLINE_POSTGRES_URL)")
	}

	ctx := contextkeys.WithUserID(context.Background(), fs.Lookup("actor").Value.String())

	db, err := env.OpenDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &session{ctx: ctx, db: db}

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.audit = auditLogger

	var invalidator rbac.Invalidator
	if redisURL := fs.Lookup("redis").Value.String(); redisURL != "" && env.OpenRedis != nil {
		client, err := env.OpenRedis(ctx, redisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open redis: %w", err)
		}
		s.redis = client
		logger := observability.NewLogger(observability.WarnLevel, io.Discard)
		invalidator = rbac.NewRedisInvalidator(client, fs.Lookup("channel").Value.String(), nil, logger)
	} else {
		fmt.Fprintln(os.Stderr, "Warning: no Redis URL; running servers with a role cache will not be notified")
	}

	s.service = rbac.NewService(rbac.NewStore(db), invalidator, auditLogger, nil)
	return s, nil
}
