package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	stdhttputil "net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/wagerline/pkg/audit"
	"github.com/platinummonkey/wagerline/pkg/config"
	"github.com/platinummonkey/wagerline/pkg/draft"
	"github.com/platinummonkey/wagerline/pkg/gate"
	"github.com/platinummonkey/wagerline/pkg/guard"
	"github.com/platinummonkey/wagerline/pkg/middleware"
	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/rbac"
	"github.com/platinummonkey/wagerline/pkg/session"
	"github.com/platinummonkey/wagerline/pkg/storage"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("wagerline exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	rdb, err := storage.OpenRedis(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return err
	}

	if err := rbac.RunMigrations(ctx, db); err != nil {
		return err
	}
	store := rbac.NewStore(db)
	if cfg.Access.SeedBuiltInRoles {
		created, err := store.SeedBuiltInRoles(ctx)
		if err != nil {
			return err
		}
		if len(created) > 0 {
			logger.WithField("roles", created).Info("Seeded built-in roles")
		}
	}

	auditLogger, pruner, err := setupAudit(cfg.Audit, db, logger)
	if err != nil {
		return err
	}

	// Role resolution: per-request memo always, cross-request cache only
	// when a TTL is configured, with Redis fan-out invalidation
	resolverOpts := []rbac.ResolverOption{rbac.WithMetrics(metrics)}
	var cache rbac.Cache
	if cfg.Access.CacheTTL > 0 {
		lru := rbac.NewLRUCache(cfg.Access.CacheSize, cfg.Access.CacheTTL)
		cache = lru
		resolverOpts = append(resolverOpts, rbac.WithCache(lru))
	}
	invalidator := rbac.NewRedisInvalidator(rdb, cfg.Access.InvalidationChannel, cache, logger)
	resolver := rbac.NewResolver(store, resolverOpts...)
	roleService := rbac.NewService(store, invalidator, auditLogger, metrics)

	provider, err := newProvider(ctx, cfg.Provider)
	if err != nil {
		return err
	}
	cookies := session.Cookies{
		Secure:     cfg.Provider.CookieSecure,
		Domain:     cfg.Provider.CookieDomain,
		RefreshTTL: cfg.Provider.RefreshTTL,
	}

	table, err := loadTable(cfg.Access.RoutesFile)
	if err != nil {
		return err
	}
	gk := gate.New(table, provider, resolver, gate.WithCookies(cookies), gate.WithMetrics(metrics))

	drafts := draft.NewRedisStore(rdb, cfg.Drafts.TTL, metrics)
	unsubscribeDrafts := draft.ClearOnSignOut(provider, drafts, logger)

	renderer, err := newRendererProxy(cfg.Server.RendererURL, logger)
	if err != nil {
		return err
	}

	bgCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()
	background, bgCtx := errgroup.WithContext(bgCtx)

	var loginLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		limitCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			WindowDuration:    cfg.RateLimit.Window,
			BurstSize:         cfg.RateLimit.Burst,
		}
		var limiter middleware.Limiter
		if cfg.RateLimit.Distributed {
			limiter = middleware.NewDistributedRateLimiter(rdb, limitCfg, "wagerline:ratelimit")
		} else {
			local := middleware.NewRateLimiter(limitCfg)
			local.StartCleanup(bgCtx)
			limiter = local
		}
		loginLimit = middleware.RateLimit(limiter, "login", metrics)
	}

	routes := gk.Table()
	handler := newRouter(components{
		logger:  logger,
		metrics: metrics,
		gate:    gk,
		sessions: session.NewHandlers(provider, cookies, session.HandlerConfig{
			LoginPath:    routes.Login,
			DispatchPath: "/dashboard",
			ReturnParam:  routes.ReturnParam,
		}, auditLogger, metrics),
		loginLimit: loginLimit,
		roles:      rbac.NewHandlers(roleService),
		drafts:     draft.NewHandlers(drafts),
		stream:     guard.NewStreamHandler(provider, resolver, guard.WithInvalidations(invalidator)),
		renderer:   renderer,
	})

	server := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(handler, "wagerline"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(db, rdb, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	background.Go(func() error {
		defer observability.RecoverPanic(logger, "role invalidation listener")
		return invalidator.Listen(bgCtx, nil)
	})
	if cfg.Access.WatchRoutes {
		background.Go(func() error {
			defer observability.RecoverPanic(logger, "route table watcher")
			return gk.Watch(bgCtx, cfg.Access.RoutesFile, logger, nil)
		})
	}
	if pruner != nil {
		if err := pruner.Start(cfg.Audit.PruneSchedule); err != nil {
			return err
		}
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, server, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return closeStorage(db, rdb)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		unsubscribeDrafts()
		if pruner != nil {
			pruner.Stop()
		}
		cancelBackground()
		return background.Wait()
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{server, healthServer} {
		srv := srv
		go func() {
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	select {
	case err := <-serveErr:
		logger.WithError(err).Error("HTTP server failed")
		stopErr := shutdown.Shutdown()
		return errors.Join(err, stopErr)
	case <-bgCtx.Done():
		// a background component failed before shutdown was requested
		if ctx.Err() == nil {
			err := background.Wait()
			logger.WithError(err).Error("Background component failed")
			return errors.Join(err, shutdown.Shutdown())
		}
	case <-ctx.Done():
	}
	return shutdown.Shutdown()
}

func newProvider(ctx context.Context, cfg config.ProviderConfig) (*session.HostedProvider, error) {
	var verifier session.TokenVerifier
	var err error
	if cfg.JWKSURL != "" {
		verifier, err = session.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.Issuer)
	} else {
		verifier, err = session.NewHMACVerifier(cfg.JWTSecret, cfg.Issuer)
	}
	if err != nil {
		return nil, err
	}

	return session.NewHostedProvider(session.HostedConfig{
		URL:      cfg.URL,
		APIKey:   cfg.APIKey,
		Verifier: verifier,
		Timeout:  cfg.Timeout,
	})
}

func loadTable(path string) (*gate.Table, error) {
	if path == "" {
		return gate.DefaultTable()
	}
	return gate.LoadTable(path)
}

// setupAudit writes to the audit_events table and, when configured, an
// append-only JSON file. The pruner is nil when auditing is disabled.
func setupAudit(cfg config.AuditConfig, db *sql.DB, logger *observability.Logger) (audit.Logger, *audit.Pruner, error) {
	if !cfg.Enabled {
		return audit.NoopLogger{}, nil, nil
	}

	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, nil, err
	}

	var sink audit.Logger = dbLogger
	if cfg.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		sink = audit.NewMultiLogger(dbLogger, fileLogger)
	}

	return sink, audit.NewPruner(dbLogger, cfg.Retention, logger), nil
}

func newRendererProxy(rawURL string, logger *observability.Logger) (http.Handler, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	proxy := stdhttputil.NewSingleHostReverseProxy(target)
	proxy.FlushInterval = -1
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		observability.FromContext(r.Context()).WithError(err).Error("Renderer unavailable")
		http.Error(w, "page renderer unavailable", http.StatusBadGateway)
	}
	logger.WithField("target", target.String()).Info("Forwarding pages to renderer")
	return proxy, nil
}

func closeStorage(db *sql.DB, rdb *redis.Client) error {
	return errors.Join(db.Close(), rdb.Close())
}
