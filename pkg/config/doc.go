// Package config loads wagerline configuration from WAGERLINE_*
// environment variables and validates it.
//
// Required:
//
//	WAGERLINE_PROVIDER_URL="https://auth.example.com"
//	WAGERLINE_PROVIDER_KEY="public-anon-key"
//	WAGERLINE_PROVIDER_JWT_SECRET="..."      # or WAGERLINE_PROVIDER_JWKS_URL
//	WAGERLINE_POSTGRES_URL="postgres://localhost/wagerline"
//
// Server:
//
//	WAGERLINE_PORT="8080"
//	WAGERLINE_HEALTH_PORT="9090"
//	WAGERLINE_RENDERER_URL="http://localhost:3000"
//
// Access control:
//
//	WAGERLINE_ROUTES_FILE="/etc/wagerline/routes.yaml"
//	WAGERLINE_ROUTES_WATCH="true"
//	WAGERLINE_ROLE_CACHE_TTL="0s"   # zero disables cross-request caching
//	WAGERLINE_ROLE_CACHE_SIZE="10000"
//
// Drafts, audit and rate limiting:
//
//	WAGERLINE_REDIS_URL="redis://localhost:6379/0"
//	WAGERLINE_DRAFT_TTL="24h"
//	WAGERLINE_AUDIT_RETENTION="2160h"
//	WAGERLINE_AUDIT_PRUNE_SCHEDULE="15 3 * * *"
//	WAGERLINE_LOGIN_RATE_LIMIT_REQUESTS="10"
//	WAGERLINE_LOGIN_RATE_LIMIT_WINDOW="1m"
//
// Observability:
//
//	WAGERLINE_LOG_LEVEL="info"
//	WAGERLINE_OTEL_ENABLED="false"
//	WAGERLINE_OTEL_ENDPOINT="localhost:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatalf("Failed to load configuration: %v", err)
//	}
package config
