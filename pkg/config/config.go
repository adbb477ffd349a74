package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/wagerline/pkg/observability"
	"github.com/platinummonkey/wagerline/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Hosted auth provider
	Provider ProviderConfig

	// Postgres and Redis connections
	Storage storage.Config

	// Route table and role resolution
	Access AccessConfig

	// Draft bet persistence
	Drafts DraftsConfig

	// Audit trail
	Audit AuditConfig

	// Login rate limiting
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // zero keeps access streams open
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// RendererURL is the page renderer the gate forwards to
	RendererURL string
}

// ProviderConfig holds hosted auth provider settings
type ProviderConfig struct {
	URL       string
	APIKey    string
	JWTSecret string
	JWKSURL   string
	Issuer    string
	Timeout   time.Duration

	CookieSecure bool
	CookieDomain string
	RefreshTTL   time.Duration
}

// AccessConfig controls the route table and role resolution
type AccessConfig struct {
	// RoutesFile replaces the embedded route table when set
	RoutesFile  string
	WatchRoutes bool

	// A zero CacheTTL disables cross-request role caching
	CacheSize int
	CacheTTL  time.Duration

	// InvalidationChannel is the Redis pub/sub channel for cache eviction
	InvalidationChannel string

	SeedBuiltInRoles bool
}

// DraftsConfig controls draft bet persistence
type DraftsConfig struct {
	TTL time.Duration
}

// AuditConfig controls the audit trail
type AuditConfig struct {
	Enabled       bool
	FilePath      string
	Retention     time.Duration
	PruneSchedule string
}

// RateLimitConfig controls login rate limiting
type RateLimitConfig struct {
	Enabled     bool
	Distributed bool
	Requests    int
	Window      time.Duration
	Burst       int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Provider:      loadProviderConfig(),
		Storage:       loadStorageConfig(),
		Access:        loadAccessConfig(),
		Drafts:        DraftsConfig{TTL: getEnvDuration("WAGERLINE_DRAFT_TTL", 24*time.Hour)},
		Audit:         loadAuditConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WAGERLINE_HOST", "0.0.0.0"),
		Port:            getEnv("WAGERLINE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WAGERLINE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WAGERLINE_WRITE_TIMEOUT", 0),
		IdleTimeout:     getEnvDuration("WAGERLINE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WAGERLINE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("WAGERLINE_HEALTH_PORT", "9090"),
		RendererURL:     getEnv("WAGERLINE_RENDERER_URL", "http://localhost:3000"),
	}
}

func loadProviderConfig() ProviderConfig {
	return ProviderConfig{
		URL:          getEnv("WAGERLINE_PROVIDER_URL", ""),
		APIKey:       getEnv("WAGERLINE_PROVIDER_KEY", ""),
		JWTSecret:    getEnv("WAGERLINE_PROVIDER_JWT_SECRET", ""),
		JWKSURL:      getEnv("WAGERLINE_PROVIDER_JWKS_URL", ""),
		Issuer:       getEnv("WAGERLINE_PROVIDER_ISSUER", ""),
		Timeout:      getEnvDuration("WAGERLINE_PROVIDER_TIMEOUT", 10*time.Second),
		CookieSecure: getEnvBool("WAGERLINE_COOKIE_SECURE", true),
		CookieDomain: getEnv("WAGERLINE_COOKIE_DOMAIN", ""),
		RefreshTTL:   getEnvDuration("WAGERLINE_REFRESH_TTL", 30*24*time.Hour),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("WAGERLINE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("WAGERLINE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("WAGERLINE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("WAGERLINE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("WAGERLINE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("WAGERLINE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("WAGERLINE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("WAGERLINE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("WAGERLINE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

func loadAccessConfig() AccessConfig {
	return AccessConfig{
		RoutesFile:          getEnv("WAGERLINE_ROUTES_FILE", ""),
		WatchRoutes:         getEnvBool("WAGERLINE_ROUTES_WATCH", false),
		CacheSize:           getEnvInt("WAGERLINE_ROLE_CACHE_SIZE", 10000),
		CacheTTL:            getEnvDuration("WAGERLINE_ROLE_CACHE_TTL", 0),
		InvalidationChannel: getEnv("WAGERLINE_ROLE_INVALIDATION_CHANNEL", "wagerline:rbac:invalidate"),
		SeedBuiltInRoles:    getEnvBool("WAGERLINE_SEED_ROLES", true),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       getEnvBool("WAGERLINE_AUDIT_ENABLED", true),
		FilePath:      getEnv("WAGERLINE_AUDIT_FILE", ""),
		Retention:     getEnvDuration("WAGERLINE_AUDIT_RETENTION", 90*24*time.Hour),
		PruneSchedule: getEnv("WAGERLINE_AUDIT_PRUNE_SCHEDULE", ""),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:     getEnvBool("WAGERLINE_LOGIN_RATE_LIMIT_ENABLED", true),
		Distributed: getEnvBool("WAGERLINE_LOGIN_RATE_LIMIT_DISTRIBUTED", true),
		Requests:    getEnvInt("WAGERLINE_LOGIN_RATE_LIMIT_REQUESTS", 10),
		Window:      getEnvDuration("WAGERLINE_LOGIN_RATE_LIMIT_WINDOW", time.Minute),
		Burst:       getEnvInt("WAGERLINE_LOGIN_RATE_LIMIT_BURST", 5),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("WAGERLINE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("WAGERLINE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WAGERLINE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WAGERLINE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WAGERLINE_OTEL_SERVICE_NAME", "wagerline"),
		OTelServiceVersion: getEnv("WAGERLINE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WAGERLINE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("WAGERLINE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if _, err := parseAbsoluteURL(c.Server.RendererURL); err != nil {
		return fmt.Errorf("invalid renderer URL: %w", err)
	}

	// The provider is required; there is no anonymous mode
	if c.Provider.URL == "" {
		return fmt.Errorf("WAGERLINE_PROVIDER_URL is required")
	}
	if _, err := parseAbsoluteURL(c.Provider.URL); err != nil {
		return fmt.Errorf("invalid provider URL: %w", err)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("WAGERLINE_PROVIDER_KEY is required")
	}
	if c.Provider.JWTSecret == "" && c.Provider.JWKSURL == "" {
		return fmt.Errorf("one of WAGERLINE_PROVIDER_JWT_SECRET or WAGERLINE_PROVIDER_JWKS_URL is required")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Access.CacheTTL < 0 {
		return fmt.Errorf("role cache TTL must not be negative")
	}
	if c.Access.CacheTTL > 0 && c.Access.CacheSize <= 0 {
		return fmt.Errorf("role cache size must be positive when caching is enabled")
	}
	if c.Access.WatchRoutes && c.Access.RoutesFile == "" {
		return fmt.Errorf("routes file is required when watching routes")
	}

	if c.Drafts.TTL <= 0 {
		return fmt.Errorf("draft TTL must be positive")
	}

	if c.Audit.Enabled && c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("login rate limit requests and window must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("login rate limit burst must not be negative")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
