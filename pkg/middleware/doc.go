// Package middleware provides request rate limiting for the sign-in
// endpoint.
//
// Two Limiter backends share RateLimitConfig:
//
//	RateLimiter              in-process token bucket per key (x/time/rate)
//	DistributedRateLimiter   fixed-window counter in Redis, for replicas
//
// RateLimit wraps a handler and keys each request by client IP:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "ratelimit")
//	handlers.RegisterRoutes(router, middleware.RateLimit(limiter, "login", metrics))
//
// Rejected requests get 429 with Retry-After. A Redis failure lets the
// request through and is logged at Warn.
package middleware
