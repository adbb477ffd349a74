// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/wagerline/pkg/contextkeys"
//	ctx = contextkeys.WithAccess(ctx, access)
//	access, _ := contextkeys.Access(ctx).(*rbac.Access)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *session.Session
	// Set by: gate.Gate (pkg/gate/gate.go)
	// Required by: auth handlers, guard stream, draft handlers
	// Type: *session.Session
	SessionKey Key = "session"

	// AccessKey contains *rbac.Access
	// Set by: gate.Gate after role resolution
	// Used by: rbac.RequirePermission, guard.Guard, self access endpoint
	// Type: *rbac.Access
	AccessKey Key = "access"

	// RoleMemoKey contains the per-request role memo
	// Set by: gate.Gate via rbac.WithRequestMemo
	// Used by: rbac.Resolver
	// Type: *rbac.requestMemo
	RoleMemoKey Key = "role_memo"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: gate.Gate after session verification
	// Used by: Logger, audit trail, user-scoped operations
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// RequestInfoKey contains the mutable access-log annotations
	// Set by: httputil.LoggingMiddleware
	// Used by: httputil.AnnotateUser (called by gate.Gate)
	// Type: *httputil.requestInfo
	RequestInfoKey Key = "request_info"
)

// WithSession adds the verified session to the context
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// Session retrieves the raw session value from context
func Session(ctx context.Context) interface{} {
	return ctx.Value(SessionKey)
}

// WithAccess adds resolved access to the context
func WithAccess(ctx context.Context, access interface{}) context.Context {
	return context.WithValue(ctx, AccessKey, access)
}

// Access retrieves the raw access value from context
func Access(ctx context.Context) interface{} {
	return ctx.Value(AccessKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
