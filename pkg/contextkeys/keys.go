// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on the key and the stored type.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, ok := contextkeys.GetIdentity(ctx).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: gateway.Gate after credential resolution
	// Used by: tool handlers, logger
	IdentityKey Key = "identity"

	// SessionKey contains *auth.Session
	// Set by: middleware.SessionMiddleware (pkg/middleware/session.go)
	// Required by: account and billing endpoints
	SessionKey Key = "session"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, response envelope
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: gateway.Gate and SessionMiddleware once the caller is known
	// Used by: Logger
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithIdentity adds the resolved caller identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity retrieves the caller identity from the context
func GetIdentity(ctx context.Context) interface{} {
	return ctx.Value(IdentityKey)
}

// WithSession adds verified session claims to the context
func WithSession(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, claims)
}

// GetSession retrieves verified session claims from the context
func GetSession(ctx context.Context) interface{} {
	return ctx.Value(SessionKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
