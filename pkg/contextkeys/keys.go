// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/deskforge/deskforge/pkg/contextkeys"
//   ctx = contextkeys.WithIdentity(ctx, identityID)
//   identityID, ok := contextkeys.GetIdentity(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains the authenticated identity ID
	// Set by: middleware.IdentityMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints, permission middleware
	// Type: int64
	IdentityKey Key = "identity_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: Audit wiring in cmd
	// Used by: Handlers that record audit events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"
)

// Helper functions for type-safe context operations

// WithIdentity adds the authenticated identity ID to the context
func WithIdentity(ctx context.Context, identityID int64) context.Context {
	return context.WithValue(ctx, IdentityKey, identityID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetIdentity retrieves the authenticated identity ID from context.
// The second return value is false when no identity has been set.
func GetIdentity(ctx context.Context) (int64, bool) {
	identityID, ok := ctx.Value(IdentityKey).(int64)
	return identityID, ok
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
