package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/deskforge/deskforge/pkg/contextkeys"
)

// Logger is the interface for the audit sink. Implementations must be
// fire-and-forget from the caller's perspective: a failure to record an
// event never fails the authorization decision that produced it.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events and releases resources.
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, falling back to a
// no-op logger when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }

// NewEvent creates an event with id, timestamp and request context filled in.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// Denial builds an access-denied event for the given actor and attempt.
func Denial(ctx context.Context, actorID int64, action, resource, resourceID, reason string) *Event {
	event := NewEvent(ctx, EventTypeAccessDenied, EventStatusDenied)
	event.ActorID = &actorID
	event.Action = action
	event.Resource = resource
	event.ResourceID = resourceID
	event.Success = false
	event.Reason = reason
	return event
}
