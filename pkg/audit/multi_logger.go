package audit

import (
	"context"
	"errors"
)

// MultiLogger fans events out to multiple sinks. Every sink receives
// every event; errors are collected rather than short-circuiting so one
// failing sink cannot starve the others.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to all given sinks
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every sink
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
