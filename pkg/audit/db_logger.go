package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_events table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		actor_id BIGINT,
		target_id BIGINT,
		action VARCHAR(50),
		resource VARCHAR(50),
		resource_id VARCHAR(255),
		success BOOLEAN NOT NULL,
		reason TEXT,
		request_id VARCHAR(100),
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_actor_id ON audit_events(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_status ON audit_events(status);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log writes an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, event_type, status,
			actor_id, target_id,
			action, resource, resource_id,
			success, reason, request_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.Status,
		event.ActorID, event.TargetID,
		event.Action, event.Resource, event.ResourceID,
		event.Success, event.Reason, event.RequestID, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Search queries audit events matching the filter
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, status, actor_id, target_id,
		       action, resource, resource_id, success, reason, request_id, metadata
		FROM audit_events
		WHERE 1=1
	`

	var args []interface{}
	argN := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argN)
		args = append(args, *filter.StartTime)
		argN++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argN)
		args = append(args, *filter.EndTime)
		argN++
	}
	if filter.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argN)
		args = append(args, *filter.ActorID)
		argN++
	}
	if filter.TargetID != nil {
		query += fmt.Sprintf(" AND target_id = $%d", argN)
		args = append(args, *filter.TargetID)
		argN++
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argN)
		args = append(args, pq.Array(types))
		argN++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, string(*filter.Status))
		argN++
	}
	if filter.Resource != "" {
		query += fmt.Sprintf(" AND resource = $%d", argN)
		args = append(args, filter.Resource)
		argN++
	}

	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argN)
	args = append(args, limit)
	argN++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var actorID, targetID sql.NullInt64
		var action, resource, resourceID, reason, requestID sql.NullString
		var metadataJSON []byte

		if err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&actorID, &targetID,
			&action, &resource, &resourceID,
			&event.Success, &reason, &requestID, &metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if actorID.Valid {
			id := actorID.Int64
			event.ActorID = &id
		}
		if targetID.Valid {
			id := targetID.Int64
			event.TargetID = &id
		}
		event.Action = action.String
		event.Resource = resource.String
		event.ResourceID = resourceID.String
		event.Reason = reason.String
		event.RequestID = requestID.String

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				event.Metadata = nil
			}
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}

// Close is a no-op; the caller owns the database handle
func (l *DBLogger) Close() error {
	return nil
}
