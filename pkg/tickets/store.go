package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store handles ticket persistence for the scoping layer: point-check
// lookups, scoped list queries, and the SLA sweep.
type Store struct {
	db *sql.DB
}

// NewStore creates a new ticket store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetAccessInfo loads the access-relevant slice of a ticket
func (s *Store) GetAccessInfo(ctx context.Context, ticketID int64) (*AccessInfo, error) {
	query := `
		SELECT id, team_id, created_by, assigned_to
		FROM tickets
		WHERE id = $1
	`

	info := AccessInfo{}
	var teamID, assignedTo sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, ticketID).Scan(
		&info.TicketID,
		&teamID,
		&info.CreatedBy,
		&assignedTo,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	if teamID.Valid {
		id := teamID.Int64
		info.TeamID = &id
	}
	if assignedTo.Valid {
		id := assignedTo.Int64
		info.AssignedTo = &id
	}

	followers, err := s.getFollowerIDs(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	info.FollowerIDs = followers

	return &info, nil
}

// getFollowerIDs returns the identities following a ticket
func (s *Store) getFollowerIDs(ctx context.Context, ticketID int64) ([]int64, error) {
	query := `
		SELECT identity_id
		FROM ticket_followers
		WHERE ticket_id = $1
		ORDER BY identity_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan follower: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListVisible returns tickets matching the visibility predicate, applied
// at query time. The predicate decides scope; this method never fetches
// unscoped rows.
func (s *Store) ListVisible(ctx context.Context, pred Predicate, limit, offset int) ([]*Ticket, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	clause, args := pred.SQL(1)
	query := fmt.Sprintf(`
		SELECT t.id, t.subject, t.status, t.priority, t.team_id, t.created_by, t.assigned_to, t.escalated, t.sla_due_at, t.created_at, t.updated_at
		FROM tickets t
		WHERE %s
		ORDER BY t.created_at DESC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}

	return tickets, rows.Err()
}

// GetTicket returns a single ticket by ID. Callers authorize first via
// Scoper.CanAccessTicket; this method does no scoping of its own.
func (s *Store) GetTicket(ctx context.Context, ticketID int64) (*Ticket, error) {
	query := `
		SELECT t.id, t.subject, t.status, t.priority, t.team_id, t.created_by, t.assigned_to, t.escalated, t.sla_due_at, t.created_at, t.updated_at
		FROM tickets t
		WHERE t.id = $1
	`

	ticket, err := scanTicket(s.db.QueryRowContext(ctx, query, ticketID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// CountVisible returns the number of tickets the predicate reaches
func (s *Store) CountVisible(ctx context.Context, pred Predicate) (int64, error) {
	clause, args := pred.SQL(1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets t WHERE %s`, clause)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return count, nil
}

// SweepOverdue marks unescalated open tickets whose SLA deadline has
// passed. Invoked by the external fixed-interval job runner.
func (s *Store) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE tickets
		SET escalated = TRUE, updated_at = $1
		WHERE escalated = FALSE
		  AND status IN ('open', 'in_progress')
		  AND sla_due_at IS NOT NULL
		  AND sla_due_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep overdue tickets: %w", err)
	}

	return result.RowsAffected()
}

// scanTicket scans a ticket from a database row
func scanTicket(scanner interface {
	Scan(dest ...interface{}) error
}) (*Ticket, error) {
	var ticket Ticket
	var teamID, assignedTo sql.NullInt64
	var slaDueAt sql.NullTime

	err := scanner.Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Status,
		&ticket.Priority,
		&teamID,
		&ticket.CreatedBy,
		&assignedTo,
		&ticket.Escalated,
		&slaDueAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}

	if teamID.Valid {
		id := teamID.Int64
		ticket.TeamID = &id
	}
	if assignedTo.Valid {
		id := assignedTo.Int64
		ticket.AssignedTo = &id
	}
	if slaDueAt.Valid {
		t := slaDueAt.Time
		ticket.SLADueAt = &t
	}

	return &ticket, nil
}
