package tickets

import (
	"errors"
	"time"
)

// ErrTicketNotFound is returned when no ticket exists for an ID.
var ErrTicketNotFound = errors.New("ticket not found")

// Status represents the lifecycle state of a ticket
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Priority represents ticket urgency
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Ticket represents a helpdesk ticket
type Ticket struct {
	ID         int64      `json:"id"`
	Subject    string     `json:"subject"`
	Status     Status     `json:"status"`
	Priority   Priority   `json:"priority"`
	TeamID     *int64     `json:"team_id,omitempty"`
	CreatedBy  int64      `json:"created_by"`
	AssignedTo *int64     `json:"assigned_to,omitempty"`
	Escalated  bool       `json:"escalated"`
	SLADueAt   *time.Time `json:"sla_due_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AccessInfo is the slice of a ticket the point-access check needs:
// who owns it, who works it, which team it sits in, who follows it.
type AccessInfo struct {
	TicketID    int64
	TeamID      *int64
	CreatedBy   int64
	AssignedTo  *int64
	FollowerIDs []int64
}

// InvolvedIdentity reports whether the identity created, is assigned to,
// or follows the ticket.
func (a *AccessInfo) InvolvedIdentity(identityID int64) bool {
	if a.CreatedBy == identityID {
		return true
	}
	if a.AssignedTo != nil && *a.AssignedTo == identityID {
		return true
	}
	for _, id := range a.FollowerIDs {
		if id == identityID {
			return true
		}
	}
	return false
}
