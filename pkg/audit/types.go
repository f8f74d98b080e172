package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypePermissionCheck EventType = "authz.permission_check"
	EventTypeAccessDenied    EventType = "authz.access_denied"
	EventTypeIdentityUnknown EventType = "authz.identity_unknown"

	// Assignment events
	EventTypeRoleAssign       EventType = "assign.role"
	EventTypeTeamAssign       EventType = "assign.team"
	EventTypeTeamRemove       EventType = "assign.team_remove"
	EventTypeLeadershipAssign EventType = "assign.leadership"
	EventTypeLeadershipRemove EventType = "assign.leadership_remove"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry. Events record permission
// grants/denials and assignment mutations for compliance; they are not
// part of the decision logic.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor and target
	ActorID  *int64 `json:"actor_id,omitempty"`
	TargetID *int64 `json:"target_id,omitempty"`

	// What was attempted
	Action     string `json:"action,omitempty"`
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`

	// Outcome detail
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for querying audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorID    *int64
	TargetID   *int64
	EventTypes []EventType
	Status     *EventStatus
	Resource   string

	Limit  int
	Offset int
}
