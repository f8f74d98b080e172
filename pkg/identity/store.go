package identity

import (
	"context"
	"errors"
)

var (
	// ErrIdentityNotFound is returned when no identity exists for an ID.
	// Callers must treat this as distinct from an authorization denial.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrTeamNotFound is returned when no team exists for an ID.
	ErrTeamNotFound = errors.New("team not found")
)

// Store is the durable identity and role store. Reads eagerly load the
// role, primary team and led-team relations so scope resolution never
// issues follow-up queries.
type Store interface {
	// GetIdentity returns the identity with role and team relations loaded.
	GetIdentity(ctx context.Context, id int64) (*Identity, error)

	// GetTeam returns a single team.
	GetTeam(ctx context.Context, id int64) (*Team, error)

	// ListTeamMembers returns every identity whose primary team is teamID.
	ListTeamMembers(ctx context.Context, teamID int64) ([]*Identity, error)

	// ListTeams returns all teams. Used when an Organization Admin's
	// all-teams visibility must be materialized as an explicit list.
	ListTeams(ctx context.Context) ([]*Team, error)

	// UpdateIdentityRole persists a role change.
	UpdateIdentityRole(ctx context.Context, id int64, role Role) error

	// UpdateIdentityTeam persists a primary-team change. A nil teamID
	// removes the identity from its team.
	UpdateIdentityTeam(ctx context.Context, id int64, teamID *int64) error

	// AddTeamLeadership records that the identity leads the team.
	// Duplicate assignments are idempotent.
	AddTeamLeadership(ctx context.Context, identityID, teamID int64) error

	// RemoveTeamLeadership removes a leadership relation.
	RemoveTeamLeadership(ctx context.Context, identityID, teamID int64) error
}
