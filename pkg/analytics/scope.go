package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/observability"
)

// AccessLevel is the analytics visibility tier for an identity.
type AccessLevel string

const (
	// LevelOrganization sees analytics across every team.
	LevelOrganization AccessLevel = "organization"

	// LevelTeam sees analytics filtered to a concrete team set.
	LevelTeam AccessLevel = "team"

	// LevelNone is denied analytics entirely, not silently given an
	// empty result.
	LevelNone AccessLevel = "none"
)

// ErrAnalyticsDenied is returned when an identity has no analytics access.
var ErrAnalyticsDenied = errors.New("analytics access denied")

// Filter is the query-time analytics scope. Note the convention here is
// the inverse of ticket scoping's admin case: at LevelTeam an empty team
// set matches nothing, it never widens to all teams.
type Filter struct {
	Level   AccessLevel
	TeamIDs []int64
}

// SQL renders the filter as a WHERE fragment over a team_id column,
// numbering placeholders from argOffset.
func (f Filter) SQL(column string, argOffset int) (string, []interface{}) {
	switch f.Level {
	case LevelOrganization:
		return "TRUE", nil
	case LevelTeam:
		if len(f.TeamIDs) == 0 {
			// Empty team set means no visible teams: an impossible
			// predicate, implemented explicitly rather than inferred.
			return "FALSE", nil
		}
		return fmt.Sprintf("%s = ANY($%d)", column, argOffset), []interface{}{pq.Array(f.TeamIDs)}
	}
	return "FALSE", nil
}

// Scoper derives analytics visibility from resolved access scopes.
type Scoper struct {
	engine *access.Engine
	logger *observability.Logger
}

// NewScoper creates an analytics scoper
func NewScoper(engine *access.Engine, logger *observability.Logger) *Scoper {
	return &Scoper{engine: engine, logger: logger}
}

// FilterFor computes the analytics filter for an identity. Employees get
// ErrAnalyticsDenied; unknown identities and infrastructure failures deny.
func (s *Scoper) FilterFor(ctx context.Context, identityID int64) (Filter, error) {
	perms, err := s.engine.GetUserPermissions(ctx, identityID)
	if err != nil {
		if errors.Is(err, access.ErrIdentityNotFound) {
			return Filter{Level: LevelNone}, ErrAnalyticsDenied
		}
		s.logger.WithError(err).WithField("identity_id", identityID).Error("analytics scope resolution failed, denying")
		return Filter{Level: LevelNone}, ErrAnalyticsDenied
	}

	switch perms.Role {
	case identity.RoleOrgAdmin:
		return Filter{Level: LevelOrganization}, nil
	case identity.RoleTeamLeader:
		return Filter{Level: LevelTeam, TeamIDs: perms.TeamIDs}, nil
	}

	// Employees, inactive and roleless identities have no analytics tier.
	return Filter{Level: LevelNone}, ErrAnalyticsDenied
}

// CanViewTeamAnalytics is the single-team point check, built from the
// same resolved scope as the list filter.
func (s *Scoper) CanViewTeamAnalytics(ctx context.Context, identityID, teamID int64) bool {
	filter, err := s.FilterFor(ctx, identityID)
	if err != nil {
		return false
	}

	switch filter.Level {
	case LevelOrganization:
		return true
	case LevelTeam:
		for _, id := range filter.TeamIDs {
			if id == teamID {
				return true
			}
		}
	}
	return false
}
