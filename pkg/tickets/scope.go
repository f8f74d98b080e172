package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/observability"
)

// PredicateKind discriminates the shapes a ticket visibility predicate
// can take.
type PredicateKind int

const (
	// PredicateImpossible matches no rows (fail-closed default).
	PredicateImpossible PredicateKind = iota

	// PredicateUnrestricted matches every row (Organization Admin).
	PredicateUnrestricted

	// PredicateTeamSet matches tickets in a concrete set of teams.
	PredicateTeamSet

	// PredicateInvolved matches tickets the identity created, is
	// assigned to, or follows.
	PredicateInvolved
)

// Predicate is a composable ticket visibility filter the storage layer
// applies at query time. Lists are never fetched unscoped and filtered in
// memory; team and organization datasets are unbounded.
type Predicate struct {
	Kind       PredicateKind
	TeamIDs    []int64
	IdentityID int64
}

// Unrestricted reports whether the predicate passes all rows.
func (p Predicate) Unrestricted() bool {
	return p.Kind == PredicateUnrestricted
}

// SQL renders the predicate as a WHERE fragment over the canonical
// tickets alias "t", numbering placeholders from argOffset.
func (p Predicate) SQL(argOffset int) (string, []interface{}) {
	switch p.Kind {
	case PredicateUnrestricted:
		return "TRUE", nil
	case PredicateTeamSet:
		return fmt.Sprintf("t.team_id = ANY($%d)", argOffset), []interface{}{pq.Array(p.TeamIDs)}
	case PredicateInvolved:
		clause := fmt.Sprintf(
			"(t.created_by = $%d OR t.assigned_to = $%d OR EXISTS (SELECT 1 FROM ticket_followers f WHERE f.ticket_id = t.id AND f.identity_id = $%d))",
			argOffset, argOffset+1, argOffset+2,
		)
		return clause, []interface{}{p.IdentityID, p.IdentityID, p.IdentityID}
	}
	return "FALSE", nil
}

// Scoper translates a resolved access scope into ticket visibility.
type Scoper struct {
	engine *access.Engine
	store  *Store
	logger *observability.Logger
}

// NewScoper creates a ticket scoper
func NewScoper(engine *access.Engine, store *Store, logger *observability.Logger) *Scoper {
	return &Scoper{
		engine: engine,
		store:  store,
		logger: logger,
	}
}

// PredicateFor computes the list-endpoint visibility predicate for an
// identity. Unknown identities and infrastructure failures yield the
// impossible predicate, never an unscoped one.
func (s *Scoper) PredicateFor(ctx context.Context, identityID int64) Predicate {
	perms, err := s.engine.GetUserPermissions(ctx, identityID)
	if err != nil {
		if !errors.Is(err, access.ErrIdentityNotFound) {
			s.logger.WithError(err).WithField("identity_id", identityID).Error("ticket predicate resolution failed, scoping to nothing")
		}
		return Predicate{Kind: PredicateImpossible}
	}

	switch perms.Role {
	case identity.RoleOrgAdmin:
		return Predicate{Kind: PredicateUnrestricted}

	case identity.RoleTeamLeader:
		if len(perms.TeamIDs) == 0 {
			return Predicate{Kind: PredicateImpossible}
		}
		return Predicate{Kind: PredicateTeamSet, TeamIDs: perms.TeamIDs}

	case identity.RoleEmployee:
		return Predicate{Kind: PredicateInvolved, IdentityID: identityID}
	}

	// No role, or inactive: fail closed.
	return Predicate{Kind: PredicateImpossible}
}

// CanAccessTicket is the single-resource point check, distinct from list
// filtering but built from the same resolved scope.
func (s *Scoper) CanAccessTicket(ctx context.Context, identityID, ticketID int64) bool {
	info, err := s.store.GetAccessInfo(ctx, ticketID)
	if err != nil {
		if !errors.Is(err, ErrTicketNotFound) {
			s.logger.WithError(err).WithField("ticket_id", ticketID).Error("ticket access lookup failed, denying")
		}
		return false
	}

	perms, err := s.engine.GetUserPermissions(ctx, identityID)
	if err != nil {
		if !errors.Is(err, access.ErrIdentityNotFound) {
			s.logger.WithError(err).WithField("identity_id", identityID).Error("permission resolution failed, denying")
		}
		return false
	}

	switch perms.Role {
	case identity.RoleOrgAdmin:
		return true
	case identity.RoleTeamLeader:
		return info.TeamID != nil && perms.Scope.ContainsTeam(*info.TeamID)
	case identity.RoleEmployee:
		return info.InvolvedIdentity(identityID)
	}

	return false
}
