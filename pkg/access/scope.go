package access

import (
	"github.com/deskforge/deskforge/pkg/identity"
)

// TeamVisibility is the tri-state team reach of a resolved scope. The
// historical convention of an empty team list meaning "all teams" for
// admins but "no teams" for everyone else is replaced by an explicit
// variant so the two cases can never be confused.
type TeamVisibility string

const (
	// VisibilityAllTeams means every team is visible (Organization Admin).
	VisibilityAllTeams TeamVisibility = "all_teams"

	// VisibilitySpecificTeams means only the teams in AccessScope.TeamIDs
	// are visible.
	VisibilitySpecificTeams TeamVisibility = "specific_teams"

	// VisibilityNoTeams means no team-scoped records are visible at all.
	VisibilityNoTeams TeamVisibility = "no_teams"
)

// AccessScope is the derived visibility/capability object for one
// identity. Capability flags describe team-or-wider abilities; an
// own-tier grant does not set a flag.
type AccessScope struct {
	Visibility       TeamVisibility `json:"visibility"`
	TeamIDs          []int64        `json:"team_ids,omitempty"`
	OrganizationWide bool           `json:"organization_wide"`

	CanViewUsers   bool `json:"can_view_users"`
	CanEditUsers   bool `json:"can_edit_users"`
	CanCreateUsers bool `json:"can_create_users"`
	CanDeleteUsers bool `json:"can_delete_users"`
	CanManageRoles bool `json:"can_manage_roles"`
	CanManageTeams bool `json:"can_manage_teams"`
}

// ZeroScope is the fail-closed default: no visibility, no capabilities.
func ZeroScope() AccessScope {
	return AccessScope{Visibility: VisibilityNoTeams}
}

// ContainsTeam reports whether the scope reaches the given team.
func (s AccessScope) ContainsTeam(teamID int64) bool {
	switch s.Visibility {
	case VisibilityAllTeams:
		return true
	case VisibilitySpecificTeams:
		for _, id := range s.TeamIDs {
			if id == teamID {
				return true
			}
		}
		return false
	case VisibilityNoTeams:
		return false
	}
	return false
}

// Resolver computes an AccessScope from an identity with its role and
// team relations loaded.
type Resolver struct {
	matrix Matrix
}

// NewResolver creates a scope resolver over a validated matrix
func NewResolver(matrix Matrix) *Resolver {
	return &Resolver{matrix: matrix}
}

// Resolve is a total function: every identity maps to exactly one scope.
// An inactive identity or one without a role gets the zero scope.
func (r *Resolver) Resolve(ident *identity.Identity) AccessScope {
	if ident == nil || !ident.IsActive || !ident.HasRole() {
		return ZeroScope()
	}

	scope := AccessScope{Visibility: VisibilityNoTeams}
	r.applyCapabilities(&scope, ident.Role)

	switch ident.Role {
	case identity.RoleOrgAdmin:
		scope.Visibility = VisibilityAllTeams
		scope.OrganizationWide = true

	case identity.RoleTeamLeader:
		teamIDs := dedupeTeams(ident.PrimaryTeamID, ident.LedTeamIDs)
		if len(teamIDs) > 0 {
			scope.Visibility = VisibilitySpecificTeams
			scope.TeamIDs = teamIDs
		}

	case identity.RoleEmployee:
		if ident.PrimaryTeamID != nil {
			scope.Visibility = VisibilitySpecificTeams
			scope.TeamIDs = []int64{*ident.PrimaryTeamID}
		}

	default:
		return ZeroScope()
	}

	return scope
}

// applyCapabilities derives the boolean capability flags from the matrix.
func (r *Resolver) applyCapabilities(scope *AccessScope, role identity.Role) {
	grants := r.matrix.GrantsFor(role)
	scope.CanViewUsers = HasGrant(grants, ActionRead, ResourceUsers, TierTeam)
	scope.CanEditUsers = HasGrant(grants, ActionUpdate, ResourceUsers, TierTeam)
	scope.CanCreateUsers = HasGrant(grants, ActionCreate, ResourceUsers, TierTeam)
	scope.CanDeleteUsers = HasGrant(grants, ActionDelete, ResourceUsers, TierTeam)
	scope.CanManageRoles = HasGrant(grants, ActionManage, ResourceRoles, TierOrganization)
	scope.CanManageTeams = HasGrant(grants, ActionManage, ResourceTeams, TierOrganization)
}

// dedupeTeams unions the primary team with led teams, preserving first
// occurrence order. Leading the same team twice yields one entry.
func dedupeTeams(primary *int64, led []int64) []int64 {
	seen := make(map[int64]struct{}, len(led)+1)
	var teamIDs []int64

	if primary != nil {
		seen[*primary] = struct{}{}
		teamIDs = append(teamIDs, *primary)
	}
	for _, id := range led {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		teamIDs = append(teamIDs, id)
	}

	return teamIDs
}
