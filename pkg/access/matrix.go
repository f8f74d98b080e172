package access

import (
	"fmt"

	"github.com/deskforge/deskforge/pkg/identity"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
	ActionManage Action = "manage"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceTeams         Resource = "teams"
	ResourceRoles         Resource = "roles"
	ResourceTickets       Resource = "tickets"
	ResourceAnalytics     Resource = "analytics"
	ResourceKnowledgeBase Resource = "knowledge-base"
	ResourceFollowers     Resource = "followers"
)

// ScopeTier describes how far a grant's visibility extends
type ScopeTier string

const (
	TierOwn          ScopeTier = "own"          // Only the caller's own records
	TierTeam         ScopeTier = "team"         // Records within the caller's visible teams
	TierOrganization ScopeTier = "organization" // Every record in the organization
)

// Valid reports whether t is a recognized scope tier.
func (t ScopeTier) Valid() bool {
	switch t {
	case TierOwn, TierTeam, TierOrganization:
		return true
	}
	return false
}

// atLeast reports whether t extends at least as far as other.
func (t ScopeTier) atLeast(other ScopeTier) bool {
	rank := func(t ScopeTier) int {
		switch t {
		case TierOwn:
			return 0
		case TierTeam:
			return 1
		case TierOrganization:
			return 2
		}
		return -1
	}
	return rank(t) >= rank(other)
}

// Grant is an immutable (action, resource, scope-tier) permission fact
// attached to a role.
type Grant struct {
	Action   Action    `json:"action"`
	Resource Resource  `json:"resource"`
	Tier     ScopeTier `json:"tier"`
}

// Key returns the machine-readable permission key, e.g. "tickets:read".
func (g Grant) Key() string {
	return string(g.Resource) + ":" + string(g.Action)
}

// Matrix maps each role to its grant set. It is built once at startup
// and never mutated at runtime, so no locking is needed.
type Matrix map[identity.Role][]Grant

// GrantsFor returns the grant set for a role. An unknown role gets an
// empty set, never nil-panics.
func (m Matrix) GrantsFor(role identity.Role) []Grant {
	return m[role]
}

// FindGrant returns the grant matching (action, resource) for a role.
func (m Matrix) FindGrant(role identity.Role, action Action, resource Resource) (Grant, bool) {
	for _, g := range m[role] {
		if g.Action == action && g.Resource == resource {
			return g, true
		}
	}
	return Grant{}, false
}

// HasGrant reports whether the grant set contains (action, resource) at
// minTier or wider.
func HasGrant(grants []Grant, action Action, resource Resource, minTier ScopeTier) bool {
	for _, g := range grants {
		if g.Action == action && g.Resource == resource && g.Tier.atLeast(minTier) {
			return true
		}
	}
	return false
}

// Validate checks the matrix at process start. A missing role entry or a
// grant with an unknown tier is a programming error; startup must fail.
func (m Matrix) Validate() error {
	for _, role := range identity.AllRoles() {
		grants, ok := m[role]
		if !ok {
			return fmt.Errorf("permission matrix has no entry for role %q", role)
		}
		for _, g := range grants {
			if !g.Tier.Valid() {
				return fmt.Errorf("role %q grant %s has invalid scope tier %q", role, g.Key(), g.Tier)
			}
		}
	}
	return nil
}

// DefaultMatrix returns the compiled-in permission matrix for the three
// fixed roles.
func DefaultMatrix() Matrix {
	return Matrix{
		identity.RoleOrgAdmin: {
			{Action: ActionCreate, Resource: ResourceUsers, Tier: TierOrganization},
			{Action: ActionRead, Resource: ResourceUsers, Tier: TierOrganization},
			{Action: ActionUpdate, Resource: ResourceUsers, Tier: TierOrganization},
			{Action: ActionDelete, Resource: ResourceUsers, Tier: TierOrganization},
			{Action: ActionCreate, Resource: ResourceTeams, Tier: TierOrganization},
			{Action: ActionRead, Resource: ResourceTeams, Tier: TierOrganization},
			{Action: ActionUpdate, Resource: ResourceTeams, Tier: TierOrganization},
			{Action: ActionDelete, Resource: ResourceTeams, Tier: TierOrganization},
			{Action: ActionManage, Resource: ResourceTeams, Tier: TierOrganization},
			{Action: ActionAssign, Resource: ResourceRoles, Tier: TierOrganization},
			{Action: ActionManage, Resource: ResourceRoles, Tier: TierOrganization},
			{Action: ActionRead, Resource: ResourceRoles, Tier: TierOrganization},
			{Action: ActionCreate, Resource: ResourceTickets, Tier: TierOrganization},
			{Action: ActionRead, Resource: ResourceTickets, Tier: TierOrganization},
			{Action: ActionUpdate, Resource: ResourceTickets, Tier: TierOrganization},
			{Action: ActionDelete, Resource: ResourceTickets, Tier: TierOrganization},
			{Action: ActionAssign, Resource: ResourceTickets, Tier: TierOrganization},
			{Action: ActionRead, Resource: ResourceAnalytics, Tier: TierOrganization},
			{Action: ActionCreate, Resource: ResourceKnowledgeBase, Tier: TierOrganization},
			{Action: ActionRead, Resource: ResourceKnowledgeBase, Tier: TierOrganization},
			{Action: ActionUpdate, Resource: ResourceKnowledgeBase, Tier: TierOrganization},
			{Action: ActionDelete, Resource: ResourceKnowledgeBase, Tier: TierOrganization},
			{Action: ActionManage, Resource: ResourceKnowledgeBase, Tier: TierOrganization},
			{Action: ActionCreate, Resource: ResourceFollowers, Tier: TierOrganization},
			{Action: ActionRead, Resource: ResourceFollowers, Tier: TierOrganization},
			{Action: ActionDelete, Resource: ResourceFollowers, Tier: TierOrganization},
			{Action: ActionManage, Resource: ResourceFollowers, Tier: TierOrganization},
		},
		identity.RoleTeamLeader: {
			{Action: ActionRead, Resource: ResourceUsers, Tier: TierTeam},
			{Action: ActionUpdate, Resource: ResourceUsers, Tier: TierTeam},
			{Action: ActionRead, Resource: ResourceTeams, Tier: TierTeam},
			{Action: ActionCreate, Resource: ResourceTickets, Tier: TierOwn},
			{Action: ActionRead, Resource: ResourceTickets, Tier: TierTeam},
			{Action: ActionUpdate, Resource: ResourceTickets, Tier: TierTeam},
			{Action: ActionAssign, Resource: ResourceTickets, Tier: TierTeam},
			{Action: ActionRead, Resource: ResourceAnalytics, Tier: TierTeam},
			{Action: ActionRead, Resource: ResourceKnowledgeBase, Tier: TierOrganization},
			{Action: ActionCreate, Resource: ResourceKnowledgeBase, Tier: TierTeam},
			{Action: ActionUpdate, Resource: ResourceKnowledgeBase, Tier: TierTeam},
			{Action: ActionRead, Resource: ResourceFollowers, Tier: TierTeam},
			{Action: ActionCreate, Resource: ResourceFollowers, Tier: TierOwn},
			{Action: ActionDelete, Resource: ResourceFollowers, Tier: TierOwn},
		},
		identity.RoleEmployee: {
			{Action: ActionRead, Resource: ResourceUsers, Tier: TierOwn},
			{Action: ActionUpdate, Resource: ResourceUsers, Tier: TierOwn},
			{Action: ActionCreate, Resource: ResourceTickets, Tier: TierOwn},
			{Action: ActionRead, Resource: ResourceTickets, Tier: TierOwn},
			{Action: ActionUpdate, Resource: ResourceTickets, Tier: TierOwn},
			{Action: ActionRead, Resource: ResourceKnowledgeBase, Tier: TierOrganization},
			{Action: ActionCreate, Resource: ResourceFollowers, Tier: TierOwn},
			{Action: ActionDelete, Resource: ResourceFollowers, Tier: TierOwn},
		},
	}
}
