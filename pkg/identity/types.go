package identity

import (
	"fmt"
	"time"
)

// Role represents the single role assigned to an identity.
// The set of roles is closed: the permission matrix is compiled against
// exactly these three variants and adding a fourth is a code change.
type Role string

const (
	RoleOrgAdmin   Role = "org_admin"   // Full access across the organization
	RoleTeamLeader Role = "team_leader" // Sees primary team plus every led team
	RoleEmployee   Role = "employee"    // Sees only their own records
)

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOrgAdmin, RoleTeamLeader, RoleEmployee:
		return true
	}
	return false
}

// DisplayName returns a human-readable role name for UI and audit messages.
func (r Role) DisplayName() string {
	switch r {
	case RoleOrgAdmin:
		return "Organization Admin"
	case RoleTeamLeader:
		return "Team Leader"
	case RoleEmployee:
		return "Employee"
	}
	return string(r)
}

// ParseRole converts a stored role string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AllRoles returns the closed set of roles, used for matrix validation.
func AllRoles() []Role {
	return []Role{RoleOrgAdmin, RoleTeamLeader, RoleEmployee}
}

// Identity represents a user account with its role and team relations loaded.
type Identity struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	FullName      string     `json:"full_name,omitempty"`
	Role          Role       `json:"role,omitempty"` // empty while unassigned
	PrimaryTeamID *int64     `json:"primary_team_id,omitempty"`
	LedTeamIDs    []int64    `json:"led_team_ids,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// HasRole reports whether the identity has a valid role assigned.
func (i *Identity) HasRole() bool {
	return i.Role.Valid()
}

// Leads reports whether the identity leads the given team.
func (i *Identity) Leads(teamID int64) bool {
	for _, id := range i.LedTeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

// Team represents a team within the single organization.
type Team struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
