package access

import (
	"errors"
	"fmt"

	"github.com/deskforge/deskforge/pkg/identity"
)

// ErrIdentityNotFound mirrors the store error so callers of this package
// can match it without importing pkg/identity. It signals a 404-style
// condition, distinct from an authorization denial.
var ErrIdentityNotFound = identity.ErrIdentityNotFound

// ErrTeamNotFound mirrors the store error for absent teams.
var ErrTeamNotFound = identity.ErrTeamNotFound

// InsufficientPermissionsError is returned by the Require* variants when
// access is genuinely denied. It carries the denied action and resource
// plus a machine-readable permission key for 403 responses.
type InsufficientPermissionsError struct {
	Action        Action
	Resource      Resource
	PermissionKey string
	Reason        string
}

func (e *InsufficientPermissionsError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient permissions: %s (%s)", e.PermissionKey, e.Reason)
	}
	return fmt.Sprintf("insufficient permissions: %s", e.PermissionKey)
}

// IsInsufficientPermissions reports whether err is a denial.
func IsInsufficientPermissions(err error) bool {
	var ipe *InsufficientPermissionsError
	return errors.As(err, &ipe)
}

// InvalidScopeError indicates a grant referenced a scope tier the engine
// does not recognize. With a validated matrix this is unreachable; it
// exists so matrix-data bugs surface loudly instead of silently allowing.
type InvalidScopeError struct {
	Tier ScopeTier
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("invalid scope tier %q", e.Tier)
}

// UserAccessDeniedError is a denial with a target identity, for clearer
// messages on user-data routes.
type UserAccessDeniedError struct {
	TargetID int64
}

func (e *UserAccessDeniedError) Error() string {
	return fmt.Sprintf("access to user %d denied", e.TargetID)
}

// TeamAccessDeniedError is a denial with a target team.
type TeamAccessDeniedError struct {
	TeamID int64
}

func (e *TeamAccessDeniedError) Error() string {
	return fmt.Sprintf("access to team %d denied", e.TeamID)
}
