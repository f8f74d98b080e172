package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/cache"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/observability"
)

// IdentitySource is the read surface of the identity store the engine
// needs. The full identity.Store satisfies it.
type IdentitySource interface {
	GetIdentity(ctx context.Context, id int64) (*identity.Identity, error)
	GetTeam(ctx context.Context, id int64) (*identity.Team, error)
	ListTeamMembers(ctx context.Context, teamID int64) ([]*identity.Identity, error)
	ListTeams(ctx context.Context) ([]*identity.Team, error)
}

// Check is a single permission check request. Targets are optional:
// team-tier grants need a resolvable target team, own-tier grants compare
// the target against the caller, and an absent target means the operation
// acts on the caller's own records.
type Check struct {
	IdentityID int64    `json:"identity_id"`
	Action     Action   `json:"action"`
	Resource   Resource `json:"resource"`

	TargetIdentityID *int64 `json:"target_identity_id,omitempty"`
	TargetTeamID     *int64 `json:"target_team_id,omitempty"`

	// ResourceID is carried into audit events only.
	ResourceID string `json:"resource_id,omitempty"`
}

// permissionKey returns the machine-readable key, e.g. "tickets:read".
func (c Check) permissionKey() string {
	return string(c.Resource) + ":" + string(c.Action)
}

// UserPermissions is the full capability snapshot for one identity:
// grant set, resolved scope and the concrete team list. Callers use it to
// render capability-dependent UI or build query filters once per request.
type UserPermissions struct {
	IdentityID int64         `json:"identity_id"`
	Role       identity.Role `json:"role,omitempty"`
	Grants     []Grant       `json:"grants,omitempty"`
	Scope      AccessScope   `json:"scope"`

	// TeamIDs is the materialized team list. For an Organization Admin
	// this is every team, looked up explicitly rather than inferred.
	TeamIDs []int64 `json:"team_ids,omitempty"`

	ResolvedAt time.Time `json:"resolved_at"`
}

// AccessResult is the descriptive outcome of a reachability check, for
// routes that need a 403 message rather than a silent boolean.
type AccessResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Engine is the public authorization decision surface. It is constructed
// once at startup with its dependencies injected; it holds no global
// state beyond the injected cache.
type Engine struct {
	store    IdentitySource
	cache    *cache.ResolutionCache
	matrix   Matrix
	resolver *Resolver
	audit    audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewEngine creates an engine over a validated matrix. auditLogger and
// metrics may be nil; matrix validation failure is fatal by contract and
// must abort startup.
func NewEngine(store IdentitySource, resolution *cache.ResolutionCache, matrix Matrix, auditLogger audit.Logger, logger *observability.Logger, metrics *observability.Metrics) (*Engine, error) {
	if err := matrix.Validate(); err != nil {
		return nil, fmt.Errorf("permission matrix validation failed: %w", err)
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Engine{
		store:    store,
		cache:    resolution,
		matrix:   matrix,
		resolver: NewResolver(matrix),
		audit:    auditLogger,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Matrix returns the engine's permission matrix.
func (e *Engine) Matrix() Matrix {
	return e.matrix
}

// CheckPermission reports whether the identity may perform the action on
// the resource, optionally against a specific target. Denial is a normal
// false result; any internal failure also returns false (fail closed) and
// never propagates as a crash to the caller.
func (e *Engine) CheckPermission(ctx context.Context, check Check) bool {
	start := time.Now()

	allowed, reason, err := e.evaluate(ctx, check)
	if err != nil {
		allowed = false
		if errors.Is(err, ErrIdentityNotFound) {
			// Surfaced distinctly from plain denial for operability.
			reason = "identity not found"
			e.logger.WithField("identity_id", check.IdentityID).Warn("permission check for unknown identity")
			e.emitDenial(ctx, check, reason, audit.EventTypeIdentityUnknown)
		} else {
			reason = "internal error"
			e.logger.WithError(err).WithField("identity_id", check.IdentityID).Error("permission check failed, denying")
			e.emitDenial(ctx, check, reason, audit.EventTypeAccessDenied)
		}
	} else if !allowed {
		e.emitDenial(ctx, check, reason, audit.EventTypeAccessDenied)
	}

	if e.metrics != nil {
		e.metrics.RecordPermissionCheck(string(check.Resource), string(check.Action), allowed, time.Since(start).Seconds())
	}

	return allowed
}

// RequirePermission is the short-circuiting variant: it returns nil when
// allowed, ErrIdentityNotFound when the caller does not exist, and an
// *InsufficientPermissionsError on denial. Transient infrastructure
// failure is logged and surfaces as a denial, never as its own error.
func (e *Engine) RequirePermission(ctx context.Context, check Check) error {
	allowed, reason, err := e.evaluate(ctx, check)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.emitDenial(ctx, check, "identity not found", audit.EventTypeIdentityUnknown)
			return fmt.Errorf("identity %d: %w", check.IdentityID, ErrIdentityNotFound)
		}
		e.logger.WithError(err).WithField("identity_id", check.IdentityID).Error("permission check failed, denying")
		allowed = false
		reason = "internal error"
	}

	if allowed {
		return nil
	}

	e.emitDenial(ctx, check, reason, audit.EventTypeAccessDenied)
	return &InsufficientPermissionsError{
		Action:        check.Action,
		Resource:      check.Resource,
		PermissionKey: check.permissionKey(),
		Reason:        reason,
	}
}

// evaluate runs the decision algorithm: matrix lookup first, then the
// scope-tier check against the specific target.
func (e *Engine) evaluate(ctx context.Context, check Check) (bool, string, error) {
	ident, err := e.lookupIdentity(ctx, check.IdentityID)
	if err != nil {
		return false, "", err
	}
	if !ident.IsActive {
		return false, "identity is inactive", nil
	}
	if !ident.HasRole() {
		return false, "no role assigned", nil
	}

	grant, ok := e.matrix.FindGrant(ident.Role, check.Action, check.Resource)
	if !ok {
		return false, fmt.Sprintf("role %s has no %s grant", ident.Role, check.permissionKey()), nil
	}

	switch grant.Tier {
	case TierOrganization:
		// The role either holds the organization grant or it doesn't;
		// the caller's resolved team scope is irrelevant here.
		return true, "", nil

	case TierTeam:
		scope, err := e.ResolveScope(ctx, check.IdentityID)
		if err != nil {
			return false, "", err
		}
		targetTeam, err := e.targetTeam(ctx, check)
		if err != nil {
			return false, "", err
		}
		if targetTeam == nil {
			return false, "no target team resolvable for team-scoped grant", nil
		}
		if scope.ContainsTeam(*targetTeam) {
			return true, "", nil
		}
		return false, fmt.Sprintf("team %d is outside the resolved scope", *targetTeam), nil

	case TierOwn:
		if check.TargetIdentityID != nil {
			if *check.TargetIdentityID == ident.ID {
				return true, "", nil
			}
			return false, "target is not the caller", nil
		}
		if check.TargetTeamID != nil {
			if ident.PrimaryTeamID != nil && *ident.PrimaryTeamID == *check.TargetTeamID {
				return true, "", nil
			}
			return false, "target team is not the caller's team", nil
		}
		// No explicit target: the operation acts on the caller's own records.
		return true, "", nil
	}

	return false, "", &InvalidScopeError{Tier: grant.Tier}
}

// targetTeam resolves the team a team-scoped check is aimed at: the
// explicit target team, or the target identity's primary team. A missing
// target identity resolves to no team, which the caller denies.
func (e *Engine) targetTeam(ctx context.Context, check Check) (*int64, error) {
	if check.TargetTeamID != nil {
		return check.TargetTeamID, nil
	}
	if check.TargetIdentityID == nil {
		return nil, nil
	}

	target, err := e.lookupIdentity(ctx, *check.TargetIdentityID)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return target.PrimaryTeamID, nil
}

// GetUserPermissions returns the full grant set, resolved scope and
// concrete team list for an identity, memoized with a one-hour staleness
// ceiling and removed eagerly on any role/team mutation.
func (e *Engine) GetUserPermissions(ctx context.Context, identityID int64) (*UserPermissions, error) {
	key := cache.PermissionsKey(identityID)
	if perms, ok := cache.Get[UserPermissions](ctx, e.cache, "permissions", key); ok {
		return perms, nil
	}

	ident, err := e.lookupIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	scope := e.resolve(ident)

	// Inactive or roleless identities carry no role and no grants in the
	// snapshot, so downstream scoping fails closed on the zero value.
	role := ident.Role
	var grants []Grant
	if ident.IsActive && ident.HasRole() {
		grants = e.matrix.GrantsFor(role)
	} else {
		role = ""
	}

	perms := &UserPermissions{
		IdentityID: ident.ID,
		Role:       role,
		Grants:     grants,
		Scope:      scope,
		ResolvedAt: time.Now().UTC(),
	}

	switch scope.Visibility {
	case VisibilityAllTeams:
		teams, err := e.store.ListTeams(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to materialize all-teams list: %w", err)
		}
		perms.TeamIDs = make([]int64, 0, len(teams))
		for _, team := range teams {
			perms.TeamIDs = append(perms.TeamIDs, team.ID)
		}
	case VisibilitySpecificTeams:
		perms.TeamIDs = scope.TeamIDs
	}

	cache.Set(ctx, e.cache, key, perms, e.cache.ScopeTTL())
	return perms, nil
}

// ResolveScope returns the identity's resolved AccessScope, cache-first.
// Errors from the store propagate; resolution itself cannot fail.
func (e *Engine) ResolveScope(ctx context.Context, identityID int64) (AccessScope, error) {
	key := cache.ScopeKey(identityID)
	if scope, ok := cache.Get[AccessScope](ctx, e.cache, "scope", key); ok {
		return *scope, nil
	}

	ident, err := e.lookupIdentity(ctx, identityID)
	if err != nil {
		return ZeroScope(), err
	}

	scope := e.resolve(ident)
	cache.Set(ctx, e.cache, key, &scope, e.cache.ScopeTTL())
	return scope, nil
}

// ListTeamMembers returns the identities whose primary team is teamID,
// memoized per team and removed eagerly when a membership mutation
// invalidates the team.
func (e *Engine) ListTeamMembers(ctx context.Context, teamID int64) ([]*identity.Identity, error) {
	key := cache.TeamMembersKey(teamID)
	if members, ok := cache.Get[[]*identity.Identity](ctx, e.cache, "team_members", key); ok {
		return *members, nil
	}

	if _, err := e.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}

	members, err := e.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []*identity.Identity{}
	}

	cache.Set(ctx, e.cache, key, &members, e.cache.TeamMembersTTL())
	return members, nil
}

// ValidateAccess is the descriptive, action-agnostic reachability check:
// can the caller see the target user or team at all. It never returns an
// error; infrastructure failure yields a denial with a generic reason.
func (e *Engine) ValidateAccess(ctx context.Context, identityID int64, targetIdentityID, targetTeamID *int64) *AccessResult {
	scope, err := e.ResolveScope(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return &AccessResult{Allowed: false, Reason: "identity not found"}
		}
		e.logger.WithError(err).WithField("identity_id", identityID).Error("access validation failed, denying")
		return &AccessResult{Allowed: false, Reason: "access check unavailable"}
	}

	if scope.OrganizationWide {
		return &AccessResult{Allowed: true}
	}

	if targetTeamID != nil {
		if scope.ContainsTeam(*targetTeamID) {
			return &AccessResult{Allowed: true}
		}
		e.emitValidationDenial(ctx, identityID, nil, targetTeamID)
		return &AccessResult{
			Allowed: false,
			Reason:  fmt.Sprintf("team %d is outside your visibility", *targetTeamID),
		}
	}

	if targetIdentityID != nil {
		if *targetIdentityID == identityID {
			return &AccessResult{Allowed: true}
		}
		target, err := e.lookupIdentity(ctx, *targetIdentityID)
		if errors.Is(err, ErrIdentityNotFound) {
			return &AccessResult{Allowed: false, Reason: "target user not found"}
		}
		if err != nil {
			e.logger.WithError(err).Error("target lookup failed, denying")
			return &AccessResult{Allowed: false, Reason: "access check unavailable"}
		}
		if target.PrimaryTeamID != nil && scope.ContainsTeam(*target.PrimaryTeamID) {
			return &AccessResult{Allowed: true}
		}
		e.emitValidationDenial(ctx, identityID, targetIdentityID, nil)
		return &AccessResult{
			Allowed: false,
			Reason:  fmt.Sprintf("user %d is outside your teams", *targetIdentityID),
		}
	}

	// No target means the caller is asking about their own data.
	return &AccessResult{Allowed: true}
}

// CanAccessUserData reports whether the caller may see the target user's data.
func (e *Engine) CanAccessUserData(ctx context.Context, identityID, targetIdentityID int64) bool {
	return e.ValidateAccess(ctx, identityID, &targetIdentityID, nil).Allowed
}

// CanAccessTeamData reports whether the caller may see the team's data.
func (e *Engine) CanAccessTeamData(ctx context.Context, identityID, teamID int64) bool {
	return e.ValidateAccess(ctx, identityID, nil, &teamID).Allowed
}

// resolve runs the pure scope resolution and counts it.
func (e *Engine) resolve(ident *identity.Identity) AccessScope {
	if e.metrics != nil {
		e.metrics.ScopeResolutionsTotal.Inc()
	}
	return e.resolver.Resolve(ident)
}

// lookupIdentity fetches an identity cache-first. Two concurrent misses
// for the same identity both hit the store; last writer wins on populate.
func (e *Engine) lookupIdentity(ctx context.Context, id int64) (*identity.Identity, error) {
	key := cache.IdentityKey(id)
	if ident, ok := cache.Get[identity.Identity](ctx, e.cache, "identity", key); ok {
		return ident, nil
	}

	ident, err := e.store.GetIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	cache.Set(ctx, e.cache, key, ident, e.cache.IdentityTTL())
	return ident, nil
}

// emitDenial records a denial in the audit sink. Audit failures are
// logged and swallowed; they never affect the decision.
func (e *Engine) emitDenial(ctx context.Context, check Check, reason string, eventType audit.EventType) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusDenied)
	event.ActorID = &check.IdentityID
	event.TargetID = check.TargetIdentityID
	event.Action = string(check.Action)
	event.Resource = string(check.Resource)
	event.ResourceID = check.ResourceID
	event.Reason = reason

	if err := e.audit.Log(ctx, event); err != nil {
		e.logger.WithError(err).Debug("failed to record audit event")
	}
}

// emitValidationDenial records a denial from the reachability check.
func (e *Engine) emitValidationDenial(ctx context.Context, actorID int64, targetIdentityID, targetTeamID *int64) {
	event := audit.NewEvent(ctx, audit.EventTypeAccessDenied, audit.EventStatusDenied)
	event.ActorID = &actorID
	event.TargetID = targetIdentityID
	if targetTeamID != nil {
		event.Resource = string(ResourceTeams)
		event.ResourceID = fmt.Sprintf("%d", *targetTeamID)
	} else {
		event.Resource = string(ResourceUsers)
	}
	event.Reason = "target outside resolved scope"

	if err := e.audit.Log(ctx, event); err != nil {
		e.logger.WithError(err).Debug("failed to record audit event")
	}
}
