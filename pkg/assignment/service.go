package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/cache"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/observability"
)

// ErrLeadershipRequiresLeader rejects leadership assignment to an
// identity whose role is Employee. Leadership never auto-promotes.
var ErrLeadershipRequiresLeader = errors.New("leadership requires the Team Leader or Organization Admin role")

// ErrInvalidRole rejects assignment of a role outside the closed set.
var ErrInvalidRole = errors.New("invalid role")

// Service performs role and team assignment mutations. Each mutation
// persists, then synchronously invalidates every cache entry it affects,
// then appends its audit record. A reader who observes the audit entry
// can never be served the pre-mutation cached scope.
type Service struct {
	store   identity.Store
	engine  *access.Engine
	cache   *cache.ResolutionCache
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates an assignment service. auditLogger and metrics may be nil.
func NewService(store identity.Store, engine *access.Engine, resolution *cache.ResolutionCache, auditLogger audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		store:   store,
		engine:  engine,
		cache:   resolution,
		audit:   auditLogger,
		logger:  logger,
		metrics: metrics,
	}
}

// AssignRole changes the target's role. The actor must hold the
// organization-scope roles:assign grant.
func (s *Service) AssignRole(ctx context.Context, actorID, targetID int64, newRole identity.Role) (err error) {
	defer s.record("assign_role", &err)

	if !newRole.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, newRole)
	}

	if err := s.engine.RequirePermission(ctx, access.Check{
		IdentityID: actorID,
		Action:     access.ActionAssign,
		Resource:   access.ResourceRoles,
	}); err != nil {
		return err
	}

	target, err := s.store.GetIdentity(ctx, targetID)
	if err != nil {
		return err
	}
	oldRole := target.Role

	if err := s.store.UpdateIdentityRole(ctx, targetID, newRole); err != nil {
		return err
	}

	s.invalidateIdentity(ctx, targetID)

	event := audit.NewEvent(ctx, audit.EventTypeRoleAssign, audit.EventStatusSuccess)
	event.ActorID = &actorID
	event.TargetID = &targetID
	event.Action = string(access.ActionAssign)
	event.Resource = string(access.ResourceRoles)
	event.Success = true
	event.Metadata = map[string]interface{}{
		"old_role": string(oldRole),
		"new_role": string(newRole),
	}
	s.emit(ctx, event)

	return nil
}

// AssignToTeam moves the target to a new primary team. The actor must
// hold the organization-scope teams:manage grant, or be a Team Leader
// whose resolved scope reaches the destination team.
func (s *Service) AssignToTeam(ctx context.Context, actorID, targetID, teamID int64) (err error) {
	defer s.record("assign_to_team", &err)

	if err := s.authorizeTeamMutation(ctx, actorID, teamID); err != nil {
		return err
	}

	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return err
	}

	target, err := s.store.GetIdentity(ctx, targetID)
	if err != nil {
		return err
	}
	oldTeamID := target.PrimaryTeamID

	if err := s.store.UpdateIdentityTeam(ctx, targetID, &teamID); err != nil {
		return err
	}

	s.invalidateIdentity(ctx, targetID)
	if oldTeamID != nil {
		s.invalidateTeam(ctx, *oldTeamID)
	}
	s.invalidateTeam(ctx, teamID)

	event := audit.NewEvent(ctx, audit.EventTypeTeamAssign, audit.EventStatusSuccess)
	event.ActorID = &actorID
	event.TargetID = &targetID
	event.Action = string(access.ActionManage)
	event.Resource = string(access.ResourceTeams)
	event.ResourceID = fmt.Sprintf("%d", teamID)
	event.Success = true
	event.Metadata = map[string]interface{}{"new_team_id": teamID}
	if oldTeamID != nil {
		event.Metadata["old_team_id"] = *oldTeamID
	}
	s.emit(ctx, event)

	return nil
}

// RemoveFromTeam clears the target's primary team. The actor needs the
// same authority as for assigning into the team being left.
func (s *Service) RemoveFromTeam(ctx context.Context, actorID, targetID int64) (err error) {
	defer s.record("remove_from_team", &err)

	target, err := s.store.GetIdentity(ctx, targetID)
	if err != nil {
		return err
	}
	if target.PrimaryTeamID == nil {
		return nil
	}
	oldTeamID := *target.PrimaryTeamID

	if err := s.authorizeTeamMutation(ctx, actorID, oldTeamID); err != nil {
		return err
	}

	if err := s.store.UpdateIdentityTeam(ctx, targetID, nil); err != nil {
		return err
	}

	s.invalidateIdentity(ctx, targetID)
	s.invalidateTeam(ctx, oldTeamID)

	event := audit.NewEvent(ctx, audit.EventTypeTeamRemove, audit.EventStatusSuccess)
	event.ActorID = &actorID
	event.TargetID = &targetID
	event.Action = string(access.ActionManage)
	event.Resource = string(access.ResourceTeams)
	event.ResourceID = fmt.Sprintf("%d", oldTeamID)
	event.Success = true
	event.Metadata = map[string]interface{}{"old_team_id": oldTeamID}
	s.emit(ctx, event)

	return nil
}

// AssignTeamLeadership records that the target leads a team. Requires
// the organization-scope teams:manage grant, and the target must already
// hold the Team Leader or Organization Admin role.
func (s *Service) AssignTeamLeadership(ctx context.Context, actorID, targetID, teamID int64) (err error) {
	defer s.record("assign_leadership", &err)

	if err := s.engine.RequirePermission(ctx, access.Check{
		IdentityID: actorID,
		Action:     access.ActionManage,
		Resource:   access.ResourceTeams,
	}); err != nil {
		return err
	}

	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return err
	}

	target, err := s.store.GetIdentity(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role != identity.RoleTeamLeader && target.Role != identity.RoleOrgAdmin {
		return ErrLeadershipRequiresLeader
	}

	if err := s.store.AddTeamLeadership(ctx, targetID, teamID); err != nil {
		return err
	}

	s.invalidateIdentity(ctx, targetID)

	event := audit.NewEvent(ctx, audit.EventTypeLeadershipAssign, audit.EventStatusSuccess)
	event.ActorID = &actorID
	event.TargetID = &targetID
	event.Action = string(access.ActionManage)
	event.Resource = string(access.ResourceTeams)
	event.ResourceID = fmt.Sprintf("%d", teamID)
	event.Success = true
	s.emit(ctx, event)

	return nil
}

// RemoveTeamLeadership removes a leadership relation. Requires the
// organization-scope teams:manage grant.
func (s *Service) RemoveTeamLeadership(ctx context.Context, actorID, targetID, teamID int64) (err error) {
	defer s.record("remove_leadership", &err)

	if err := s.engine.RequirePermission(ctx, access.Check{
		IdentityID: actorID,
		Action:     access.ActionManage,
		Resource:   access.ResourceTeams,
	}); err != nil {
		return err
	}

	if err := s.store.RemoveTeamLeadership(ctx, targetID, teamID); err != nil {
		return err
	}

	s.invalidateIdentity(ctx, targetID)

	event := audit.NewEvent(ctx, audit.EventTypeLeadershipRemove, audit.EventStatusSuccess)
	event.ActorID = &actorID
	event.TargetID = &targetID
	event.Action = string(access.ActionManage)
	event.Resource = string(access.ResourceTeams)
	event.ResourceID = fmt.Sprintf("%d", teamID)
	event.Success = true
	s.emit(ctx, event)

	return nil
}

// authorizeTeamMutation allows an actor with the organization-scope
// teams:manage grant, or a Team Leader whose scope reaches the team.
func (s *Service) authorizeTeamMutation(ctx context.Context, actorID, teamID int64) error {
	perms, err := s.engine.GetUserPermissions(ctx, actorID)
	if err != nil {
		return err
	}

	if access.HasGrant(perms.Grants, access.ActionManage, access.ResourceTeams, access.TierOrganization) {
		return nil
	}
	if perms.Role == identity.RoleTeamLeader && perms.Scope.ContainsTeam(teamID) {
		return nil
	}

	return &access.InsufficientPermissionsError{
		Action:        access.ActionManage,
		Resource:      access.ResourceTeams,
		PermissionKey: string(access.ResourceTeams) + ":" + string(access.ActionManage),
		Reason:        fmt.Sprintf("no management authority over team %d", teamID),
	}
}

// invalidateIdentity removes the target's cached scope before the
// mutation's audit record is written. Invalidation failure is loud but
// non-fatal: a failing backend serves misses, not stale entries.
func (s *Service) invalidateIdentity(ctx context.Context, id int64) {
	if err := s.cache.InvalidateIdentity(ctx, id); err != nil {
		s.logger.WithError(err).WithField("identity_id", id).Error("cache invalidation failed")
	}
}

func (s *Service) invalidateTeam(ctx context.Context, teamID int64) {
	if err := s.cache.InvalidateTeam(ctx, teamID); err != nil {
		s.logger.WithError(err).WithField("team_id", teamID).Error("cache invalidation failed")
	}
}

// emit writes an audit event, fire-and-forget
func (s *Service) emit(ctx context.Context, event *audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Debug("failed to record audit event")
	}
}

// record counts the mutation outcome
func (s *Service) record(operation string, err *error) {
	if s.metrics != nil {
		s.metrics.RecordAssignment(operation, *err)
	}
}
