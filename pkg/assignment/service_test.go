package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/cache"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/observability"
)

func int64Ptr(v int64) *int64 { return &v }

// fakeStore is an in-memory identity.Store whose mutations are visible
// to subsequent reads, so cache invalidation is observable end to end.
type fakeStore struct {
	identities map[int64]*identity.Identity
	teams      map[int64]*identity.Team
}

func (f *fakeStore) GetIdentity(ctx context.Context, id int64) (*identity.Identity, error) {
	ident, ok := f.identities[id]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	copied := *ident
	return &copied, nil
}

func (f *fakeStore) GetTeam(ctx context.Context, id int64) (*identity.Team, error) {
	team, ok := f.teams[id]
	if !ok {
		return nil, identity.ErrTeamNotFound
	}
	return team, nil
}

func (f *fakeStore) ListTeamMembers(ctx context.Context, teamID int64) ([]*identity.Identity, error) {
	var members []*identity.Identity
	for _, ident := range f.identities {
		if ident.PrimaryTeamID != nil && *ident.PrimaryTeamID == teamID {
			members = append(members, ident)
		}
	}
	return members, nil
}

func (f *fakeStore) ListTeams(ctx context.Context) ([]*identity.Team, error) {
	var teams []*identity.Team
	for _, team := range f.teams {
		teams = append(teams, team)
	}
	return teams, nil
}

func (f *fakeStore) UpdateIdentityRole(ctx context.Context, id int64, role identity.Role) error {
	ident, ok := f.identities[id]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	ident.Role = role
	return nil
}

func (f *fakeStore) UpdateIdentityTeam(ctx context.Context, id int64, teamID *int64) error {
	ident, ok := f.identities[id]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	ident.PrimaryTeamID = teamID
	return nil
}

func (f *fakeStore) AddTeamLeadership(ctx context.Context, identityID, teamID int64) error {
	ident, ok := f.identities[identityID]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	if !ident.Leads(teamID) {
		ident.LedTeamIDs = append(ident.LedTeamIDs, teamID)
	}
	return nil
}

func (f *fakeStore) RemoveTeamLeadership(ctx context.Context, identityID, teamID int64) error {
	ident, ok := f.identities[identityID]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	kept := ident.LedTeamIDs[:0]
	for _, id := range ident.LedTeamIDs {
		if id != teamID {
			kept = append(kept, id)
		}
	}
	ident.LedTeamIDs = kept
	return nil
}

// captureAudit records every appended event in order.
type captureAudit struct {
	events []*audit.Event
}

func (c *captureAudit) Log(ctx context.Context, event *audit.Event) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureAudit) Close() error { return nil }

func (c *captureAudit) last(t *testing.T) *audit.Event {
	t.Helper()
	require.NotEmpty(t, c.events)
	return c.events[len(c.events)-1]
}

func testStore() *fakeStore {
	return &fakeStore{
		identities: map[int64]*identity.Identity{
			1: {ID: 1, Role: identity.RoleOrgAdmin, IsActive: true},
			2: {ID: 2, Role: identity.RoleTeamLeader, IsActive: true, PrimaryTeamID: int64Ptr(10), LedTeamIDs: []int64{11}},
			3: {ID: 3, Role: identity.RoleEmployee, IsActive: true, PrimaryTeamID: int64Ptr(10)},
			4: {ID: 4, Role: identity.RoleEmployee, IsActive: true, PrimaryTeamID: int64Ptr(20)},
		},
		teams: map[int64]*identity.Team{
			10: {ID: 10, Name: "support"},
			11: {ID: 11, Name: "billing"},
			20: {ID: 20, Name: "platform"},
		},
	}
}

func newServiceForTest(t *testing.T, store *fakeStore) (*Service, *captureAudit) {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	ttl := cache.DefaultTTLConfig()
	resolution := cache.NewResolutionCache(cache.NewMemoryBackend(128, ttl.MaxTTL()), ttl, logger, nil)

	sink := &captureAudit{}
	engine, err := access.NewEngine(store, resolution, access.DefaultMatrix(), nil, logger, nil)
	require.NoError(t, err)

	return NewService(store, engine, resolution, sink, logger, nil), sink
}

func TestAssignRole(t *testing.T) {
	store := testStore()
	svc, sink := newServiceForTest(t, store)
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, 1, 3, identity.RoleTeamLeader))
	assert.Equal(t, identity.RoleTeamLeader, store.identities[3].Role)

	event := sink.last(t)
	assert.Equal(t, audit.EventTypeRoleAssign, event.EventType)
	assert.Equal(t, audit.EventStatusSuccess, event.Status)
	assert.Equal(t, int64(1), *event.ActorID)
	assert.Equal(t, int64(3), *event.TargetID)
	assert.Equal(t, "employee", event.Metadata["old_role"])
	assert.Equal(t, "team_leader", event.Metadata["new_role"])
}

func TestAssignRoleRejectsUnknownRole(t *testing.T) {
	svc, sink := newServiceForTest(t, testStore())

	err := svc.AssignRole(context.Background(), 1, 3, identity.Role("contractor"))
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Empty(t, sink.events)
}

func TestAssignRoleDenied(t *testing.T) {
	store := testStore()
	svc, _ := newServiceForTest(t, store)

	var denied *access.InsufficientPermissionsError
	err := svc.AssignRole(context.Background(), 2, 3, identity.RoleOrgAdmin)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "roles:assign", denied.PermissionKey)
	assert.Equal(t, identity.RoleEmployee, store.identities[3].Role, "denied mutation must not persist")
}

func TestAssignRoleUnknownActor(t *testing.T) {
	svc, _ := newServiceForTest(t, testStore())

	err := svc.AssignRole(context.Background(), 999, 3, identity.RoleEmployee)
	assert.ErrorIs(t, err, access.ErrIdentityNotFound)
}

func TestAssignRoleRefreshesResolvedScope(t *testing.T) {
	store := testStore()
	svc, _ := newServiceForTest(t, store)
	ctx := context.Background()

	// Prime the cache with the employee's pre-mutation scope.
	perms, err := svc.engine.GetUserPermissions(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleEmployee, perms.Role)

	teamRead := access.Check{IdentityID: 3, Action: access.ActionRead, Resource: access.ResourceTeams, TargetTeamID: int64Ptr(10)}
	assert.False(t, svc.engine.CheckPermission(ctx, teamRead), "employees hold no teams:read grant")

	require.NoError(t, svc.AssignRole(ctx, 1, 3, identity.RoleTeamLeader))

	perms, err = svc.engine.GetUserPermissions(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleTeamLeader, perms.Role, "cached snapshot must be invalidated by the mutation")

	assert.True(t, svc.engine.CheckPermission(ctx, teamRead), "promotion takes effect on the next check")
}

func TestAssignToTeam(t *testing.T) {
	store := testStore()
	svc, sink := newServiceForTest(t, store)
	ctx := context.Background()

	require.NoError(t, svc.AssignToTeam(ctx, 1, 4, 10))
	assert.Equal(t, int64(10), *store.identities[4].PrimaryTeamID)

	event := sink.last(t)
	assert.Equal(t, audit.EventTypeTeamAssign, event.EventType)
	assert.Equal(t, int64(10), event.Metadata["new_team_id"])
	assert.Equal(t, int64(20), event.Metadata["old_team_id"])
}

func TestAssignToTeamLeaderWithinScope(t *testing.T) {
	store := testStore()
	svc, _ := newServiceForTest(t, store)
	ctx := context.Background()

	// A leader can move identities into teams they lead.
	require.NoError(t, svc.AssignToTeam(ctx, 2, 3, 11))
	assert.Equal(t, int64(11), *store.identities[3].PrimaryTeamID)

	// But not into teams outside their scope.
	var denied *access.InsufficientPermissionsError
	err := svc.AssignToTeam(ctx, 2, 3, 20)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "teams:manage", denied.PermissionKey)
}

func TestAssignToTeamEmployeeDeniedOwnTeam(t *testing.T) {
	svc, _ := newServiceForTest(t, testStore())

	// Membership of the destination team grants no management authority.
	var denied *access.InsufficientPermissionsError
	err := svc.AssignToTeam(context.Background(), 3, 4, 10)
	assert.ErrorAs(t, err, &denied)
}

func TestAssignToTeamMissingTeam(t *testing.T) {
	svc, sink := newServiceForTest(t, testStore())

	err := svc.AssignToTeam(context.Background(), 1, 3, 999)
	assert.ErrorIs(t, err, identity.ErrTeamNotFound)
	assert.Empty(t, sink.events)
}

func TestRemoveFromTeam(t *testing.T) {
	store := testStore()
	svc, sink := newServiceForTest(t, store)
	ctx := context.Background()

	require.NoError(t, svc.RemoveFromTeam(ctx, 1, 3))
	assert.Nil(t, store.identities[3].PrimaryTeamID)

	event := sink.last(t)
	assert.Equal(t, audit.EventTypeTeamRemove, event.EventType)
	assert.Equal(t, int64(10), event.Metadata["old_team_id"])

	// Removing a teamless identity is a no-op, not an error.
	before := len(sink.events)
	require.NoError(t, svc.RemoveFromTeam(ctx, 1, 3))
	assert.Len(t, sink.events, before)
}

func TestAssignTeamLeadership(t *testing.T) {
	store := testStore()
	svc, sink := newServiceForTest(t, store)
	ctx := context.Background()

	require.NoError(t, svc.AssignTeamLeadership(ctx, 1, 2, 20))
	assert.True(t, store.identities[2].Leads(20))
	assert.Equal(t, audit.EventTypeLeadershipAssign, sink.last(t).EventType)
}

func TestAssignTeamLeadershipRequiresLeaderRole(t *testing.T) {
	store := testStore()
	svc, _ := newServiceForTest(t, store)

	err := svc.AssignTeamLeadership(context.Background(), 1, 3, 10)
	assert.ErrorIs(t, err, ErrLeadershipRequiresLeader)
	assert.False(t, store.identities[3].Leads(10))
}

func TestAssignTeamLeadershipDeniedForLeader(t *testing.T) {
	svc, _ := newServiceForTest(t, testStore())

	// teams:manage at organization scope is admin only.
	var denied *access.InsufficientPermissionsError
	err := svc.AssignTeamLeadership(context.Background(), 2, 2, 20)
	assert.ErrorAs(t, err, &denied)
}

func TestRemoveTeamLeadership(t *testing.T) {
	store := testStore()
	svc, sink := newServiceForTest(t, store)
	ctx := context.Background()

	require.NoError(t, svc.RemoveTeamLeadership(ctx, 1, 2, 11))
	assert.False(t, store.identities[2].Leads(11))
	assert.Equal(t, audit.EventTypeLeadershipRemove, sink.last(t).EventType)
}

func TestLeadershipChangeWidensScope(t *testing.T) {
	store := testStore()
	svc, _ := newServiceForTest(t, store)
	ctx := context.Background()

	scope, err := svc.engine.ResolveScope(ctx, 2)
	require.NoError(t, err)
	assert.False(t, scope.ContainsTeam(20))

	require.NoError(t, svc.AssignTeamLeadership(ctx, 1, 2, 20))

	scope, err = svc.engine.ResolveScope(ctx, 2)
	require.NoError(t, err)
	assert.True(t, scope.ContainsTeam(20), "stale scope must not survive the leadership change")
}
