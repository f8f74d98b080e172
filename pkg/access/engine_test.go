package access

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/cache"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/observability"
)

// fakeStore is an in-memory IdentitySource for engine tests
type fakeStore struct {
	identities map[int64]*identity.Identity
	teams      map[int64]*identity.Team
	err        error
}

func (f *fakeStore) GetIdentity(ctx context.Context, id int64) (*identity.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	ident, ok := f.identities[id]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	return ident, nil
}

func (f *fakeStore) GetTeam(ctx context.Context, id int64) (*identity.Team, error) {
	if f.err != nil {
		return nil, f.err
	}
	team, ok := f.teams[id]
	if !ok {
		return nil, identity.ErrTeamNotFound
	}
	return team, nil
}

func (f *fakeStore) ListTeamMembers(ctx context.Context, teamID int64) ([]*identity.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var members []*identity.Identity
	for _, ident := range f.identities {
		if ident.PrimaryTeamID != nil && *ident.PrimaryTeamID == teamID {
			members = append(members, ident)
		}
	}
	return members, nil
}

func (f *fakeStore) ListTeams(ctx context.Context) ([]*identity.Team, error) {
	if f.err != nil {
		return nil, f.err
	}
	var teams []*identity.Team
	for _, team := range f.teams {
		teams = append(teams, team)
	}
	return teams, nil
}

func newTestEngine(t *testing.T, store *fakeStore) (*Engine, *cache.ResolutionCache) {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	ttl := cache.DefaultTTLConfig()
	resolution := cache.NewResolutionCache(cache.NewMemoryBackend(128, ttl.MaxTTL()), ttl, logger, nil)

	engine, err := NewEngine(store, resolution, DefaultMatrix(), nil, logger, nil)
	require.NoError(t, err)
	return engine, resolution
}

func testStore() *fakeStore {
	return &fakeStore{
		identities: map[int64]*identity.Identity{
			1: {ID: 1, Username: "admin", Role: identity.RoleOrgAdmin, IsActive: true},
			2: {ID: 2, Username: "leader", Role: identity.RoleTeamLeader, IsActive: true, PrimaryTeamID: int64Ptr(10), LedTeamIDs: []int64{11}},
			3: {ID: 3, Username: "employee", Role: identity.RoleEmployee, IsActive: true, PrimaryTeamID: int64Ptr(10)},
			4: {ID: 4, Username: "outsider", Role: identity.RoleEmployee, IsActive: true, PrimaryTeamID: int64Ptr(20)},
			5: {ID: 5, Username: "inactive", Role: identity.RoleOrgAdmin, IsActive: false},
			6: {ID: 6, Username: "roleless", IsActive: true, PrimaryTeamID: int64Ptr(10)},
		},
		teams: map[int64]*identity.Team{
			10: {ID: 10, Name: "support"},
			11: {ID: 11, Name: "billing"},
			20: {ID: 20, Name: "infra"},
		},
	}
}

func TestNewEngineRejectsInvalidMatrix(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	ttl := cache.DefaultTTLConfig()
	resolution := cache.NewResolutionCache(cache.NewNoopBackend(), ttl, logger, nil)

	_, err := NewEngine(testStore(), resolution, Matrix{}, nil, logger, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix validation failed")
}

func TestCheckPermissionFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
		check Check
	}{
		{
			name:  "unknown identity",
			store: testStore(),
			check: Check{IdentityID: 999, Action: ActionRead, Resource: ResourceTickets},
		},
		{
			name:  "store failure",
			store: &fakeStore{err: fmt.Errorf("connection refused")},
			check: Check{IdentityID: 1, Action: ActionRead, Resource: ResourceTickets},
		},
		{
			name:  "inactive identity",
			store: testStore(),
			check: Check{IdentityID: 5, Action: ActionRead, Resource: ResourceTickets},
		},
		{
			name:  "no role assigned",
			store: testStore(),
			check: Check{IdentityID: 6, Action: ActionRead, Resource: ResourceTickets},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, tt.store)
			assert.False(t, engine.CheckPermission(context.Background(), tt.check))
		})
	}
}

func TestRequirePermissionErrors(t *testing.T) {
	engine, _ := newTestEngine(t, testStore())
	ctx := context.Background()

	err := engine.RequirePermission(ctx, Check{IdentityID: 999, Action: ActionRead, Resource: ResourceTickets})
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	err = engine.RequirePermission(ctx, Check{IdentityID: 3, Action: ActionDelete, Resource: ResourceTickets})
	var denied *InsufficientPermissionsError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "tickets:delete", denied.PermissionKey)

	assert.NoError(t, engine.RequirePermission(ctx, Check{IdentityID: 1, Action: ActionDelete, Resource: ResourceTickets}))
}

func TestRequirePermissionInfraFailureIsDenial(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeStore{err: fmt.Errorf("connection refused")})

	err := engine.RequirePermission(context.Background(), Check{IdentityID: 1, Action: ActionRead, Resource: ResourceTickets})
	var denied *InsufficientPermissionsError
	require.ErrorAs(t, err, &denied)
	assert.False(t, errors.Is(err, ErrIdentityNotFound))
}

func TestEvaluateOrganizationTier(t *testing.T) {
	engine, _ := newTestEngine(t, testStore())
	ctx := context.Background()

	// Admin reaches any target without a scope lookup.
	assert.True(t, engine.CheckPermission(ctx, Check{IdentityID: 1, Action: ActionRead, Resource: ResourceUsers, TargetIdentityID: int64Ptr(4)}))
	assert.True(t, engine.CheckPermission(ctx, Check{IdentityID: 1, Action: ActionManage, Resource: ResourceTeams, TargetTeamID: int64Ptr(20)}))
}

func TestEvaluateTeamTier(t *testing.T) {
	engine, _ := newTestEngine(t, testStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		check Check
		want  bool
	}{
		{
			name:  "leader reads ticket in led team",
			check: Check{IdentityID: 2, Action: ActionRead, Resource: ResourceTickets, TargetTeamID: int64Ptr(11)},
			want:  true,
		},
		{
			name:  "leader reads ticket outside scope",
			check: Check{IdentityID: 2, Action: ActionRead, Resource: ResourceTickets, TargetTeamID: int64Ptr(20)},
			want:  false,
		},
		{
			name:  "leader reads user via target's primary team",
			check: Check{IdentityID: 2, Action: ActionRead, Resource: ResourceUsers, TargetIdentityID: int64Ptr(3)},
			want:  true,
		},
		{
			name:  "leader reads user in another team",
			check: Check{IdentityID: 2, Action: ActionRead, Resource: ResourceUsers, TargetIdentityID: int64Ptr(4)},
			want:  false,
		},
		{
			name:  "team grant with no resolvable target denies",
			check: Check{IdentityID: 2, Action: ActionRead, Resource: ResourceUsers},
			want:  false,
		},
		{
			name:  "team grant against missing target identity denies",
			check: Check{IdentityID: 2, Action: ActionRead, Resource: ResourceUsers, TargetIdentityID: int64Ptr(999)},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.CheckPermission(ctx, tt.check))
		})
	}
}

func TestEvaluateOwnTier(t *testing.T) {
	engine, _ := newTestEngine(t, testStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		check Check
		want  bool
	}{
		{
			name:  "self target allowed",
			check: Check{IdentityID: 3, Action: ActionUpdate, Resource: ResourceUsers, TargetIdentityID: int64Ptr(3)},
			want:  true,
		},
		{
			name:  "other target denied",
			check: Check{IdentityID: 3, Action: ActionUpdate, Resource: ResourceUsers, TargetIdentityID: int64Ptr(4)},
			want:  false,
		},
		{
			name:  "absent target is self-referential",
			check: Check{IdentityID: 3, Action: ActionCreate, Resource: ResourceTickets},
			want:  true,
		},
		{
			name:  "own team target allowed",
			check: Check{IdentityID: 3, Action: ActionUpdate, Resource: ResourceUsers, TargetTeamID: int64Ptr(10)},
			want:  true,
		},
		{
			name:  "other team target denied",
			check: Check{IdentityID: 3, Action: ActionUpdate, Resource: ResourceUsers, TargetTeamID: int64Ptr(20)},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.CheckPermission(ctx, tt.check))
		})
	}
}

func TestGetUserPermissions(t *testing.T) {
	engine, _ := newTestEngine(t, testStore())
	ctx := context.Background()

	admin, err := engine.GetUserPermissions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleOrgAdmin, admin.Role)
	assert.ElementsMatch(t, []int64{10, 11, 20}, admin.TeamIDs, "admin team list is materialized")
	assert.True(t, admin.Scope.OrganizationWide)

	leader, err := engine.GetUserPermissions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, leader.TeamIDs)

	inactive, err := engine.GetUserPermissions(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, inactive.Role, "inactive identity carries no role in the snapshot")
	assert.Empty(t, inactive.Grants)
	assert.Equal(t, ZeroScope(), inactive.Scope)
}

func TestResolveScopeCachedUntilInvalidated(t *testing.T) {
	store := testStore()
	engine, resolution := newTestEngine(t, store)
	ctx := context.Background()

	scope, err := engine.ResolveScope(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, scope.TeamIDs)

	// A direct store mutation is invisible until invalidation.
	store.identities[3].PrimaryTeamID = int64Ptr(20)

	scope, err = engine.ResolveScope(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, scope.TeamIDs, "stale scope served within TTL")

	require.NoError(t, resolution.InvalidateIdentity(ctx, 3))

	scope, err = engine.ResolveScope(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, scope.TeamIDs, "invalidation forces recomputation")
}

func TestListTeamMembersCachedUntilInvalidated(t *testing.T) {
	store := testStore()
	engine, resolution := newTestEngine(t, store)
	ctx := context.Background()

	memberIDs := func(members []*identity.Identity) []int64 {
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		return ids
	}

	members, err := engine.ListTeamMembers(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3, 6}, memberIDs(members))

	// A direct store mutation is invisible until invalidation.
	store.identities[4].PrimaryTeamID = int64Ptr(10)

	members, err = engine.ListTeamMembers(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3, 6}, memberIDs(members), "stale member list served within TTL")

	require.NoError(t, resolution.InvalidateTeam(ctx, 10))

	members, err = engine.ListTeamMembers(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3, 4, 6}, memberIDs(members), "invalidation forces recomputation")

	_, err = engine.ListTeamMembers(ctx, 999)
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestValidateAccess(t *testing.T) {
	engine, _ := newTestEngine(t, testStore())
	ctx := context.Background()

	tests := []struct {
		name           string
		identityID     int64
		targetIdentity *int64
		targetTeam     *int64
		want           bool
	}{
		{"admin reaches any team", 1, nil, int64Ptr(20), true},
		{"admin reaches any user", 1, int64Ptr(4), nil, true},
		{"employee reaches own team", 3, nil, int64Ptr(10), true},
		{"employee denied other team", 3, nil, int64Ptr(20), false},
		{"employee reaches teammate", 3, int64Ptr(2), nil, true},
		{"employee denied outsider", 3, int64Ptr(4), nil, false},
		{"self target always allowed", 4, int64Ptr(4), nil, true},
		{"no target is own data", 4, nil, nil, true},
		{"missing target user denied", 3, int64Ptr(999), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.ValidateAccess(ctx, tt.identityID, tt.targetIdentity, tt.targetTeam)
			assert.Equal(t, tt.want, result.Allowed)
			if !tt.want {
				assert.NotEmpty(t, result.Reason)
			}
		})
	}

	result := engine.ValidateAccess(ctx, 999, nil, int64Ptr(10))
	assert.False(t, result.Allowed)
	assert.Equal(t, "identity not found", result.Reason)
}

func TestCanAccessHelpers(t *testing.T) {
	engine, _ := newTestEngine(t, testStore())
	ctx := context.Background()

	assert.True(t, engine.CanAccessTeamData(ctx, 2, 11))
	assert.False(t, engine.CanAccessTeamData(ctx, 2, 20))
	assert.True(t, engine.CanAccessUserData(ctx, 2, 3))
	assert.False(t, engine.CanAccessUserData(ctx, 4, 3))
}
