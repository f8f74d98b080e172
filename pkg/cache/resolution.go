package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deskforge/deskforge/pkg/observability"
)

// TTL classes for the resolution cache. TTLs are a staleness ceiling;
// explicit invalidation is the correctness mechanism for mutations.
type TTLConfig struct {
	Identity    time.Duration // identity+role lookups
	Scope       time.Duration // resolved scopes and permission sets
	TeamMembers time.Duration // team member lists
}

// DefaultTTLConfig returns the standard staleness ceilings.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Identity:    5 * time.Minute,
		Scope:       1 * time.Hour,
		TeamMembers: 10 * time.Minute,
	}
}

// MaxTTL returns the longest configured TTL, used to bound the memory
// backend's eviction ceiling.
func (c TTLConfig) MaxTTL() time.Duration {
	max := c.Identity
	if c.Scope > max {
		max = c.Scope
	}
	if c.TeamMembers > max {
		max = c.TeamMembers
	}
	return max
}

// ResolutionCache memoizes identity lookups, resolved scopes and team
// member lists over a Backend. A backend failure degrades to a miss and
// is logged, never propagated.
type ResolutionCache struct {
	backend Backend
	ttl     TTLConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolutionCache creates a resolution cache. metrics may be nil.
func NewResolutionCache(backend Backend, ttl TTLConfig, logger *observability.Logger, metrics *observability.Metrics) *ResolutionCache {
	return &ResolutionCache{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Key builders. All entries for one identity share the id so a single
// invalidation call can remove them together.

func IdentityKey(id int64) string     { return fmt.Sprintf("identity:%d", id) }
func ScopeKey(id int64) string        { return fmt.Sprintf("scope:%d", id) }
func PermissionsKey(id int64) string  { return fmt.Sprintf("perms:%d", id) }
func TeamMembersKey(teamID int64) string {
	return fmt.Sprintf("team:%d:members", teamID)
}

// IdentityTTL returns the TTL class for identity+role entries.
func (c *ResolutionCache) IdentityTTL() time.Duration { return c.ttl.Identity }

// ScopeTTL returns the TTL class for resolved scope entries.
func (c *ResolutionCache) ScopeTTL() time.Duration { return c.ttl.Scope }

// TeamMembersTTL returns the TTL class for team member list entries.
func (c *ResolutionCache) TeamMembersTTL() time.Duration { return c.ttl.TeamMembers }

// Get retrieves and decodes a cached value. The boolean is false on a
// miss, on a decode failure, and on backend failure.
func Get[T any](ctx context.Context, c *ResolutionCache, kind, key string) (*T, bool) {
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache read failed, treating as miss")
		c.recordMiss(kind)
		return nil, false
	}
	if !ok {
		c.recordMiss(kind)
		return nil, false
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache entry corrupt, treating as miss")
		c.recordMiss(kind)
		return nil, false
	}

	c.recordHit(kind)
	return &value, true
}

// Set encodes and stores a value. Population is best-effort: concurrent
// writers for the same key race and the last writer wins, which is safe
// because resolution is a pure function of store state.
func Set[T any](ctx context.Context, c *ResolutionCache, key string, value *T, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache encode failed, skipping populate")
		return
	}
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache write failed, skipping populate")
	}
}

// InvalidateIdentity removes the identity's cached record, scope and
// permission set, regardless of remaining TTL.
func (c *ResolutionCache) InvalidateIdentity(ctx context.Context, id int64) error {
	if c.metrics != nil {
		c.metrics.RecordInvalidation("identity")
	}
	err := c.backend.Delete(ctx, IdentityKey(id), ScopeKey(id), PermissionsKey(id))
	if err != nil {
		return fmt.Errorf("failed to invalidate identity %d: %w", id, err)
	}
	return nil
}

// InvalidateTeam removes a team's cached member list.
func (c *ResolutionCache) InvalidateTeam(ctx context.Context, teamID int64) error {
	if c.metrics != nil {
		c.metrics.RecordInvalidation("team_members")
	}
	if err := c.backend.Delete(ctx, TeamMembersKey(teamID)); err != nil {
		return fmt.Errorf("failed to invalidate team %d: %w", teamID, err)
	}
	return nil
}

func (c *ResolutionCache) recordHit(kind string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(kind)
	}
}

func (c *ResolutionCache) recordMiss(kind string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(kind)
	}
}
