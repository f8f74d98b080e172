package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/deskforge/deskforge/pkg/contextkeys"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements rate limiting using Redis so limits
// hold across multiple instances.
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
	logger *observability.Logger
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string, logger *observability.Logger) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
		logger: logger,
	}
}

// Allow checks if a request is allowed using a Redis fixed-window counter
func (rl *DistributedRateLimiter) Allow(ctx context.Context, identityID int64) (bool, error) {
	redisKey := fmt.Sprintf("%s:%d", rl.prefix, identityID)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open on Redis failure: rate limiting degrades,
		// authorization does not.
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Handler wraps an HTTP handler with distributed rate limiting
func (rl *DistributedRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identityID, ok := contextkeys.GetIdentity(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := rl.Allow(r.Context(), identityID)
		if err != nil {
			rl.logger.WithError(err).Warn("distributed rate limit check failed, allowing request")
		}
		if !allowed {
			rateLimitedResponse(w, rl.config.WindowDuration)
			return
		}

		next.ServeHTTP(w, r)
	})
}
