package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/deskforge/deskforge/pkg/contextkeys"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 300,
		WindowDuration:    time.Minute,
		BurstSize:         30,
	}
}

// RateLimiter implements per-identity rate limiting using a token bucket.
// State is in-process; multi-instance deployments should use the
// Redis-backed DistributedRateLimiter instead.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[int64]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a new in-memory rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[int64]*bucket),
	}
}

// Allow reports whether the identity may make another request now
func (rl *RateLimiter) Allow(identityID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[identityID]
	if !ok {
		b = &bucket{
			tokens:     float64(rl.config.BurstSize),
			lastUpdate: now,
		}
		rl.buckets[identityID] = b
	}

	refillRate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	b.tokens += now.Sub(b.lastUpdate).Seconds() * refillRate
	if b.tokens > float64(rl.config.BurstSize) {
		b.tokens = float64(rl.config.BurstSize)
	}
	b.lastUpdate = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Handler wraps an HTTP handler with per-identity rate limiting.
// Unauthenticated requests pass through; the identity middleware
// rejects them on its own terms.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identityID, ok := contextkeys.GetIdentity(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.Allow(identityID) {
			rateLimitedResponse(w, rl.config.WindowDuration)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitedResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
