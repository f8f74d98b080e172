package cache

import (
	"context"
	"time"
)

// Backend is the capability interface for the cache store. Implementations
// must be safe for concurrent use; each key's value is replaced atomically.
// The backend is chosen once at startup via configuration; there is no
// runtime backend switching.
type Backend interface {
	// Get returns the value for key. The boolean is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases backend resources.
	Close() error
}
