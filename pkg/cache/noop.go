package cache

import (
	"context"
	"time"
)

// NoopBackend never stores anything: every read is a miss, so every
// authorization check becomes a live database lookup. Used when caching
// is disabled by configuration and as the degraded mode in tests.
type NoopBackend struct{}

// NewNoopBackend returns a backend that caches nothing
func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

func (b *NoopBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (b *NoopBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (b *NoopBackend) Delete(ctx context.Context, keys ...string) error {
	return nil
}

func (b *NoopBackend) DeletePrefix(ctx context.Context, prefix string) error {
	return nil
}

func (b *NoopBackend) Close() error {
	return nil
}
