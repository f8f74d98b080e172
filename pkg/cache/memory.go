package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// memoryEntry carries its own deadline because entries in the same cache
// use different TTL classes while the LRU only supports one.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a bounded in-process LRU backend. The LRU's own TTL
// acts as a ceiling; per-entry deadlines are checked on read.
type MemoryBackend struct {
	cache *lru.LRU[string, memoryEntry]
}

// DefaultMemorySize is the default maximum number of cached entries.
const DefaultMemorySize = 4096

// NewMemoryBackend creates a bounded in-memory backend. maxTTL must be at
// least as long as the longest TTL class stored through it.
func NewMemoryBackend(size int, maxTTL time.Duration) *MemoryBackend {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemoryBackend{
		cache: lru.NewLRU[string, memoryEntry](size, nil, maxTTL),
	}
}

// Get returns the value for key if present and not expired
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok := b.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		b.cache.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key with the given TTL
func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.cache.Add(key, memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes the given keys
func (b *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		b.cache.Remove(key)
	}
	return nil
}

// DeletePrefix removes every key with the given prefix
func (b *MemoryBackend) DeletePrefix(ctx context.Context, prefix string) error {
	for _, key := range b.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			b.cache.Remove(key)
		}
	}
	return nil
}

// Close is a no-op for the in-memory backend
func (b *MemoryBackend) Close() error {
	b.cache.Purge()
	return nil
}
