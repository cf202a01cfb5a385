// Package cache remembers which manifest URL last worked for a content ID,
// so repeated downloads skip the fallback search.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache provides thread-safe caching with expiration support.
type Cache interface {
	// Get retrieves a value. Returns false if not found or expired.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores a value with the specified TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// Delete removes a value.
	Delete(ctx context.Context, key string)
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance metrics.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	value      string
	expiration time.Time
}

func (e *entry) isExpired(now time.Time) bool {
	return now.After(e.expiration)
}

// MemoryCache is an in-memory implementation of Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory cache. Expired entries are dropped
// lazily on access.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		c.stats.Misses++
		return "", false
	}

	if e.isExpired(c.now()) {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.Misses++
		return "", false
	}

	c.stats.Hits++
	return e.value, true
}

// Set stores a value in the cache.
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:      value,
		expiration: c.now().Add(ttl),
	}
	c.stats.Sets++
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache anything.
func NewNoOpCache() Cache {
	return noOpCache{}
}

func (noOpCache) Get(context.Context, string) (string, bool) { return "", false }
func (noOpCache) Set(context.Context, string, string, time.Duration) {}
func (noOpCache) Delete(context.Context, string) {}
func (noOpCache) Stats() Stats { return Stats{} }
