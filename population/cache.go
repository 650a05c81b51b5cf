package population

import (
	"sync"
	"time"
)

// Cache provides an abstraction for caching generated populations by run
// ID, so summary, filter and export requests against a recent run do not
// have to re-read the agents table.
type Cache interface {
	// Get retrieves a cached population, nil on miss or expiry
	Get(runID string) *Population

	// Set stores a population under its run ID
	Set(runID string, pop *Population)

	// Invalidate drops one run from the cache
	Invalidate(runID string)
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached populations.
	// Set to 0 for no expiration (manual invalidation only).
	TTL time.Duration

	// MaxEntries bounds how many populations are held at once; the
	// oldest entry is evicted when the bound is exceeded. Populations
	// can be large, so keep this small.
	MaxEntries int
}

// DefaultCacheConfig returns sensible defaults for population caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        10 * time.Minute,
		MaxEntries: 8,
	}
}

type cacheEntry struct {
	pop      *Population
	cachedAt time.Time
}

// InMemoryCache is a simple in-memory implementation of Cache.
// Thread-safe for concurrent access. Populations are immutable after
// generation, so entries are shared rather than copied.
type InMemoryCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryCache creates a new in-memory population cache.
func NewInMemoryCache(config CacheConfig) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

// Get retrieves a cached population.
// Returns nil if the run is absent or its entry has expired.
func (c *InMemoryCache) Get(runID string) *Population {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[runID]
	if !ok {
		return nil
	}

	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	return entry.pop
}

// Set stores a population, evicting the oldest entry if the cache is
// over capacity.
func (c *InMemoryCache) Set(runID string, pop *Population) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[runID] = cacheEntry{pop: pop, cachedAt: time.Now()}

	if c.config.MaxEntries <= 0 {
		return
	}
	for len(c.entries) > c.config.MaxEntries {
		oldestID := ""
		var oldestAt time.Time
		for id, entry := range c.entries {
			if oldestID == "" || entry.cachedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = entry.cachedAt
			}
		}
		delete(c.entries, oldestID)
	}
}

// Invalidate drops one run's population.
func (c *InMemoryCache) Invalidate(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, runID)
}
