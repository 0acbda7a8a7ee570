package controlplane

import (
	"sync"
	"time"

	"github.com/aponysus/settle/policy"
)

type cacheEntry struct {
	presets   policy.Presets
	expiresAt time.Time
	found     bool // false for a negative cache entry
}

// PresetsCache is a thread-safe TTL cache of presets keyed by profile. It
// also keeps the last successfully fetched presets of each profile after
// they expire, for use as a fallback.
type PresetsCache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	lastGood map[string]policy.Presets
	nowFn    func() time.Time
}

// NewPresetsCache creates a new, empty PresetsCache.
func NewPresetsCache() *PresetsCache {
	return &PresetsCache{
		entries:  make(map[string]cacheEntry),
		lastGood: make(map[string]policy.Presets),
	}
}

// Get returns the cached presets of profile. foundInCache is false when the
// entry is missing or expired; isNegativeCache is set for a cached miss.
func (c *PresetsCache) Get(profile string) (ps policy.Presets, foundInCache bool, isNegativeCache bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[profile]
	if !ok || c.now().After(entry.expiresAt) {
		return policy.Presets{}, false, false
	}
	return entry.presets, true, !entry.found
}

// LastGood returns the most recent presets stored for profile, ignoring
// expiry and negative entries.
func (c *PresetsCache) LastGood(profile string) (policy.Presets, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ps, ok := c.lastGood[profile]
	return ps, ok
}

// Set adds or updates the presets of profile.
func (c *PresetsCache) Set(profile string, ps policy.Presets, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[profile] = cacheEntry{presets: ps, expiresAt: c.now().Add(ttl), found: true}
	c.lastGood[profile] = ps
}

// SetMissing records a negative cache entry for profile.
func (c *PresetsCache) SetMissing(profile string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[profile] = cacheEntry{expiresAt: c.now().Add(ttl)}
}

// Invalidate removes the entry of profile. The last-known-good copy stays.
func (c *PresetsCache) Invalidate(profile string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, profile)
}

func (c *PresetsCache) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}
