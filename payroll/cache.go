package payroll

import (
	"sync"
	"time"
)

// RuleSetCache caches the active rule set documents in front of a store.
// Implementations must be safe for concurrent use.
type RuleSetCache interface {
	// Get retrieves cached documents, returns nil on miss or expiry.
	Get() []*StoredRuleSet

	// Set stores documents in the cache.
	Set(sets []*StoredRuleSet)

	// Invalidate clears the cache, forcing a refresh on next Get.
	Invalidate()

	// IsValid returns true if the cache holds unexpired data.
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns defaults for rule set caching: no TTL,
// invalidation happens on mutations only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// InMemoryRuleSetCache is an in-memory implementation of RuleSetCache.
type InMemoryRuleSetCache struct {
	sets     []*StoredRuleSet
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryRuleSetCache creates a new in-memory rule set cache.
func NewInMemoryRuleSetCache(config CacheConfig) *InMemoryRuleSetCache {
	return &InMemoryRuleSetCache{config: config}
}

// Get retrieves cached documents, nil if invalid or expired.
func (c *InMemoryRuleSetCache) Get() []*StoredRuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	// Return a copy to prevent external modifications.
	setsCopy := make([]*StoredRuleSet, len(c.sets))
	copy(setsCopy, c.sets)
	return setsCopy
}

// Set stores documents in the cache.
func (c *InMemoryRuleSetCache) Set(sets []*StoredRuleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets = make([]*StoredRuleSet, len(sets))
	copy(c.sets, sets)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache.
func (c *InMemoryRuleSetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.sets = nil
}

// IsValid reports whether the cache holds unexpired data.
func (c *InMemoryRuleSetCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
