package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the local cache size.
const DefaultMaxEntries = 1024

type localEntry struct {
	value   []byte
	expires time.Time
}

// LocalCache implements Cache in process memory.
// This is suitable for single-instance deployments.
type LocalCache struct {
	mu         sync.Mutex
	entries    map[string]localEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewLocalCache creates an in-memory cache. A ttl of zero keeps entries until evicted;
// when maxEntries is reached the entry closest to expiry is evicted.
func NewLocalCache(ttl time.Duration, maxEntries int) *LocalCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &LocalCache{
		entries:    make(map[string]localEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the stored value.
func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, nil
	}
	return slices.Clone(e.value), nil
}

// Set stores a copy of value.
func (c *LocalCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict()
	}

	e := localEntry{value: slices.Clone(value)}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

// Len returns the number of stored entries, including expired ones not yet removed.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close drops all entries.
func (c *LocalCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return nil
}

func (c *LocalCache) expired(e localEntry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

// evict removes expired entries, or the entry closest to expiry if none have expired.
// Caller holds c.mu.
func (c *LocalCache) evict() {
	var oldestKey string
	var oldest time.Time
	removed := false
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed = true
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if !removed && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
