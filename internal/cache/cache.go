// Package cache stores analysis results keyed by content hash. The local backend keeps
// entries in memory; the Redis backend shares them across instances.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"medagent/config"
)

// Cache is a byte-value store with a fixed TTL per backend.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the stored value, or nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte) error

	// Close releases any resources held by the cache.
	Close() error
}

// New creates the backend selected by cfg.Type.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalCache(cfg.TTL, DefaultMaxEntries), nil
	case "redis":
		return NewRedisCache(RedisConfig{URL: cfg.Redis.URL, Prefix: cfg.Redis.Prefix, TTL: cfg.TTL})
	case "none":
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// Key hashes parts into a fixed-width cache key. Parts are length-prefixed so that
// ("ab","c") and ("a","bc") never collide.
func Key(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(strconv.Itoa(len(p)))
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(p)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// GetJSON reads and decodes a cached value. ok is false on a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (value T, ok bool, err error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return value, false, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return value, true, nil
}

// SetJSON encodes and stores value.
func SetJSON(ctx context.Context, c Cache, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.Set(ctx, key, data)
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (NoopCache) Set(context.Context, string, []byte) error   { return nil }
func (NoopCache) Close() error                                { return nil }
