package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medagent/config"
)

func TestLocalCache_GetSetRoundTrip(t *testing.T) {
	c := NewLocalCache(time.Minute, 10)
	ctx := context.Background()

	got, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	value := []byte(`{"analysis_type":"basic"}`)
	require.NoError(t, c.Set(ctx, "k", value))

	// stored values are copies
	value[0] = 'X'
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"analysis_type":"basic"}`, string(got))

	got[0] = 'Y'
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, byte('{'), again[0])
}

func TestLocalCache_Expiry(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewLocalCache(time.Minute, 10)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	now = now.Add(59 * time.Second)
	got, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Second)
	got, _ = c.Get(ctx, "k")
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Len())
}

func TestLocalCache_Eviction(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewLocalCache(time.Minute, 2)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "first", []byte("1")))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "second", []byte("2")))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "third", []byte("3")))

	assert.Equal(t, 2, c.Len())
	got, _ := c.Get(ctx, "first")
	assert.Nil(t, got, "entry closest to expiry is evicted")
	got, _ = c.Get(ctx, "third")
	assert.Equal(t, []byte("3"), got)

	// overwriting an existing key never evicts
	require.NoError(t, c.Set(ctx, "second", []byte("2b")))
	assert.Equal(t, 2, c.Len())
}

func TestLocalCache_Close(t *testing.T) {
	c := NewLocalCache(0, 0)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Len())
}

func TestJSONHelpers(t *testing.T) {
	type entry struct {
		Tier  string `json:"tier"`
		Count int    `json:"count"`
	}
	c := NewLocalCache(time.Minute, 10)
	ctx := context.Background()

	_, ok, err := GetJSON[entry](ctx, c, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, c, "k", entry{Tier: "batch", Count: 3}))
	got, ok, err := GetJSON[entry](ctx, c, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry{Tier: "batch", Count: 3}, got)

	require.NoError(t, c.Set(ctx, "bad", []byte("{")))
	_, ok, err = GetJSON[entry](ctx, c, "bad")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	k := Key("basic", "BP 150/95")
	assert.Len(t, k, 16)
	assert.Equal(t, k, Key("basic", "BP 150/95"))
	assert.NotEqual(t, k, Key("comprehensive", "BP 150/95"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestNew(t *testing.T) {
	c, err := New(config.CacheConfig{Type: "local", TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &LocalCache{}, c)

	c, err = New(config.CacheConfig{Type: "none"})
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))
	got, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = New(config.CacheConfig{Type: "memcached"})
	require.Error(t, err)

	_, err = New(config.CacheConfig{Type: "redis"})
	require.Error(t, err, "redis without URL")

	_, err = New(config.CacheConfig{Type: "redis", Redis: config.RedisConfig{URL: "not-a-url"}})
	require.Error(t, err)
}

func TestRedisCache_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	c := newRedisCache(client, RedisConfig{})
	assert.Equal(t, DefaultRedisPrefix, c.prefix)
	assert.Equal(t, DefaultRedisTTL, c.ttl)
	assert.Equal(t, DefaultRedisPrefix+"abc", c.key("abc"))

	c = newRedisCache(client, RedisConfig{Prefix: "test:", TTL: time.Hour})
	assert.Equal(t, "test:abc", c.key("abc"))
	assert.Equal(t, time.Hour, c.ttl)
}

func TestRedisCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := newRedisCache(client, RedisConfig{})
	defer c.Close()

	_, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.Error(t, c.Set(context.Background(), "k", []byte("v")))
}
