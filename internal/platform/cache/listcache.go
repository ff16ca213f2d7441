package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ListCache stores rendered listing responses. Misses and backend failures
// look the same to callers: the read path falls through to the store.
type ListCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	// Purge drops every entry; writes call it so listings never go stale.
	Purge(ctx context.Context)
}

// NopListCache never stores anything.
type NopListCache struct{}

func (NopListCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NopListCache) Set(context.Context, string, []byte)        {}
func (NopListCache) Purge(context.Context)                      {}

// MemoryListCache is an in-process LRU bounded by entry count, with entries
// expiring after a fixed TTL.
type MemoryListCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryListCache creates an LRU holding at most size entries for ttl each.
func NewMemoryListCache(size int, ttl time.Duration) *MemoryListCache {
	return &MemoryListCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *MemoryListCache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *MemoryListCache) Set(_ context.Context, key string, value []byte) {
	c.lru.Add(key, value)
}

func (c *MemoryListCache) Purge(context.Context) {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *MemoryListCache) Len() int {
	return c.lru.Len()
}

// RedisListCache keeps listings in Redis under a key prefix with a TTL.
type RedisListCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisListCache creates a Redis-backed listing cache.
func NewRedisListCache(client *redis.Client, prefix string, ttl time.Duration) *RedisListCache {
	return &RedisListCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisListCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("list cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

func (c *RedisListCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		slog.Warn("list cache set failed", "key", key, "error", err)
	}
}

func (c *RedisListCache) Purge(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("list cache scan failed", "prefix", c.prefix, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("list cache purge failed", "prefix", c.prefix, "error", err)
	}
}
