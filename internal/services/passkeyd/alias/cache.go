package alias

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache maps alias hashes to user ids. Entries are only written after the
// authoritative insert succeeded.
type Cache interface {
	Get(ctx context.Context, app, hash string) (string, bool, error)
	Set(ctx context.Context, app, hash, userID string) error
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, app, hash string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	userID, ok := c.entries[app+":"+hash]
	return userID, ok, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, app, hash, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[app+":"+hash] = userID
	return nil
}

// RedisCache implements Cache on Redis strings.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. A zero ttl keeps entries
// forever.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "passkeyd:alias:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(app, hash string) string {
	return c.prefix + app + ":" + hash
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, app, hash string) (string, bool, error) {
	userID, err := c.client.Get(ctx, c.key(app, hash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis alias cache: get: %w", err)
	}
	return userID, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, app, hash, userID string) error {
	if err := c.client.Set(ctx, c.key(app, hash), userID, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis alias cache: set: %w", err)
	}
	return nil
}
