package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache over a redis instance. Failures are logged and
// swallowed; callers only ever observe a miss.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache builds a cache client. The connection is lazy; an unreachable
// redis shows up as misses, never as a constructor error.
func NewRedisCache(addr, password string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

// Get returns the cached value, or ("", false) on miss or any redis error.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		slog.Warn("cache get failed", "key", key, "err", err)
		return "", false
	}
	return value, true
}

// Set writes the value with an optional TTL. Errors are logged and dropped.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		slog.Warn("cache set failed", "key", key, "err", err)
	}
}

// Delete removes the key. Errors are logged and dropped.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("cache delete failed", "key", key, "err", err)
	}
}
