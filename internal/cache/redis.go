// Redis backend for the notification cache.
//
// RedisCache implements NotificationCache and Invalidator over a shared Redis
// instance so multiple service nodes observe the same staleness signals.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-backed notification cache.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds construction parameters for RedisCache.
type RedisConfig struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string // Redis password
	DB        int    // Redis database number
	KeyPrefix string // Key prefix for namespacing (default: "notif:cache:")
}

// NewRedisCache creates a Redis-backed cache with its own client.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCacheFromClient(client, cfg.KeyPrefix)
}

// NewRedisCacheFromClient creates a Redis cache using an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "notif:cache:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(id string) string {
	return c.prefix + id
}

// Get implements NotificationCache.
func (c *RedisCache) Get(ctx context.Context, id string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set implements NotificationCache.
func (c *RedisCache) Set(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(id), payload, ttl).Err()
}

// InvalidateNotification implements Invalidator. Deleting a missing key is
// not an error; the signal is best-effort either way.
func (c *RedisCache) InvalidateNotification(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

// Ping verifies connectivity at startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
