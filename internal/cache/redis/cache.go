// Package redis implements repository.Cache over a shared Redis instance,
// for deployments that run more than one mediavault process against the
// same object store and want a cache layer all of them see.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mediavault/mediavault-core/internal/repository"
)

// Config configures the Redis connection.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// Client wraps a redis.Client with a logger, so callers hold one object
// instead of threading both through every constructor.
type Client struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewClient dials Redis and verifies connectivity with a Ping.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis")
	return &Client{client: client, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	c.logger.Info().Msg("closing redis connection")
	return c.client.Close()
}

// Health pings Redis to confirm it is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

const defaultCacheTTL = 5 * time.Minute

// cacheKeyPrefix namespaces every key this cache touches, so a Redis
// instance shared with other tenants never collides with mediavault's own
// keys.
const cacheKeyPrefix = "mediavault:cache:"

// Cache implements repository.Cache over Redis.
type Cache struct {
	client *Client
	ttl    time.Duration
}

// NewCache wraps client as a repository.Cache, defaulting ttl when <= 0.
func NewCache(client *Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis cache: get %q: %w", key, err)
	}
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.client.Set(ctx, cacheKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache: set %q: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.client.Del(ctx, cacheKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis cache: delete %q: %w", key, err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.client.Exists(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis cache: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// DeletePattern removes every key matching pattern (after namespacing),
// used to invalidate a whole subtree of cached manifests at once.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.client.Scan(ctx, 0, cacheKeyPrefix+pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.client.logger.Warn().Err(err).Str("key", iter.Val()).Msg("failed to delete key")
		}
	}
	return iter.Err()
}

// GetJSON retrieves and unmarshals a JSON value from the cache.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores a JSON value in the cache.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis cache: marshal: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

var _ repository.Cache = (*Cache)(nil)
