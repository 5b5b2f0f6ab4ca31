package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Generation identifies the cache contents between two invalidations.
type Generation int64

// Cache stores derived read models, such as payment statistics, that are
// dropped wholesale whenever the underlying records change.
//
// A reader that misses computes the value and stores it with the
// Generation its Get returned. If an invalidation happened in between, the
// write lands in a dead generation and is never served.
type Cache interface {
	// Get decodes the cached value into dst and reports whether it was found,
	// along with the generation it looked in.
	Get(ctx context.Context, key string, dst any) (Generation, bool, error)
	Set(ctx context.Context, gen Generation, key string, value any) error
	// Invalidate makes every previously stored key unreachable.
	Invalidate(ctx context.Context) error
}

// NewRedisClient connects to redisURL and pings it. An empty URL returns a
// nil client, which callers treat as caching disabled.
func NewRedisClient(ctx context.Context, redisURL string, logger zerolog.Logger) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("redis connected")
	return client, nil
}

// RedisCache namespaces keys by a generation counter. Invalidate bumps the
// counter instead of scanning for keys; stale generations expire by TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) genKey() string {
	return c.prefix + ":gen"
}

func (c *RedisCache) generation(ctx context.Context) (Generation, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: read generation: %w", err)
	}
	return Generation(gen), nil
}

func (c *RedisCache) key(gen Generation, key string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key)
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) (Generation, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return 0, false, err
	}
	data, err := c.client.Get(ctx, c.key(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return gen, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return gen, true, nil
}

// Set stores value under gen, which must come from a prior Get.
func (c *RedisCache) Set(ctx context.Context, gen Generation, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(gen, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("cache: bump generation: %w", err)
	}
	return nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (Generation, bool, error) { return 0, false, nil }
func (Nop) Set(context.Context, Generation, string, any) error         { return nil }
func (Nop) Invalidate(context.Context) error                           { return nil }

// New returns a RedisCache when client is set and Nop otherwise.
func New(client *redis.Client, prefix string, ttl time.Duration) Cache {
	if client == nil {
		return Nop{}
	}
	return NewRedisCache(client, prefix, ttl)
}
