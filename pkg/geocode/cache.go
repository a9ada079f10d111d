package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores resolved place names.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// RedisCache is a Cache in Redis with a fixed TTL.
type RedisCache struct {
	cli *redis.Client
	ttl time.Duration
}

// NewRedisCache wraps an existing client. A zero ttl keeps entries forever.
func NewRedisCache(cli *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{cli: cli, ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := c.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.cli.Set(ctx, key, value, c.ttl).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.cli.Close()
}

// Cached puts a Cache in front of a Geocoder. Points are keyed at five
// decimal places (about a meter), and only non-empty names are stored.
type Cached struct {
	next  Geocoder
	cache Cache
	log   *zap.Logger
}

// NewCached wraps next with cache.
func NewCached(next Geocoder, cache Cache, logger *zap.Logger) *Cached {
	return &Cached{next: next, cache: cache, log: logger.With(zap.String("component", "geocode-cache"))}
}

// ReverseGeocode implements Geocoder. Cache failures fall through to next.
func (c *Cached) ReverseGeocode(ctx context.Context, lng, lat float64) (string, error) {
	key := cacheKey(lng, lat)

	name, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Debug("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return name, nil
	}

	name, err = c.next.ReverseGeocode(ctx, lng, lat)
	if err != nil || name == "" {
		return name, err
	}

	if err := c.cache.Set(ctx, key, name); err != nil {
		c.log.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return name, nil
}

func cacheKey(lng, lat float64) string {
	return fmt.Sprintf("placename:%.5f,%.5f", lng, lat)
}
