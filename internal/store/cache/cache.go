// Package cache is a Redis-backed read-through cache sitting in front of
// store.FindLicenseByKey on the hot validate/heartbeat path, grounded on
// the go-redis/v9 client wiring used elsewhere in the pack. It implements
// activation.Cache; a nil *Cache is never passed to activation.WithCache,
// so callers that don't want caching simply omit the option.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clk-66/licensecore/internal/store"
)

// Cache wraps a redis.Client as an activation.Cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. ttl bounds how long a license row may go stale before
// a cache hit is no longer trusted; a zero ttl falls back to 30 seconds.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

// Connect parses a redis URL (as produced by most hosting providers) and
// pings it once before returning, matching the fail-fast construction
// pattern used for the other backing stores in this repo.
func Connect(ctx context.Context, redisURL string, ttl time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return New(client, ttl), nil
}

func cacheKey(licenseKey string) string { return "licensecore:license:" + licenseKey }

func (c *Cache) Get(ctx context.Context, key string) (*store.LicenseRow, bool) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("cache get", "key", key, "err", err)
		}
		return nil, false
	}

	var row store.LicenseRow
	if err := json.Unmarshal(raw, &row); err != nil {
		slog.Warn("cache decode", "key", key, "err", err)
		return nil, false
	}
	return &row, true
}

func (c *Cache) Set(ctx context.Context, key string, row *store.LicenseRow) {
	raw, err := json.Marshal(row)
	if err != nil {
		slog.Warn("cache encode", "key", key, "err", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(key), raw, c.ttl).Err(); err != nil {
		slog.Warn("cache set", "key", key, "err", err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		slog.Warn("cache invalidate", "key", key, "err", err)
	}
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error { return c.client.Close() }
