// Package cache keeps rendered status-page projections in Redis.
//
// A projection is rebuilt at most once per page refresh interval: the
// cache entry's TTL equals the interval clients poll at, so a cached
// page can never be staler than what the client would tolerate anyway.
// Definition changes invalidate the entry immediately rather than
// waiting out the TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// pageKeyPrefix namespaces projection entries per slug.
const pageKeyPrefix = "kubiq:cache:status_page:"

// DefaultPageTTL bounds the cache lifetime for pages without a usable
// refresh interval.
const DefaultPageTTL = 30 * time.Second

// Cache is a Redis-backed store for rendered status pages.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger.With("component", "page_cache"),
	}, nil
}

// GetStatusPage loads a cached projection into v. False means a miss;
// a corrupt entry also reads as a miss, the caller rebuilds and
// overwrites it.
func (c *Cache) GetStatusPage(ctx context.Context, slug string, v any) (bool, error) {
	data, err := c.client.Get(ctx, pageKeyPrefix+slug).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("corrupt status page cache entry", "slug", slug, "error", err)
		return false, nil
	}
	return true, nil
}

// SetStatusPage caches a projection for one refresh interval.
func (c *Cache) SetStatusPage(ctx context.Context, slug string, v any, refresh time.Duration) error {
	ttl := refresh
	if ttl <= 0 {
		ttl = DefaultPageTTL
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pageKeyPrefix+slug, data, ttl).Err()
}

// InvalidateStatusPage drops a cached projection after its definition
// changes or the page is deleted.
func (c *Cache) InvalidateStatusPage(ctx context.Context, slug string) error {
	return c.client.Del(ctx, pageKeyPrefix+slug).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
