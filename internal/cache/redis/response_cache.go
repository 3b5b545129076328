package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// ResponseCache implements domain.ResponseCache on Redis. Tier TTLs map to
// native key expiry, so expired entries read as misses without any sweeper.
type ResponseCache struct {
	rdb  *redis.Client
	ttls domain.CacheTTLs
}

// NewResponseCache creates a ResponseCache backed by the given Client.
func NewResponseCache(c *Client, ttls domain.CacheTTLs) *ResponseCache {
	if ttls.Short <= 0 {
		ttls = domain.DefaultCacheTTLs()
	}
	return &ResponseCache{rdb: c.Underlying(), ttls: ttls}
}

// Get implements domain.ResponseCache.
func (rc *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := rc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements domain.ResponseCache.
func (rc *ResponseCache) Set(ctx context.Context, key string, value []byte, tier domain.CacheTier) error {
	if err := rc.rdb.Set(ctx, key, value, rc.ttls.For(tier)).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Invalidate implements domain.ResponseCache. It walks matching keys with
// SCAN rather than KEYS to avoid blocking the server on large keyspaces.
func (rc *ResponseCache) Invalidate(ctx context.Context, prefix string) error {
	iter := rc.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := rc.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: invalidate %s: %w", prefix, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan %s: %w", prefix, err)
	}
	if len(keys) > 0 {
		if err := rc.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis: invalidate %s: %w", prefix, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.ResponseCache = (*ResponseCache)(nil)
