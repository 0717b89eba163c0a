package status

import (
	"context"
	"errors"
	"time"

	"github.com/opslink/statuswatch/internal/pkg/redis"
)

const (
	snapshotKey = "statuswatch:status:snapshot"

	// DefaultCacheTTL matches the dashboard refresh interval.
	DefaultCacheTTL = 15 * time.Second
)

// RedisCache stores the snapshot in Redis with a short TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed snapshot cache. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context) (*Snapshot, error) {
	var snapshot Snapshot
	if err := c.client.GetJSON(ctx, snapshotKey, &snapshot); err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return &snapshot, nil
}

// Set stores the snapshot.
func (c *RedisCache) Set(ctx context.Context, snapshot *Snapshot) error {
	return c.client.SetJSON(ctx, snapshotKey, snapshot, c.ttl)
}

// Delete removes the stored snapshot.
func (c *RedisCache) Delete(ctx context.Context) error {
	return c.client.Delete(ctx, snapshotKey)
}
