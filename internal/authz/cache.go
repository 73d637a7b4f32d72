package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default cache lifetimes. GrantTTL bounds how long a revoked scope can still
// be honoured when invalidation is missed.
const (
	DefaultGrantTTL = 30 * time.Second
	DefaultDenyTTL  = 5 * time.Minute
)

// RedisCache stores decisions as "1"/"0" strings with per-result TTLs.
type RedisCache struct {
	client   *redis.Client
	grantTTL time.Duration
	denyTTL  time.Duration
}

// NewRedisCache returns a cache on client. Non-positive TTLs use the defaults.
func NewRedisCache(client *redis.Client, grantTTL, denyTTL time.Duration) *RedisCache {
	if grantTTL <= 0 {
		grantTTL = DefaultGrantTTL
	}
	if denyTTL <= 0 {
		denyTTL = DefaultDenyTTL
	}
	return &RedisCache{client: client, grantTTL: grantTTL, denyTTL: denyTTL}
}

func decisionKey(userID, unitID string) string {
	return fmt.Sprintf("authz:user:%s:unit:%s", userID, unitID)
}

func userPattern(userID string) string {
	return fmt.Sprintf("authz:user:%s:unit:*", userID)
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, userID, unitID string) (bool, bool, error) {
	val, err := c.client.Get(ctx, decisionKey(userID, unitID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("reading authz decision: %w", err)
	}
	return val == "1", true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, userID, unitID string, allowed bool) error {
	val, ttl := "0", c.denyTTL
	if allowed {
		val, ttl = "1", c.grantTTL
	}
	if err := c.client.Set(ctx, decisionKey(userID, unitID), val, ttl).Err(); err != nil {
		return fmt.Errorf("writing authz decision: %w", err)
	}
	return nil
}

// InvalidateUser implements Cache.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, userPattern(userID), 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning authz decisions: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting authz decisions: %w", err)
	}
	return nil
}
