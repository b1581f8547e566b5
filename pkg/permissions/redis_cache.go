package permissions

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/blockflow/pkg/models"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "blockflow:perm:"

// RedisCache shares resolved permissions between API replicas. Entries expire through
// the key TTL; size bounds are left to the server's maxmemory policy (volatile-ttl
// evicts the keys closest to expiry).
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(logger *slog.Logger, client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("cache", "redis"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (models.Permission, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "permission cache read failed", "key", key, "error", err)
		}

		return models.PermissionNone, false
	}

	level, err := strconv.Atoi(raw)
	if err != nil || level < int(models.PermissionNone) || level > int(models.PermissionOwner) {
		c.logger.WarnContext(ctx, "discarding malformed permission cache entry", "key", key, "value", raw)

		return models.PermissionNone, false
	}

	return models.Permission(level), true
}

func (c *RedisCache) Set(ctx context.Context, key string, permission models.Permission) {
	err := c.client.Set(ctx, redisKeyPrefix+key, strconv.Itoa(int(permission)), c.ttl).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "permission cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	err := c.client.Del(ctx, redisKeyPrefix+key).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "permission cache delete failed", "key", key, "error", err)
	}
}
