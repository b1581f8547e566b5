package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/blockflow/pkg/maintenance"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/redis/go-redis/v9"
)

// CacheConfig selects and sizes the permission cache.
type CacheConfig struct {
	Provider   string
	RedisURL   string
	TTL        time.Duration
	MaxEntries int
}

// NewPermissionCache builds the membership cache. The memory cache is also returned
// as the sweeper for the maintenance scheduler; Redis expires its own keys.
func NewPermissionCache(ctx context.Context, logger *slog.Logger, cfg CacheConfig) (permissions.Cache, maintenance.Sweeper, func() error, error) {
	switch cfg.Provider {
	case "", "memory":
		cache := permissions.NewMemoryCache(cfg.TTL, cfg.MaxEntries)

		return cache, cache, func() error { return nil }, nil
	case "redis":
		options, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}

		client := redis.NewClient(options)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		logger.InfoContext(ctx, "using redis permission cache", "addr", options.Addr)

		return permissions.NewRedisCache(logger, client, cfg.TTL), nil, client.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}
