// Package store selects the prediction cache backend from configuration.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/irisserve/cmd/server/config"
	"github.com/HatiCode/irisserve/pkg/cache"
)

// New returns the configured cache and a function releasing it. With
// cache=none both the cache and the error are nil.
func New(cfg *config.Config, logger *slog.Logger) (cache.Cache, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Cache {
	case config.CacheNone, "":
		logger.Info("prediction cache disabled")
		return nil, func() {}, nil

	case config.CacheMemory:
		mc, err := cache.NewMemoryCache(cfg.CacheMaxEntries, cfg.CacheTTL, time.Minute)
		if err != nil {
			return nil, nil, fmt.Errorf("create memory cache: %w", err)
		}
		logger.Info("using in-memory prediction cache",
			"max_entries", cfg.CacheMaxEntries,
			"ttl", cfg.CacheTTL,
		)
		return mc, mc.Stop, nil

	case config.CacheRedis:
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis cache: %w", err)
		}
		logger.Info("using redis prediction cache",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.CacheTTL,
		)
		closeFn := func() {
			if err := rc.Close(); err != nil {
				logger.Error("failed to close redis cache", "error", err)
			}
		}
		return rc, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache)
	}
}
