package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"agromarket/internal/cache"
	"agromarket/internal/config"
	"agromarket/internal/database"
	"agromarket/internal/logger"
	"agromarket/internal/market"
)

// RedisKeyPrefix namespaces the listing-cache keys shared by every service.
const RedisKeyPrefix = "agromarket:"

var errRedisRequired = errors.New("redis storage backend selected but redis is not connected")

// Open returns the listing-cache storage selected by cfg.StorageBackend.
// The postgres backend also returns its *database.DB, which the caller
// must close; for the other backends it is nil. The redis backend uses
// cache.RedisClient, so cache.InitRedis must have succeeded first.
func Open(ctx context.Context, cfg *config.Config) (market.Storage, *database.DB, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory, "":
		logger.Log.Warn("Using in-memory listing storage, state is lost on restart")
		return cache.NewMemoryStore(), nil, nil
	case config.BackendRedis:
		if !cache.Enabled() {
			return nil, nil, errRedisRequired
		}
		return cache.NewRedisStore(cache.RedisClient, RedisKeyPrefix), nil, nil
	case config.BackendPostgres:
		db, err := database.InitDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres storage: %w", err)
		}
		return db, db, nil
	default:
		logger.Log.Error("Unknown storage backend", zap.String("backend", cfg.StorageBackend))
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
