package storage

import (
	"context"
	"fmt"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/models"
)

// NewCache builds and initializes the configured backend. When the backend
// cannot be reached the service keeps running on a NoopCache.
func NewCache(ctx context.Context, cfg *models.MConfig, log *logger.Logger) (interfaces.ICache, error) {
	var cache interfaces.ICache

	switch cfg.Storage.DBType {
	case "sqlite", "":
		cache = NewSQLiteCache(cfg, log)
	case "postgres":
		cache = NewPostgresCache(cfg, log)
	case "memory":
		cache = NewMemoryCache()
	case "none":
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown db_type %q", cfg.Storage.DBType)
	}

	if err := cache.Initialize(ctx); err != nil {
		log.Warning("Cache backend %s unavailable, continuing without cache: %v", cache.Name(), err)
		_ = cache.Close()
		return NoopCache{}, nil
	}
	return cache, nil
}
