package core

import (
	"context"
	"fmt"

	"widgetcore/internal/config"
	"widgetcore/internal/infra/persistence/memory"
	"widgetcore/internal/infra/persistence/mongo"
	"widgetcore/internal/infra/persistence/postgres"
	"widgetcore/internal/infra/persistence/redis"
	"widgetcore/internal/infra/persistence/sqlite"
)

// OpenPersistentStore selects a backend from configuration. Durable stores
// returned here implement io.Closer.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig) (PersistentStore, error) {
	var (
		store PersistentStore
		err   error
	)
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.NewStore(), nil
	case config.DriverSQLite:
		store, err = sqlite.NewStore(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		store, err = postgres.NewStore(ctx, cfg.PostgresDSN)
	case config.DriverRedis:
		store, err = redis.NewStore(ctx, redis.Config{Addr: cfg.RedisAddr, Key: cfg.RedisKey})
	case config.DriverMongo:
		store, err = mongo.NewStore(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return store, nil
}
