package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fleetpulse/fleetpulse/server/internal/config"
)

// redisPingTimeout bounds the connectivity check made when opening redis.
const redisPingTimeout = 5 * time.Second

// Open builds the Backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil

	case config.BackendFile, "":
		return NewFile(cfg.File.Path), nil

	case config.BackendSQLite:
		return OpenSQLite(cfg.SQLite.Path)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close() //nolint:errcheck
			return nil, fmt.Errorf("store: redis %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedis(client, cfg.Redis.Key), nil

	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
