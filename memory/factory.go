package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/resilience"
)

// NewBackend opens the backend named by cfg.Provider. Redis and SQLite
// connections are retried with exponential backoff while the failure looks
// transient.
func NewBackend(ctx context.Context, cfg core.MemoryConfig, logger core.Logger) (Backend, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.ConnectAttempts > 0 {
		retry.MaxAttempts = cfg.ConnectAttempts
	}
	retry.InitialDelay = 200 * time.Millisecond
	retry.ShouldRetry = core.IsRetryable
	retry.Logger = logger

	switch cfg.Provider {
	case core.MemoryProviderInMemory, "":
		return NewInMemoryBackend(), nil

	case core.MemoryProviderRedis:
		retry.Operation = "memory.redis.connect"
		var client *core.RedisClient
		err := resilience.Retry(ctx, retry, func() error {
			c, err := core.NewRedisClient(core.RedisClientOptions{
				RedisURL:  cfg.RedisURL,
				DB:        cfg.RedisDB,
				Namespace: cfg.Namespace,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			client = c
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("open redis memory backend: %w", err)
		}
		return NewRedisBackend(client, logger), nil

	case core.MemoryProviderSQLite:
		retry.Operation = "memory.sqlite.open"
		var backend *SQLiteBackend
		err := resilience.Retry(ctx, retry, func() error {
			b, err := NewSQLiteBackend(cfg.SQLitePath, logger)
			if err != nil {
				return err
			}
			backend = b
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite memory backend: %w", err)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown memory provider %q: %w", cfg.Provider, core.ErrInvalidConfiguration)
	}
}
