package config

import (
	"context"
	"fmt"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/lock/store/badger"
	"github.com/marmos91/nfs4state/pkg/lock/store/postgres"
)

// CreateLockBackend opens the lock backend selected by cfg.Backend.
func CreateLockBackend(ctx context.Context, cfg LockConfig) (lock.Backend, error) {
	switch cfg.Backend {
	case LockBackendMemory, "":
		return lock.NewMemoryBackend(), nil
	case LockBackendBadger:
		return createBadgerLockBackend(cfg.Badger)
	case LockBackendPostgres:
		return createPostgresLockBackend(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown lock backend: %q", cfg.Backend)
	}
}

func createBadgerLockBackend(cfg BadgerLockConfig) (lock.Backend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("badger lock backend requires path to be set")
	}
	backend, err := badger.Open(badger.Config{
		Path:           cfg.Path,
		IndexCacheSize: cfg.IndexCacheSize.Int64(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Lock backend opened", "backend", LockBackendBadger, "path", cfg.Path)
	return backend, nil
}

func createPostgresLockBackend(ctx context.Context, cfg PostgresLockConfig) (lock.Backend, error) {
	backend, err := postgres.Open(ctx, postgresConfig(cfg))
	if err != nil {
		return nil, err
	}
	logger.Info("Lock backend opened",
		"backend", LockBackendPostgres,
		"host", cfg.Host,
		"database", cfg.Database,
		"instance_id", backend.InstanceID())
	return backend, nil
}

// postgresConfig converts the file representation to the backend's config
// with the backend's defaults applied.
func postgresConfig(cfg PostgresLockConfig) postgres.Config {
	pg := postgres.Config{
		URL:            cfg.URL,
		Host:           cfg.Host,
		Port:           cfg.Port,
		Database:       cfg.Database,
		User:           cfg.User,
		Password:       cfg.Password,
		SSLMode:        cfg.SSLMode,
		MaxConns:       cfg.MaxConns,
		ConnectTimeout: cfg.ConnectTimeout,
		AutoMigrate:    cfg.AutoMigrate,
	}
	pg.ApplyDefaults()
	return pg
}

// PostgresConnectionString returns the connection string of the postgres
// lock backend, for the migrate command.
func PostgresConnectionString(cfg LockConfig) string {
	pg := postgresConfig(cfg.Postgres)
	return pg.ConnectionString()
}
