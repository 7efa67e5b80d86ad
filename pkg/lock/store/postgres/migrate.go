package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock/store/postgres/migrations"
)

const migrationsTable = "nfs4state_schema_migrations"

// RunMigrations applies every pending schema migration.
// golang-migrate takes a postgres advisory lock, so concurrent instances
// starting together migrate only once.
func RunMigrations(ctx context.Context, connString string) error {
	m, closeFn, err := newMigrator(ctx, connString)
	if err != nil {
		return err
	}
	defer closeFn()

	logger.Info("Applying lock schema migrations")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database is up to date)")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	logger.Info("Current lock schema version", "version", version, "dirty", dirty)
	if dirty {
		logger.Warn("Lock schema is in dirty state - manual intervention may be required")
	}
	return nil
}

// MigrationVersion returns the applied schema version. A database without
// any migration reports version 0.
func MigrationVersion(ctx context.Context, connString string) (uint, bool, error) {
	m, closeFn, err := newMigrator(ctx, connString)
	if err != nil {
		return 0, false, err
	}
	defer closeFn()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

func newMigrator(ctx context.Context, connString string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Debug("Failed to close migrator", "source_error", srcErr, "db_error", dbErr)
		}
	}, nil
}
