package shared

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// ErrNothingToRollback is returned by [RollbackMigration] when the schema is at version 0.
var ErrNothingToRollback = errors.New("no migrations to roll back")

// newMigrator builds a goose provider over the embedded sql/ directory.
func newMigrator(db *sql.DB) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationFiles, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration directory: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// RunMigrations applies every pending migration and returns the ones it ran.
//
// Applied versions are tracked by goose in the goose_db_version table, so a second call is a no-op.
func RunMigrations(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error) {
	provider, err := newMigrator(db)
	if err != nil {
		return nil, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return results, nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(ctx context.Context, db *sql.DB) (*goose.MigrationResult, error) {
	provider, err := newMigrator(db)
	if err != nil {
		return nil, err
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == 0 {
		return nil, ErrNothingToRollback
	}

	result, err := provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, ErrNothingToRollback
	}
	if err != nil {
		return nil, fmt.Errorf("failed to roll back version %d: %w", version, err)
	}
	return result, nil
}

// SchemaVersion reports the highest applied migration version, 0 once everything is rolled back.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := newMigrator(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
