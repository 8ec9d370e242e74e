package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/playlistbot/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the config template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)

	r.writePlain("%s\n", r.palette.OK("✓ Config written to "+r.configPath))
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret\n")
	r.writePlain("2. Set destination.playlist_id and destination.playlist_name\n")
	r.writePlain("3. Run 'playlistbot auth'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	version, err := shared.SchemaVersion(ctx, db)
	if err := errors.Join(err, db.Close()); err != nil {
		return fmt.Errorf("failed to finish database setup: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("✓ Database ready at %s (schema version %d)", r.config.Database.Path, version)))
}

// SetupRollback reverts the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	result, err := shared.RollbackMigration(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	r.logger.Info("rolled back migration", "source", result.Source.Path, "version", result.Source.Version)
	return r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("✓ Rolled back migration %d", result.Source.Version)))
}
