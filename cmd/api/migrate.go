package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recruitcrm/api/internal/store"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every pending migration from MIGRATIONS_DIR.

Examples:
  # Apply pending migrations
  api migrate

  # Roll back the most recent migration
  api migrate --down`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the most recent migration")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if migrateDown {
		version, err := store.RollbackLatest(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		if version == "" {
			log.Info("no migration to roll back")
			return nil
		}
		log.Info("migration rolled back", zap.String("version", version))
		return nil
	}

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.Strings("versions", applied))
	return nil
}
