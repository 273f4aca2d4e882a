package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer teardown()

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if cfg.Database.Type != "pgsql" {
			if err := store.AutoMigrate(db); err != nil {
				zap.S().Fatalw("running auto migration", "error", err)
			}
			zap.S().Info("Db migrated")
			return nil
		}

		pool, err := store.NewPgxPool(cmd.Context(), cfg, 2)
		if err != nil {
			zap.S().Fatalw("connecting to the job queue", "error", err)
		}
		defer pool.Close()

		if err := migrations.MigrateStore(cmd.Context(), db, cfg.Service.MigrationFolder, pool); err != nil {
			zap.S().Fatalw("running migrations", "error", err)
		}

		zap.S().Info("Db migrated")
		return nil
	},
}
