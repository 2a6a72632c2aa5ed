package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-assistant/internal/config"
	"github.com/i474232898/weather-assistant/internal/logger"
	"github.com/i474232898/weather-assistant/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat)
			if cfg.UseMemoryStore() {
				log.Info("memory store selected; nothing to migrate")
				return nil
			}

			pg, err := store.ConnectPostgres(cfg.DatabaseURL, logger.Component(log, "store"))
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer pg.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema migrated")
			return nil
		},
	}
}
