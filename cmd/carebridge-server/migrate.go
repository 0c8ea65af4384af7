package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"carebridge/backend/internal/config"
	"carebridge/backend/internal/store/postgres"
)

func migrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.Default()
			log.Info("applying migrations", databaseLogArgs(cfg.DatabaseURL)...)
			version, err := postgres.Migrate(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			log.Info("migrations applied", slog.Uint64("version", uint64(version)))
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.Default()
			log.Info("rolling back migrations", append([]any{slog.Int("steps", steps)}, databaseLogArgs(cfg.DatabaseURL)...)...)
			if err := postgres.MigrateDown(cfg.DatabaseURL, steps); err != nil {
				return err
			}
			log.Info("migrations rolled back", slog.Int("steps", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}
