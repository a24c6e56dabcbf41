package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"weather-api/internal/config"
	"weather-api/internal/migrations"
	"weather-api/pkg/database"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

// withMigrator loads configuration, connects and hands a migrator to fn
func withMigrator(ctx context.Context, fn func(m *migrations.Migrator) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewStructuredLogger("weather-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	db, err := database.Open(cfg.Database.DB(), logger, metrics.NewCollector("weather_migrate", prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info(ctx, "[MIGRATE_START] Connected to database", logging.Fields{
		"driver": db.Driver(),
	})
	return fn(migrations.NewMigrator(db, logger))
}

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withMigrator(ctx, func(m *migrations.Migrator) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				v, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations, schema at version %d\n", applied, v)
				return nil
			})
		},
	}
}

func newDownCmd() *cobra.Command {
	var target int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations down to a target version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target < 0 {
				return fmt.Errorf("invalid target version %d", target)
			}
			ctx := cmd.Context()
			return withMigrator(ctx, func(m *migrations.Migrator) error {
				reverted, err := m.Down(ctx, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reverted %d migrations, schema at version %d\n", reverted, target)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&target, "to", 0, "Version to revert to (0 drops the whole schema)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withMigrator(ctx, func(m *migrations.Migrator) error {
				v, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the weather database schema",
		SilenceUsage: true,
	}
	root.AddCommand(newUpCmd(), newDownCmd(), newVersionCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
