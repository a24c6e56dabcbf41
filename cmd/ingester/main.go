package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"weather-api/internal/config"
	"weather-api/internal/migrations"
	"weather-api/pkg/database"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

const version = "1.0.0"

// app holds what every subcommand needs once configuration is loaded
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logging.NewStructuredLogger("weather-ingester", version, logging.ParseLevel(cfg.Logging.Level)),
		metrics: metrics.NewCollector("weather_ingester", prometheus.DefaultRegisterer),
	}, nil
}

// openStore connects to the configured database, optionally bringing the
// schema up to date first
func (a *app) openStore(ctx context.Context, migrate bool) (*database.DB, error) {
	db, err := database.Open(a.cfg.Database.DB(), a.logger, a.metrics)
	if err != nil {
		return nil, err
	}

	if migrate {
		if _, err := migrations.NewMigrator(db, a.logger).Up(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ingester",
		Short:         "Load daily weather station files and maintain yearly statistics",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCmd(), newRecomputeCmd(), newValidateCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var code exitError
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// exitError carries a process status out of a RunE without printing usage
type exitError int

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}
