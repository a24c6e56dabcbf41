package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"weather-api/internal/events"
	"weather-api/internal/models"
	"weather-api/internal/repository"
	"weather-api/internal/services"
	"weather-api/pkg/logging"
)

type runOptions struct {
	dataDir    string
	extension  string
	workers    int
	maxRetries int
	migrate    bool
	jsonOutput bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest every station file in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			applyIngestFlags(cmd, a, opts)
			return runIngest(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Directory containing station files (default from config)")
	cmd.Flags().StringVar(&opts.extension, "ext", "", "Data file extension (default from config)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Files ingested in parallel (default from config)")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", 0, "Retries per file on transient store conflicts (default from config)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Apply pending schema migrations before ingesting")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run report as JSON")

	return cmd
}

// applyIngestFlags overrides the loaded config with flags the user set
func applyIngestFlags(cmd *cobra.Command, a *app, opts runOptions) {
	if cmd.Flags().Changed("data-dir") {
		a.cfg.Ingest.DataDir = opts.dataDir
	}
	if cmd.Flags().Changed("ext") {
		a.cfg.Ingest.Extension = opts.extension
	}
	if cmd.Flags().Changed("workers") {
		a.cfg.Ingest.Workers = opts.workers
	}
	if cmd.Flags().Changed("max-retries") {
		a.cfg.Ingest.MaxRetries = opts.maxRetries
	}
}

func runIngest(ctx context.Context, a *app, opts runOptions, out io.Writer) error {
	defer a.logger.Sync()

	a.logger.Info(ctx, "[INGESTER_START] Starting weather data ingestion", logging.Fields{
		"version":     version,
		"data_dir":    a.cfg.Ingest.DataDir,
		"extension":   a.cfg.Ingest.Extension,
		"workers":     a.cfg.Ingest.Workers,
		"max_retries": a.cfg.Ingest.MaxRetries,
		"driver":      a.cfg.Database.Driver,
	})

	db, err := a.openStore(ctx, opts.migrate)
	if err != nil {
		a.logger.Error(ctx, "[INGESTER_ERROR] Failed to open store", logging.Fields{}, err)
		return err
	}
	defer db.Close()

	repo := repository.NewWeatherRepository(db, a.logger, a.metrics)
	stats := services.NewStatisticsService(repo, nil, a.logger, a.metrics)

	ingestOpts := services.IngestionOptions{
		Extension:  a.cfg.Ingest.Extension,
		Workers:    a.cfg.Ingest.Workers,
		MaxRetries: a.cfg.Ingest.MaxRetries,
	}
	if a.cfg.Kafka.Enabled() {
		publisher := events.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.logger)
		defer publisher.Close()
		ingestOpts.Publisher = publisher
	}

	ingest := services.NewIngestionService(repo, stats, ingestOpts, a.logger, a.metrics)
	run, err := ingest.IngestDirectory(ctx, a.cfg.Ingest.DataDir)
	if run != nil {
		if opts.jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(run); encErr != nil {
				return encErr
			}
		} else {
			printRunReport(out, "INGESTION COMPLETE", run)
		}
	}

	if code := services.ExitCode(run, err); code != 0 {
		if err != nil {
			a.logger.Error(ctx, "[INGESTER_ERROR] Ingestion aborted", logging.Fields{
				"exit_code": code,
			}, err)
		}
		return exitError(code)
	}
	return nil
}

func printRunReport(out io.Writer, title string, run *models.RunReport) {
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Run ID:                %s\n", run.RunID)
	fmt.Fprintf(out, "Files:                 %d (%d succeeded, %d failed)\n", len(run.Files), run.Succeeded, run.Failed)
	fmt.Fprintf(out, "Lines read:            %d\n", run.Totals.LinesRead)
	fmt.Fprintf(out, "Observations inserted: %d\n", run.Totals.ObservationsInserted)
	fmt.Fprintf(out, "Duplicates skipped:    %d\n", run.Totals.DuplicatesSkipped)
	fmt.Fprintf(out, "Sentinel skipped:      %d\n", run.Totals.SentinelSkipped)
	fmt.Fprintf(out, "Malformed skipped:     %d\n", run.Totals.MalformedSkipped)
	fmt.Fprintf(out, "Stats computed:        %d\n", run.Totals.StatsComputed)
	fmt.Fprintf(out, "Duration:              %v\n", run.Duration)

	if run.Failed == 0 {
		return
	}
	fmt.Fprintf(out, "\nFailed files (%d):\n", run.Failed)
	for _, f := range run.Files {
		if f.Failed() {
			fmt.Fprintf(out, "  - %s [%s] %s\n", f.File, f.ErrorKind, f.Error)
		}
	}
}

