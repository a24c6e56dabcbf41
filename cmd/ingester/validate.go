package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"weather-api/internal/services"
)

func newValidateCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse station files and report line counts without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			applyIngestFlags(cmd, a, opts)

			ingest := services.NewIngestionService(nil, nil, services.IngestionOptions{
				Extension: a.cfg.Ingest.Extension,
			}, a.logger, a.metrics)

			run, err := ingest.DryRun(ctx, a.cfg.Ingest.DataDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return err
				}
			} else {
				printRunReport(out, "VALIDATION COMPLETE", run)
			}

			if code := services.ExitCode(run, nil); code != 0 {
				return exitError(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Directory containing station files (default from config)")
	cmd.Flags().StringVar(&opts.extension, "ext", "", "Data file extension (default from config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}
