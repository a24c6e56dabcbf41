package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"weather-api/internal/repository"
	"weather-api/internal/services"
	"weather-api/pkg/logging"
)

func newRecomputeCmd() *cobra.Command {
	var station string

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild yearly statistics from stored observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			db, err := a.openStore(ctx, false)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewWeatherRepository(db, a.logger, a.metrics)
			stats := services.NewStatisticsService(repo, nil, a.logger, a.metrics)

			var computed int
			if station != "" {
				computed, err = stats.CalculateStationStatistics(ctx, station)
			} else {
				computed, err = stats.CalculateAllStatistics(ctx)
			}
			if err != nil {
				a.logger.Error(ctx, "[STATS_ERROR] Statistics calculation failed", logging.Fields{
					"station": station,
				}, err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Recomputed %d yearly statistics rows\n", computed)
			return nil
		},
	}

	cmd.Flags().StringVar(&station, "station", "", "Only recompute this station")
	return cmd
}
