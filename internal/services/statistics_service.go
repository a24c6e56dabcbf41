package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-api/internal/models"
	"weather-api/internal/repository"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

// StatisticsService handles weather statistics calculations
type StatisticsService struct {
	repo    repository.WeatherRepository
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service. A nil clock uses
// the real one.
func NewStatisticsService(repo repository.WeatherRepository, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StatisticsService{
		repo:    repo,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// AggregateYearly folds one station-year of observations into its
// aggregate. Each average divides by the number of non-null values of that
// field. It returns nil when there is nothing to aggregate.
func AggregateYearly(stationID int64, year int, observations []*models.Observation) *models.YearlyStats {
	if len(observations) == 0 {
		return nil
	}

	var sumMax, sumMin, sumPrecip int64
	var nMax, nMin int
	for _, obs := range observations {
		if obs.MaxTemp != nil {
			sumMax += int64(*obs.MaxTemp)
			nMax++
		}
		if obs.MinTemp != nil {
			sumMin += int64(*obs.MinTemp)
			nMin++
		}
		if obs.Precipitation != nil {
			sumPrecip += int64(*obs.Precipitation)
		}
	}

	return &models.YearlyStats{
		StationID:          stationID,
		Year:               year,
		AvgMaxTemp:         average(sumMax, nMax, models.TempScale),
		AvgMinTemp:         average(sumMin, nMin, models.TempScale),
		TotalPrecipitation: float64(sumPrecip) / models.PrecipScale,
		ObservationCount:   len(observations),
	}
}

func average(sum int64, n, scale int) float64 {
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n*scale)
}

// RecomputeYears rebuilds the aggregates of the given years for a station
// from everything stored, inside tx, and returns how many were upserted.
func (s *StatisticsService) RecomputeYears(ctx context.Context, tx repository.WeatherTx, stationID int64, years []int, now time.Time) (int, error) {
	timer := s.metrics.NewTimer(s.metrics.StatsCalculationDuration)
	defer timer.ObserveDuration()

	sorted := append([]int(nil), years...)
	sort.Ints(sorted)

	computed := 0
	for _, year := range sorted {
		observations, err := tx.ObservationsForYear(ctx, stationID, year)
		if err != nil {
			return computed, err
		}

		stats := AggregateYearly(stationID, year, observations)
		if stats == nil {
			continue
		}
		stats.CreatedAt = now
		stats.UpdatedAt = now

		if err := tx.UpsertYearlyStats(ctx, stats); err != nil {
			return computed, err
		}
		computed++

		s.logger.Debug(ctx, "[STATS_UPSERT] Yearly statistics recomputed", logging.Fields{
			"station_id":        stationID,
			"year":              year,
			"observation_count": stats.ObservationCount,
		})
	}

	s.metrics.StatsComputedTotal.Add(float64(computed))
	return computed, nil
}

// CalculateAllStatistics recomputes statistics for every station and year
// that has observations. Each station runs in its own transaction.
func (s *StatisticsService) CalculateAllStatistics(ctx context.Context) (int, error) {
	return s.calculate(ctx, nil)
}

// CalculateStationStatistics recomputes every year of one station
func (s *StatisticsService) CalculateStationStatistics(ctx context.Context, name string) (int, error) {
	station, err := s.repo.GetStationByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return s.calculate(ctx, &station.ID)
}

func (s *StatisticsService) calculate(ctx context.Context, only *int64) (int, error) {
	startTime := s.clock.Now()

	s.logger.Info(ctx, "[STATS_CALC_START] Starting statistics calculation", logging.Fields{
		"stage": "INITIALIZATION",
	})

	pairs, err := s.repo.ListStationYears(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list station years: %w", err)
	}

	type stationYears struct {
		id    int64
		name  string
		years []int
	}
	var stations []*stationYears
	byID := make(map[int64]*stationYears)
	for _, p := range pairs {
		if only != nil && p.StationID != *only {
			continue
		}
		sy := byID[p.StationID]
		if sy == nil {
			sy = &stationYears{id: p.StationID, name: p.StationName}
			byID[p.StationID] = sy
			stations = append(stations, sy)
		}
		sy.years = append(sy.years, p.Year)
	}

	totalStats := 0
	for _, station := range stations {
		if err := ctx.Err(); err != nil {
			return totalStats, err
		}

		var computed int
		err := s.repo.WithinTx(ctx, func(tx repository.WeatherTx) error {
			var err error
			computed, err = s.RecomputeYears(ctx, tx, station.id, station.years, s.clock.Now().UTC())
			return err
		})
		if err != nil {
			s.logger.Error(ctx, "[STATS_CALC_ERROR] Failed to calculate statistics", logging.Fields{
				"station": station.name,
			}, err)
			return totalStats, fmt.Errorf("failed to recompute %s: %w", station.name, err)
		}
		totalStats += computed

		s.logger.Info(ctx, "[STATS_STATION_COMPLETE] Station statistics calculated", logging.Fields{
			"station": station.name,
			"years":   computed,
		})
	}

	duration := s.clock.Since(startTime)

	s.logger.Info(ctx, "[STATS_CALC_COMPLETE] Statistics calculation completed", logging.Fields{
		"total_stations":   len(stations),
		"total_statistics": totalStats,
		"duration_seconds": duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return totalStats, nil
}

// GetStatistics retrieves statistics with filtering
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.YearlyStats, int, error) {
	return s.repo.GetStatistics(ctx, filter)
}
