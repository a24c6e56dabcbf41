package services

import (
	"context"
	"fmt"

	"weather-api/internal/models"
	"weather-api/internal/repository"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

// DefaultPageSize applies when a query arrives without a limit
const DefaultPageSize = 100

// WeatherService answers read queries for the API
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetObservations returns one page of observations, newest first, and the
// number of rows matching the filter
func (s *WeatherService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.Observation, int, error) {
	filter.Limit, filter.Offset = pageBounds(filter.Limit, filter.Offset)

	observations, total, err := s.repo.GetObservations(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("query observations: %w", err)
	}

	s.logger.Debug(ctx, "[QUERY_OBSERVATIONS] Observations queried", logging.Fields{
		"date":     filter.Date,
		"station":  filter.StationName,
		"returned": len(observations),
		"total":    total,
	})
	return observations, total, nil
}

// GetStatistics returns one page of yearly aggregates
func (s *WeatherService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.YearlyStats, int, error) {
	filter.Limit, filter.Offset = pageBounds(filter.Limit, filter.Offset)

	stats, total, err := s.repo.GetStatistics(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("query statistics: %w", err)
	}

	s.logger.Debug(ctx, "[QUERY_STATISTICS] Statistics queried", logging.Fields{
		"year":     filter.Year,
		"station":  filter.StationName,
		"returned": len(stats),
		"total":    total,
	})
	return stats, total, nil
}

// GetStations lists stations by name
func (s *WeatherService) GetStations(ctx context.Context, limit, offset int) ([]*models.Station, int, error) {
	limit, offset = pageBounds(limit, offset)

	stations, total, err := s.repo.ListStations(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list stations: %w", err)
	}
	return stations, total, nil
}

// HealthCheck reports whether the store is reachable
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		s.metrics.RecordDBError("health_check")
		return err
	}
	return nil
}
