package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"weather-api/internal/models"
	"weather-api/pkg/database"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

// WeatherRepository provides data access for weather data
type WeatherRepository interface {
	// WithinTx runs fn in one store transaction. Nothing fn writes is
	// visible unless it returns nil.
	WithinTx(ctx context.Context, fn func(tx WeatherTx) error) error

	// Station operations
	GetStationByName(ctx context.Context, name string) (*models.Station, error)
	ListStations(ctx context.Context, limit, offset int) ([]*models.Station, int, error)

	// Observation operations
	GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error)

	// Statistics operations
	GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.YearlyStats, int, error)
	ListStationYears(ctx context.Context) ([]StationYear, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// WeatherTx is the write side used by ingestion, bound to one transaction
type WeatherTx interface {
	ResolveStation(ctx context.Context, name string, now time.Time) (*models.Station, bool, error)
	InsertObservations(ctx context.Context, observations []*models.Observation) (int, error)
	ObservationsForYear(ctx context.Context, stationID int64, year int) ([]*models.Observation, error)
	UpsertYearlyStats(ctx context.Context, stats *models.YearlyStats) error
}

// ObservationFilter defines filters for querying observations
type ObservationFilter struct {
	Date        *models.Date
	StationName *string
	Limit       int
	Offset      int
}

// StatisticsFilter defines filters for querying statistics
type StatisticsFilter struct {
	Year        *int
	StationName *string
	Limit       int
	Offset      int
}

// StationYear is one (station, year) pair that has observations
type StationYear struct {
	StationID   int64  `db:"station_id"`
	StationName string `db:"station_name"`
	Year        int    `db:"year"`
}

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// WithinTx runs fn inside a transaction on the repository's database
func (r *weatherRepository) WithinTx(ctx context.Context, fn func(tx WeatherTx) error) error {
	return r.db.WithTx(ctx, func(tx *database.Tx) error {
		return fn(&weatherTx{conn: &tx.Conn, logger: r.logger, metrics: r.metrics})
	})
}

// GetStationByName retrieves a station by its exact name
func (r *weatherRepository) GetStationByName(ctx context.Context, name string) (*models.Station, error) {
	var station models.Station
	err := r.db.GetContext(ctx, "get_station", &station,
		`SELECT id, name, created_at FROM stations WHERE name = ?`, name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "station",
			ID:       name,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &station, nil
}

// ListStations retrieves stations ordered by name with pagination
func (r *weatherRepository) ListStations(ctx context.Context, limit, offset int) ([]*models.Station, int, error) {
	var total int
	if err := r.db.GetContext(ctx, "count_stations", &total, `SELECT COUNT(*) FROM stations`); err != nil {
		return nil, 0, fmt.Errorf("failed to count stations: %w", err)
	}

	var stations []*models.Station
	err := r.db.SelectContext(ctx, "list_stations", &stations, `
		SELECT id, name, created_at
		FROM stations
		ORDER BY name
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, total, nil
}

// GetObservations retrieves observations with filtering and pagination,
// newest first
func (r *weatherRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error) {
	var where []string
	var args []interface{}

	if filter.Date != nil {
		where = append(where, "o.date = ?")
		args = append(args, *filter.Date)
	}

	if filter.StationName != nil {
		where = append(where, "s.name = ?")
		args = append(args, *filter.StationName)
	}

	from := `
		FROM observations o
		JOIN stations s ON s.id = o.station_id
	` + whereClause(where)

	// Get total count
	var totalCount int
	err := r.db.GetContext(ctx, "count_observations", &totalCount, "SELECT COUNT(*)"+from, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	query := `
		SELECT o.id, o.station_id, s.name AS station_name, o.date,
		       o.max_temp, o.min_temp, o.precipitation, o.created_at
	` + from + `
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, filter.Offset)

	var observations []*models.Observation
	if err := r.db.SelectContext(ctx, "get_observations", &observations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get observations: %w", err)
	}

	return observations, totalCount, nil
}

// GetStatistics retrieves yearly statistics with filtering and pagination
func (r *weatherRepository) GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.YearlyStats, int, error) {
	var where []string
	var args []interface{}

	if filter.Year != nil {
		where = append(where, "y.year = ?")
		args = append(args, *filter.Year)
	}

	if filter.StationName != nil {
		where = append(where, "s.name = ?")
		args = append(args, *filter.StationName)
	}

	from := `
		FROM yearly_stats y
		JOIN stations s ON s.id = y.station_id
	` + whereClause(where)

	var totalCount int
	err := r.db.GetContext(ctx, "count_statistics", &totalCount, "SELECT COUNT(*)"+from, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count statistics: %w", err)
	}

	query := `
		SELECT y.id, y.station_id, s.name AS station_name, y.year,
		       y.avg_max_temp, y.avg_min_temp, y.total_precipitation,
		       y.observation_count, y.created_at, y.updated_at
	` + from + `
		ORDER BY y.created_at DESC, y.id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, filter.Offset)

	var statistics []*models.YearlyStats
	if err := r.db.SelectContext(ctx, "get_statistics", &statistics, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get statistics: %w", err)
	}

	return statistics, totalCount, nil
}

// ListStationYears returns every (station, year) pair with observations
func (r *weatherRepository) ListStationYears(ctx context.Context) ([]StationYear, error) {
	year := "CAST(strftime('%Y', o.date) AS INTEGER)"
	if r.db.Driver() == database.DriverPostgres {
		year = "CAST(EXTRACT(YEAR FROM o.date) AS INTEGER)"
	}

	query := `
		SELECT DISTINCT o.station_id, s.name AS station_name, ` + year + ` AS year
		FROM observations o
		JOIN stations s ON s.id = o.station_id
		WHERE o.date IS NOT NULL
		ORDER BY station_name, year
	`

	var pairs []StationYear
	if err := r.db.SelectContext(ctx, "list_station_years", &pairs, query); err != nil {
		return nil, fmt.Errorf("failed to list station years: %w", err)
	}
	return pairs, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// weatherTx implements WeatherTx on a single transaction
type weatherTx struct {
	conn    *database.Conn
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ResolveStation finds the station by exact name, creating it when absent.
// The bool reports whether this call created it.
func (t *weatherTx) ResolveStation(ctx context.Context, name string, now time.Time) (*models.Station, bool, error) {
	station, err := models.NewStation(name)
	if err != nil {
		return nil, false, err
	}

	var id int64
	err = t.conn.QueryRowContext(ctx, "insert_station", `
		INSERT INTO stations (name, created_at)
		VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`, station.Name, now).Scan(&id)

	switch {
	case err == nil:
		station.ID = id
		station.CreatedAt = now
		t.logger.Debug(ctx, "[REPO_CREATE_STATION] Station created", logging.Fields{
			"station_id": id,
			"name":       station.Name,
		})
		return station, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("failed to create station: %w", err)
	}

	var existing models.Station
	err = t.conn.GetContext(ctx, "get_station", &existing,
		`SELECT id, name, created_at FROM stations WHERE name = ?`, station.Name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get station: %w", err)
	}
	return &existing, false, nil
}

// InsertObservations inserts the batch, skipping rows whose (date, station)
// already exists, including repeats inside the batch. Inserted rows get
// their ID set; skipped rows keep ID zero.
func (t *weatherTx) InsertObservations(ctx context.Context, observations []*models.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	timer := time.Now()
	inserted := 0
	defer func() {
		duration := time.Since(timer)
		t.metrics.IngestionBatchSize.Observe(float64(len(observations)))
		t.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(observations),
			"inserted":    inserted,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	// Prepare statement
	stmt, err := t.conn.PrepareContext(ctx, "insert_observation", `
		INSERT INTO observations (
			station_id, date, max_temp, min_temp, precipitation, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, station_id) DO NOTHING
		RETURNING id
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	// Execute batch
	for _, obs := range observations {
		var id int64
		err := stmt.QueryRowxContext(ctx,
			obs.StationID,
			obs.Date,
			obs.MaxTemp,
			obs.MinTemp,
			obs.Precipitation,
			obs.CreatedAt,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert observation: %w", err)
		}
		obs.ID = id
		inserted++
	}

	t.metrics.IngestionRecordsTotal.Add(float64(inserted))
	t.metrics.IngestionDuplicatesTotal.Add(float64(len(observations) - inserted))

	return inserted, nil
}

// ObservationsForYear returns every stored observation of a station in year
func (t *weatherTx) ObservationsForYear(ctx context.Context, stationID int64, year int) ([]*models.Observation, error) {
	from := models.NewDate(year, time.January, 1)
	to := models.NewDate(year+1, time.January, 1)

	var observations []*models.Observation
	err := t.conn.SelectContext(ctx, "observations_for_year", &observations, `
		SELECT id, station_id, date, max_temp, min_temp, precipitation, created_at
		FROM observations
		WHERE station_id = ? AND date >= ? AND date < ?
	`, stationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations for %d: %w", year, err)
	}
	return observations, nil
}

// UpsertYearlyStats creates or replaces the (year, station) aggregate
func (t *weatherTx) UpsertYearlyStats(ctx context.Context, stats *models.YearlyStats) error {
	err := t.conn.QueryRowContext(ctx, "upsert_statistics", `
		INSERT INTO yearly_stats (
			station_id, year,
			avg_max_temp, avg_min_temp, total_precipitation,
			observation_count, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (year, station_id) DO UPDATE SET
			avg_max_temp = excluded.avg_max_temp,
			avg_min_temp = excluded.avg_min_temp,
			total_precipitation = excluded.total_precipitation,
			observation_count = excluded.observation_count,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		stats.StationID,
		stats.Year,
		stats.AvgMaxTemp,
		stats.AvgMinTemp,
		stats.TotalPrecipitation,
		stats.ObservationCount,
		stats.CreatedAt,
		stats.UpdatedAt,
	).Scan(&stats.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert statistics: %w", err)
	}

	return nil
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
