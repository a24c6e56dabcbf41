package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"weather-api/internal/models"
	"weather-api/internal/repository"
	"weather-api/pkg/database"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

const (
	DefaultExtension  = ".txt"
	DefaultMaxRetries = 5

	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 2 * time.Second

	maxLineSize = 1024 * 1024
)

// ReportPublisher receives the report of every processed file
type ReportPublisher interface {
	PublishFileReport(ctx context.Context, runID string, report *models.FileReport) error
}

type noopPublisher struct{}

func (noopPublisher) PublishFileReport(context.Context, string, *models.FileReport) error {
	return nil
}

// IngestionOptions tunes an IngestionService. Zero values select defaults.
type IngestionOptions struct {
	Extension  string
	Workers    int
	MaxRetries int
	Clock      clockwork.Clock
	Publisher  ReportPublisher
}

func (o IngestionOptions) withDefaults() IngestionOptions {
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if !strings.HasPrefix(o.Extension, ".") {
		o.Extension = "." + o.Extension
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Publisher == nil {
		o.Publisher = noopPublisher{}
	}
	return o
}

// IngestionService loads station files into the store, one transaction per file
type IngestionService struct {
	repo    repository.WeatherRepository
	stats   *StatisticsService
	opts    IngestionOptions
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.WeatherRepository, stats *StatisticsService, opts IngestionOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		stats:   stats,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestDirectory ingests every matching file in dataDir. A failing file is
// rolled back and reported without stopping the others. The error is
// non-nil only when the directory cannot be listed or ctx is done.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string) (*models.RunReport, error) {
	run := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: s.opts.Clock.Now().UTC(),
		Files:     make([]*models.FileReport, 0),
	}
	ctx = logging.WithRequestID(ctx, run.RunID)

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":  dataDir,
		"extension": s.opts.Extension,
		"workers":   s.opts.Workers,
		"stage":     "INITIALIZATION",
	})

	files, err := s.listFiles(dataDir)
	if err != nil {
		s.metrics.RecordIngestionError(string(models.KindIOFailure))
		return nil, models.NewIngestError(models.KindIOFailure, dataDir, 0, err)
	}

	if len(files) == 0 {
		s.logger.Warn(ctx, "[INGEST_NO_FILES] No data files found", logging.Fields{
			"data_dir":  dataDir,
			"extension": s.opts.Extension,
		})
		return run, nil
	}

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	reports := make([]*models.FileReport, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			reports[i], _ = s.ingestFile(gctx, run.RunID, path)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range reports {
		if r != nil {
			run.Files = append(run.Files, r)
		}
	}
	run.Tally()
	run.Duration = s.opts.Clock.Since(run.StartedAt)
	s.metrics.IngestionDuration.Observe(run.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"run_id":                run.RunID,
		"total_files":           len(run.Files),
		"succeeded":             run.Succeeded,
		"failed":                run.Failed,
		"observations_inserted": run.Totals.ObservationsInserted,
		"duplicates_skipped":    run.Totals.DuplicatesSkipped,
		"stats_computed":        run.Totals.StatsComputed,
		"duration_seconds":      run.Duration.Seconds(),
		"stage":                 "COMPLETE",
	})

	if err := ctx.Err(); err != nil {
		return run, err
	}
	return run, nil
}

// IngestFile ingests a single station file in its own transaction
func (s *IngestionService) IngestFile(ctx context.Context, path string) (*models.FileReport, error) {
	return s.ingestFile(ctx, uuid.NewString(), path)
}

// DryRun parses every matching file in dataDir without touching the store.
// Reports carry the line counts a real run would see before deduplication.
func (s *IngestionService) DryRun(ctx context.Context, dataDir string) (*models.RunReport, error) {
	run := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: s.opts.Clock.Now().UTC(),
		Files:     make([]*models.FileReport, 0),
	}
	ctx = logging.WithRequestID(ctx, run.RunID)

	files, err := s.listFiles(dataDir)
	if err != nil {
		return nil, models.NewIngestError(models.KindIOFailure, dataDir, 0, err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		report := &models.FileReport{
			File:    filepath.Base(path),
			Station: StationName(path),
		}
		start := s.opts.Clock.Now()
		if _, err := models.NewStation(report.Station); err != nil {
			report.Fail(models.NewIngestError(models.KindStoreFailure, report.File, 0, err))
		} else if _, err := s.readFile(ctx, path, report); err != nil {
			report.Fail(err)
		}
		report.Elapsed = s.opts.Clock.Since(start)
		run.Files = append(run.Files, report)
	}

	run.Tally()
	run.Duration = s.opts.Clock.Since(run.StartedAt)
	return run, nil
}

// listFiles returns the sorted paths in dir carrying the configured extension
func (s *IngestionService) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == s.opts.Extension {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// StationName derives the station name from a file path: the base name
// without its extension
func StationName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *IngestionService) ingestFile(ctx context.Context, runID, path string) (*models.FileReport, error) {
	start := s.opts.Clock.Now()
	report := &models.FileReport{
		File:    filepath.Base(path),
		Station: StationName(path),
	}

	err := s.processFile(ctx, path, report)
	report.Elapsed = s.opts.Clock.Since(start)
	s.metrics.IngestionFileDuration.Observe(report.Elapsed.Seconds())

	fields := logging.Fields{
		"file":                  report.File,
		"station":               report.Station,
		"lines_read":            report.LinesRead,
		"observations_inserted": report.ObservationsInserted,
		"duplicates_skipped":    report.DuplicatesSkipped,
		"sentinel_skipped":      report.SentinelSkipped,
		"malformed_skipped":     report.MalformedSkipped,
		"stats_computed":        report.StatsComputed,
		"attempts":              report.Attempts,
		"duration_ms":           report.Elapsed.Milliseconds(),
	}

	if err != nil {
		report.Fail(err)
		s.metrics.RecordFile("failed")
		s.metrics.RecordIngestionError(string(report.ErrorKind))
		fields["error_kind"] = string(report.ErrorKind)
		s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", fields, err)
	} else {
		s.metrics.RecordFile("succeeded")
		s.metrics.RecordLines("parsed", report.LinesRead-report.SentinelSkipped-report.MalformedSkipped-report.BlankSkipped)
		s.metrics.RecordLines("sentinel", report.SentinelSkipped)
		s.metrics.RecordLines("malformed", report.MalformedSkipped)
		s.metrics.RecordLines("blank", report.BlankSkipped)
		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested successfully", fields)
	}

	if perr := s.opts.Publisher.PublishFileReport(ctx, runID, report); perr != nil {
		s.logger.Warn(ctx, "[INGEST_PUBLISH_ERROR] Failed to publish file report", logging.Fields{
			"file":  report.File,
			"error": perr.Error(),
		})
	}

	return report, err
}

// processFile reads and parses the file, then stores it with retries
func (s *IngestionService) processFile(ctx context.Context, path string, report *models.FileReport) error {
	if _, err := models.NewStation(report.Station); err != nil {
		return models.NewIngestError(models.KindStoreFailure, report.File, 0, err)
	}

	records, err := s.readFile(ctx, path, report)
	if err != nil {
		return err
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		report.Attempts = attempt

		result, err := s.storeFile(ctx, report.Station, records)
		if err == nil {
			report.ObservationsInserted = result.inserted
			report.DuplicatesSkipped = len(records) - result.inserted
			report.StatsComputed = result.statsComputed
			return nil
		}

		if ctx.Err() != nil || !database.IsRetryable(err) || attempt > s.opts.MaxRetries {
			return models.NewIngestError(models.KindStoreFailure, report.File, 0, err)
		}

		s.metrics.IngestionRetriesTotal.Inc()
		s.logger.Warn(ctx, "[INGEST_FILE_RETRY] Retrying file after store conflict", logging.Fields{
			"file":       report.File,
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
			"error":      err.Error(),
		})

		if !sleepWithContext(ctx, s.opts.Clock, backoff) {
			return models.NewIngestError(models.KindStoreFailure, report.File, 0, ctx.Err())
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// readFile parses every line, counting blank, sentinel and malformed lines
// on the report
func (s *IngestionService) readFile(ctx context.Context, path string, report *models.FileReport) ([]*models.ParsedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, models.NewIngestError(models.KindIOFailure, report.File, 0, err)
	}
	defer file.Close()

	var records []*models.ParsedRecord

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		report.LinesRead++

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			report.BlankSkipped++
			continue
		}

		fields := models.SplitFields(line)
		if models.HasSentinel(fields) {
			report.SentinelSkipped++
			continue
		}

		record, err := models.ParseFields(fields)
		if err != nil {
			report.MalformedSkipped++
			lineErr := models.NewIngestError(models.KindMalformedLine, report.File, lineNo, err)
			s.logger.Warn(ctx, "[INGEST_LINE_REJECTED] Skipping malformed line", logging.Fields{
				"file":  report.File,
				"line":  lineNo,
				"error": lineErr.Error(),
			})
			continue
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, models.NewIngestError(models.KindIOFailure, report.File, 0, fmt.Errorf("error reading file: %w", err))
	}

	return records, nil
}

type storeResult struct {
	inserted      int
	statsComputed int
}

// storeFile writes the station, its observations and the recomputed yearly
// aggregates in one transaction
func (s *IngestionService) storeFile(ctx context.Context, stationName string, records []*models.ParsedRecord) (storeResult, error) {
	var result storeResult
	now := s.opts.Clock.Now().UTC()

	err := s.repo.WithinTx(ctx, func(tx repository.WeatherTx) error {
		result = storeResult{}

		station, created, err := tx.ResolveStation(ctx, stationName, now)
		if err != nil {
			return err
		}
		if created {
			s.logger.Info(ctx, "[INGEST_STATION_CREATED] Station created", logging.Fields{
				"station":    station.Name,
				"station_id": station.ID,
			})
		}

		observations := make([]*models.Observation, len(records))
		yearSet := make(map[int]struct{})
		for i, rec := range records {
			observations[i] = rec.ToObservation(station, now)
			yearSet[rec.Date.Year()] = struct{}{}
		}

		result.inserted, err = tx.InsertObservations(ctx, observations)
		if err != nil {
			return err
		}

		years := make([]int, 0, len(yearSet))
		for y := range yearSet {
			years = append(years, y)
		}
		result.statsComputed, err = s.stats.RecomputeYears(ctx, tx, station.ID, years, now)
		return err
	})

	return result, err
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// ExitCode maps a run to a process status: 0 when every file succeeded
func ExitCode(run *models.RunReport, err error) int {
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		return 130
	case err != nil:
		return 1
	case run != nil && run.Failed > 0:
		return 2
	default:
		return 0
	}
}
