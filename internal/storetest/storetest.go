// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"weather-api/internal/migrations"
	"weather-api/pkg/database"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

// New returns a fresh in-memory sqlite database with the schema applied.
// The database is closed when the test ends.
func New(t testing.TB) *database.DB {
	t.Helper()

	return open(t, &database.Config{
		Driver:       database.DriverSQLite,
		Path:         database.MemoryPath,
		MaxIdleConns: 1,
	})
}

// NewFile returns a migrated sqlite database in a temp dir with a pool of
// conns connections, so transactions really run side by side.
func NewFile(t testing.TB, conns int) *database.DB {
	t.Helper()

	return open(t, &database.Config{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "weather.db"),
		MaxOpenConns: conns,
		MaxIdleConns: conns,
	})
}

func open(t testing.TB, cfg *database.Config) *database.DB {
	t.Helper()

	logger := logging.NewNopLogger()
	db, err := database.Open(cfg, logger, metrics.NewTestCollector())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := migrations.NewMigrator(db, logger).Up(context.Background()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
