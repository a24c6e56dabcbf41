package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-api/pkg/database"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

func openMemory(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   database.MemoryPath,
	}, logging.NewNopLogger(), metrics.NewTestCollector())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoad(t *testing.T) {
	for _, driver := range []string{database.DriverPostgres, database.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			migs, err := Load(driver)
			require.NoError(t, err)
			require.NotEmpty(t, migs)

			assert.Equal(t, 1, migs[0].Version)
			assert.Equal(t, "create schema", migs[0].Name)
			assert.Contains(t, migs[0].Up, "CREATE TABLE")
			assert.Contains(t, migs[0].Down, "DROP TABLE")
		})
	}

	_, err := Load("oracle")
	assert.Error(t, err)
}

func TestUpDown(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	m := NewMigrator(db, logging.NewNopLogger())

	applied, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	// second run is a no-op
	applied, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	for _, table := range []string{"stations", "observations", "yearly_stats"} {
		var n int
		err := db.GetContext(ctx, "count", &n, "SELECT COUNT(*) FROM "+table)
		require.NoError(t, err, table)
	}

	reverted, err := m.Down(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)

	version, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	var n int
	err = db.GetContext(ctx, "count", &n, "SELECT COUNT(*) FROM stations")
	assert.Error(t, err)
}
