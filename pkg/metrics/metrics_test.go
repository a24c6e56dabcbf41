package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_SeparateRegistries(t *testing.T) {
	// Two collectors with the same namespace must not collide on private registries
	a := NewCollector("weather", prometheus.NewRegistry())
	b := NewCollector("weather", prometheus.NewRegistry())

	a.IngestionRecordsTotal.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.IngestionRecordsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IngestionRecordsTotal))
}

func TestRecordHelpers(t *testing.T) {
	c := NewTestCollector()

	c.RecordLines("sentinel", 2)
	c.RecordLines("sentinel", 0)
	c.RecordFile("failed")
	c.RecordIngestionError("io_failure")
	c.RecordAPIRequest("/api/weather", "GET", "404")
	c.UpdateDBConnectionPool(1, 2, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.IngestionLinesTotal.WithLabelValues("sentinel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IngestionFilesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IngestionErrorsTotal.WithLabelValues("io_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.APIRequestsTotal.WithLabelValues("/api/weather", "GET", "404")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("total")))
}

func TestTimer_ObserveDuration(t *testing.T) {
	c := NewTestCollector()
	timer := c.NewTimer(c.StatsCalculationDuration)

	d := timer.ObserveDuration()

	assert.GreaterOrEqual(t, int64(d), int64(0))
	assert.Equal(t, 1, testutil.CollectAndCount(c.StatsCalculationDuration))
}
