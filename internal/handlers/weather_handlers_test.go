package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-api/internal/models"
	"weather-api/internal/repository"
	"weather-api/internal/services"
	"weather-api/internal/storetest"
	"weather-api/pkg/logging"
	"weather-api/pkg/metrics"
)

func intPtr(v int) *int { return &v }

func newTestServer(t *testing.T, limiter func(*logging.StructuredLogger, *metrics.Collector) *RateLimiter) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNopLogger()
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg)
	repo := repository.NewWeatherRepository(storetest.New(t), logger, m)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := repo.WithinTx(ctx, func(tx repository.WeatherTx) error {
		for i, name := range []string{"STATION_A", "STATION_B"} {
			station, _, err := tx.ResolveStation(ctx, name, now)
			if err != nil {
				return err
			}
			d := models.NewDate(1985, time.January, 1)
			d2 := models.NewDate(1985, time.January, 2)
			_, err = tx.InsertObservations(ctx, []*models.Observation{
				{StationID: station.ID, Date: &d, MaxTemp: intPtr(-22), MinTemp: intPtr(-128), Precipitation: intPtr(94), CreatedAt: now.Add(time.Duration(i) * time.Minute)},
				{StationID: station.ID, Date: &d2, MaxTemp: intPtr(10), MinTemp: intPtr(0), Precipitation: intPtr(0), CreatedAt: now.Add(time.Duration(i)*time.Minute + time.Second)},
			})
			if err != nil {
				return err
			}
			err = tx.UpsertYearlyStats(ctx, &models.YearlyStats{
				StationID: station.ID, Year: 1985,
				AvgMaxTemp: -0.6, AvgMinTemp: -6.4, TotalPrecipitation: 0.94,
				ObservationCount: 2, CreatedAt: now, UpdatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	handler := NewWeatherHandler(services.NewWeatherService(repo, logger, m), logger, m)
	var rl *RateLimiter
	if limiter != nil {
		rl = limiter(logger, m)
	}
	return NewRouter(handler, rl, reg)
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestGetObservations(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := get(t, srv, "/api/weather")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["total"])
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 100, body["limit"])
	assert.EqualValues(t, 1, body["total_pages"])

	data := body["data"].([]interface{})
	require.Len(t, data, 4)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "STATION_B", first["station"], "newest first")
	assert.Equal(t, "1985-01-02", first["date"])
	assert.NotContains(t, first, "station_id")
}

func TestGetObservationsFilters(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := get(t, srv, "/api/weather?date=1985-01-01&station=STATION_A")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	row := data[0].(map[string]interface{})
	assert.Equal(t, "STATION_A", row["station"])
	assert.EqualValues(t, -22, row["max_temp"])
	assert.EqualValues(t, -128, row["min_temp"])
	assert.EqualValues(t, 94, row["precipitation"])

	rec, body = get(t, srv, "/api/weather?limit=1&page=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["total_pages"])
	assert.Len(t, body["data"], 1)
}

func TestGetObservationsNotFoundAndBadRequest(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"no match for date", "/api/weather?date=1999-12-31", http.StatusNotFound},
		{"unknown station", "/api/weather?station=NOPE", http.StatusNotFound},
		{"page past the end", "/api/weather?page=99", http.StatusNotFound},
		{"malformed date", "/api/weather?date=19850101", http.StatusBadRequest},
		{"malformed page", "/api/weather?page=abc", http.StatusBadRequest},
		{"zero page", "/api/weather?page=0", http.StatusBadRequest},
		{"limit too large", "/api/weather?limit=5000", http.StatusBadRequest},
		{"page offset overflows", "/api/weather?page=92233720368547759&limit=200", http.StatusBadRequest},
		{"page offset overflows default limit", "/api/weather?page=9223372036854775807", http.StatusBadRequest},
		{"stats malformed year", "/api/weather/stats?year=85x", http.StatusBadRequest},
		{"stats no match", "/api/weather/stats?year=2001", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := get(t, srv, tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.EqualValues(t, tt.code, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestGetStatistics(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := get(t, srv, "/api/weather/stats?year=1985&station=STATION_A")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	row := data[0].(map[string]interface{})
	assert.Equal(t, "STATION_A", row["station"])
	assert.EqualValues(t, 1985, row["year"])
	assert.InDelta(t, -0.6, row["avg_max_temp"], 1e-9)
	assert.InDelta(t, 0.94, row["total_precipitation"], 1e-9)
}

func TestGetStations(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := get(t, srv, "/api/stations")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	assert.Equal(t, "STATION_A", data[0].(map[string]interface{})["name"])
}

func TestHealthAndDocs(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec, body = get(t, srv, "/api/docs/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3.0.0", body["openapi"])
	paths := body["paths"].(map[string]interface{})
	assert.Contains(t, paths, "/api/weather")
	assert.Contains(t, paths, "/api/weather/stats")

	rec, _ = get(t, srv, "/api/docs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}

func TestHealthStoreUnavailable(t *testing.T) {
	logger := logging.NewNopLogger()
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	db := storetest.New(t)
	repo := repository.NewWeatherRepository(db, logger, m)
	handler := NewWeatherHandler(services.NewWeatherService(repo, logger, m), logger, m)
	srv := NewRouter(handler, nil, prometheus.NewRegistry())
	require.NoError(t, db.Close())

	rec, body := get(t, srv, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "unavailable", body["database"])
	assert.NotContains(t, rec.Body.String(), "closed")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	get(t, srv, "/api/weather")
	rec, _ := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_api_requests_total{endpoint="/api/weather",method="GET",status="200"} 1`)
}

func TestRequestIDPropagates(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(l *logging.StructuredLogger, m *metrics.Collector) *RateLimiter {
		return NewRateLimiter(0.001, 2, l, m)
	})

	for i := 0; i < 2; i++ {
		rec, _ := get(t, srv, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := get(t, srv, "/health")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.EqualValues(t, 429, body["code"])
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	rec, body := get(t, srv, "/api/nothing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", body["message"])
}
