package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*StructuredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewFromZap(zap.New(core)), logs
}

func TestStructuredLogger_FieldsAndRequestID(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)
	ctx := WithRequestID(context.Background(), "req-1")

	logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested", Fields{
		"station":  "USC00110072",
		"inserted": 3,
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "[INGEST_FILE_SUCCESS] File ingested", entry.Message)

	ctxMap := entry.ContextMap()
	assert.Equal(t, "USC00110072", ctxMap["station"])
	assert.EqualValues(t, 3, ctxMap["inserted"])
	assert.Equal(t, "req-1", ctxMap["request_id"])
}

func TestStructuredLogger_ErrorCarriesCause(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Error(context.Background(), "[DB_EXEC_ERROR] Command failed", Fields{"query_type": "insert_station"}, errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])
}

func TestStructuredLogger_RespectsCoreLevel(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.WarnLevel)

	logger.Debug(context.Background(), "hidden", nil)
	logger.Info(context.Background(), "hidden", nil)
	logger.Warn(context.Background(), "shown", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestContextLogger_MergesFields(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)
	fileLogger := logger.WithFields(Fields{"file": "a.txt", "station": "A"})

	fileLogger.Warn(context.Background(), "[INGEST_LINE_MALFORMED] Skipping line", Fields{"line": 4, "station": "B"})

	require.Equal(t, 1, logs.Len())
	ctxMap := logs.All()[0].ContextMap()
	assert.Equal(t, "a.txt", ctxMap["file"])
	assert.Equal(t, "B", ctxMap["station"])
	assert.EqualValues(t, 4, ctxMap["line"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info(context.Background(), "nothing", Fields{"a": 1})
	assert.Empty(t, RequestID(context.Background()))
}
