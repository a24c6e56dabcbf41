package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-api/internal/models"
	"weather-api/pkg/logging"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestSerializeToMessage(t *testing.T) {
	report := &models.FileReport{
		File:       "USC00110072.txt",
		Station:    "USC00110072",
		LineCounts: models.LineCounts{LinesRead: 10, ObservationsInserted: 8, SentinelSkipped: 2},
		Elapsed:    time.Second,
		Attempts:   1,
	}

	msg, err := serializeToMessage("run-1", report)
	require.NoError(t, err)

	assert.Equal(t, []byte("USC00110072"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "outcome", msg.Headers[1].Key)
	assert.Equal(t, []byte("succeeded"), msg.Headers[1].Value)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "USC00110072.txt", decoded["file"])
	assert.EqualValues(t, 8, decoded["observations_inserted"])
	assert.NotContains(t, decoded, "error")
}

func TestSerializeToMessageFailedReport(t *testing.T) {
	report := &models.FileReport{File: "x.txt", Station: "x"}
	report.Fail(models.NewIngestError(models.KindIOFailure, "x.txt", 0, errors.New("is a directory")))

	msg, err := serializeToMessage("run-2", report)
	require.NoError(t, err)
	assert.Equal(t, []byte("failed"), msg.Headers[1].Value)
	assert.Contains(t, string(msg.Value), `"error_kind":"IOFailure"`)
}

func TestPublishFileReport(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: logging.NewNopLogger()}

	err := p.PublishFileReport(context.Background(), "run-1", &models.FileReport{File: "a.txt", Station: "a"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("a"), w.msgs[0].Key)

	w.err = errors.New("broker down")
	err = p.PublishFileReport(context.Background(), "run-1", &models.FileReport{File: "b.txt", Station: "b"})
	assert.ErrorContains(t, err, "broker down")
}
