// Package events publishes ingestion reports to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"weather-api/internal/models"
	"weather-api/pkg/logging"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher produces one message per file report, keyed by station
// so reports for a station stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	logger *logging.StructuredLogger
}

// NewKafkaPublisher creates a producer for topic on brokers
func NewKafkaPublisher(brokers []string, topic string, logger *logging.StructuredLogger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// PublishFileReport serializes and writes the report
func (p *KafkaPublisher) PublishFileReport(ctx context.Context, runID string, report *models.FileReport) error {
	msg, err := serializeToMessage(runID, report)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish file report: %w", err)
	}

	p.logger.Debug(ctx, "[EVENT_PUBLISHED] File report published", logging.Fields{
		"run_id": runID,
		"file":   report.File,
	})
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type fileReportMessage struct {
	RunID string `json:"run_id"`
	*models.FileReport
}

// serializeToMessage marshals a FileReport into a Kafka message.
func serializeToMessage(runID string, report *models.FileReport) (kafkago.Message, error) {
	data, err := json.Marshal(fileReportMessage{RunID: runID, FileReport: report})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize file report: %w", err)
	}

	outcome := "succeeded"
	if report.Failed() {
		outcome = "failed"
	}
	return kafkago.Message{
		Key:   []byte(report.Station),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "outcome", Value: []byte(outcome)},
		},
	}, nil
}
