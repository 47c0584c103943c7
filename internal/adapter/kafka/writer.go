// Package kafka publishes run reports to a Kafka topic for downstream
// monitoring of correction quality.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// ReportWriter produces run reports to a Kafka topic.
type ReportWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewReportWriter creates a Kafka producer for the report topic.
func NewReportWriter(brokers []string, topic string, logger *slog.Logger) *ReportWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &ReportWriter{writer: w, logger: logger}
}

// WriteReport serializes and publishes one run report.
func (w *ReportWriter) WriteReport(ctx context.Context, report domain.RunReport) error {
	msg, err := serializeReport(report)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run report: %w", err)
	}
	w.logger.Debug("run report published", "fields", len(report.Corrections))
	return nil
}

func (w *ReportWriter) Close() error {
	return w.writer.Close()
}

// serializeReport marshals a run report into a Kafka message keyed by start
// time so replays of the same run land in one partition.
func serializeReport(report domain.RunReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.StartedAt.UTC().Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "finished_at", Value: []byte(report.FinishedAt.UTC().Format(time.RFC3339))},
			{Key: "fields_corrected", Value: []byte(strconv.Itoa(len(report.Corrections)))},
		},
	}, nil
}
