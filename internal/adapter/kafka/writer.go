// Package kafka adapts segmentio/kafka-go readers and writers to the pipeline
// extract and load interfaces.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/config"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

// Writer publishes verified reports to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the verified report topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaVerifiedTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes reports in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.Report) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write verified reports: %w", err)
	}
	w.logger.Debug("verified reports published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a report into a Kafka message keyed by report ID.
func serializeToMessage(r domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	msg := kafkago.Message{
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(r.EventType)},
			{Key: "veracity_flag", Value: []byte(r.VeracityFlag)},
		},
	}
	if r.ID != "" {
		msg.Key = []byte(r.ID)
	}
	return msg, nil
}
