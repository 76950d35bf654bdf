package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/config"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

// Reader consumes messages from one Kafka topic with manual offset commits.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a consumer-group reader for topic.
func NewReader(cfg *config.Config, topic string, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          topic,
		GroupID:        cfg.KafkaGroupID,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commits are explicit, after a successful load
	})
	return &Reader{reader: r, flushInterval: cfg.BatchFlushInterval, logger: logger}
}

// ExtractBatch fetches up to batchSize messages. It returns early with what it
// has once the flush interval elapses, so a quiet topic yields an empty batch
// rather than blocking forever.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	batch := make([]domain.RawEvent, 0, batchSize)
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return batch, nil
			}
			return batch, err
		}

		raw := mapMessageToRawEvent(msg)
		raw.Commit = func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		}
		batch = append(batch, raw)
	}
	return batch, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawEvent copies a Kafka message into a RawEvent.
func mapMessageToRawEvent(msg kafkago.Message) domain.RawEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
