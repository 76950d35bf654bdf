// Package pipeline runs the stream stages (report verification and candidate
// intake) and the scheduled hotspot aggregation pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Decoder turns a raw message into a stage input.
type Decoder[T any] func(raw domain.RawEvent) (T, error)

// BatchLoader writes a batch of decoded values to the destination.
type BatchLoader[T any] interface {
	LoadBatch(ctx context.Context, batch []T) error
}

// Pipeline orchestrates the extract-decode-load loop for one stage.
type Pipeline[T any] struct {
	stage     string
	extractor BatchExtractor
	decode    Decoder[T]
	loader    BatchLoader[T]
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline for stage with the given steps and observability.
func New[T any](stage string, e BatchExtractor, decode Decoder[T], l BatchLoader[T], logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline[T] {
	return &Pipeline[T]{
		stage:     stage,
		extractor: e,
		decode:    decode,
		loader:    l,
		logger:    logger.With("stage", stage),
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the stage has read from its source at least
// once.
func (p *Pipeline[T]) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return fmt.Errorf("%s stage has not reached its source yet", p.stage)
	}
	return nil
}

// Ready reports whether CheckReadiness would succeed.
func (p *Pipeline[T]) Ready() bool {
	return p.ready.Load()
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	running := p.metrics.PipelineRunning.WithLabelValues(p.stage)
	running.Set(1)
	defer running.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-decode-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline[T]) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}
	p.ready.Store(true)

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.WithLabelValues(p.stage).Add(float64(len(rawBatch)))
	p.metrics.BatchSize.WithLabelValues(p.stage).Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	if !p.decodeAndLoad(ctx, rawBatch, backoff, maxBackoff) {
		return false
	}
	p.metrics.BatchProcessingDuration.WithLabelValues(p.stage).Observe(time.Since(start).Seconds())
	return true
}

// decodeAndLoad decodes each message, loads the successes as one batch and
// then commits every offset of the batch in order, undecodable messages
// included. Nothing is committed until the load succeeds. Returns false if
// the pipeline should stop.
func (p *Pipeline[T]) decodeAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) bool {
	batch := make([]T, 0, len(rawBatch))

	for _, raw := range rawBatch {
		v, err := p.decode(raw)
		if err != nil {
			p.logger.Warn("decode failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.DecodeErrors.WithLabelValues(p.stage).Inc()
			continue
		}
		batch = append(batch, v)
	}

	// A failed load is retried from the same batch until it succeeds or the
	// context ends.
	for len(batch) > 0 {
		err := p.loader.LoadBatch(ctx, batch)
		if err == nil {
			p.metrics.MessagesLoaded.WithLabelValues(p.stage).Add(float64(len(batch)))
			break
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(batch))
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return false
		}
	}

	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline[T]) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline[T]) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
