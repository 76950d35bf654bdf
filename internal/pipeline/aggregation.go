package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/observability"
)

// Resolver turns location text into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, location string) (domain.Coordinate, bool)
}

// PassSummary counts what one aggregation pass did.
type PassSummary struct {
	Pending     int `json:"pending"`     // candidates loaded
	Dropped     int `json:"dropped"`     // candidates that could not be geocoded and stay pending
	Groups      int `json:"groups"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Failed      int `json:"failed"`      // groups skipped because aggregation failed
	Unconfirmed int `json:"unconfirmed"` // groups written but not read back
	Transitions int `json:"transitions"`
}

// Aggregation folds pending candidates into composite hotspots.
type Aggregation struct {
	candidates domain.CandidateStore
	resolver   Resolver
	aggregator *domain.HotspotAggregator
	radiusKM   float64
	limit      int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewAggregation builds a pass over candidates. radiusKM is the spatial
// clustering radius; limit caps the candidates loaded per pass, with zero
// meaning all.
func NewAggregation(candidates domain.CandidateStore, resolver Resolver, aggregator *domain.HotspotAggregator, radiusKM float64, limit int, logger *slog.Logger, metrics *observability.Metrics) (*Aggregation, error) {
	if radiusKM <= 0 {
		return nil, errors.New("spatial radius must be positive")
	}
	return &Aggregation{
		candidates: candidates,
		resolver:   resolver,
		aggregator: aggregator,
		radiusKM:   radiusKM,
		limit:      limit,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// RunPass loads pending candidates, geocodes them, clusters the points and
// aggregates every group. Candidates of successfully aggregated groups are
// marked aggregated even if ctx is cancelled part way; everything else stays
// pending for the next pass.
func (a *Aggregation) RunPass(ctx context.Context) (PassSummary, error) {
	start := time.Now()
	var sum PassSummary

	pending, err := a.candidates.ListPending(ctx, a.limit)
	if err != nil {
		return sum, fmt.Errorf("list pending candidates: %w", err)
	}
	sum.Pending = len(pending)
	a.metrics.PendingCandidates.Set(float64(len(pending)))
	if len(pending) == 0 {
		return sum, nil
	}

	points := make([]domain.GeoPoint, 0, len(pending))
	for _, c := range pending {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		coord, ok := a.resolver.Resolve(ctx, c.Location)
		if !ok {
			sum.Dropped++
			a.metrics.PointsDropped.Inc()
			a.logger.Warn("candidate location not resolved, left pending",
				"candidate_id", c.ID,
				"kind", c.Kind,
				"location", c.Location,
			)
			continue
		}
		points = append(points, domain.NewGeoPoint(c, coord))
	}
	if ctx.Err() != nil {
		return sum, ctx.Err()
	}

	groups := domain.ClusterPoints(points, a.radiusKM)
	sum.Groups = len(groups)

	var transitions []domain.StatusTransition
	for _, res := range a.aggregator.AggregateGroups(ctx, groups) {
		if res.Err != nil {
			sum.Failed++
			a.metrics.AggregationErrors.Inc()
			continue
		}
		if res.ReadBackErr != nil {
			sum.Unconfirmed++
		}
		if res.Created {
			sum.Created++
			a.metrics.HotspotsCreated.Inc()
		} else {
			sum.Updated++
			a.metrics.HotspotsUpdated.Inc()
		}
		transitions = append(transitions, res.Transitions...)
	}

	if len(transitions) > 0 {
		// Hotspots already absorbed these candidates; record that even on shutdown.
		if err := a.candidates.ApplyTransitions(context.WithoutCancel(ctx), transitions); err != nil {
			return sum, fmt.Errorf("apply candidate transitions: %w", err)
		}
		sum.Transitions = len(transitions)
	}

	a.metrics.AggregationPassDuration.Observe(time.Since(start).Seconds())
	a.logger.Info("aggregation pass complete",
		"pending", sum.Pending,
		"dropped", sum.Dropped,
		"groups", sum.Groups,
		"created", sum.Created,
		"updated", sum.Updated,
		"failed", sum.Failed,
		"unconfirmed", sum.Unconfirmed,
		"duration", time.Since(start),
	)
	return sum, ctx.Err()
}
