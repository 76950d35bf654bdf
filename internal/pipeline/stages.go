package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/observability"
)

// Stage names used in logs and metric labels.
const (
	StageReports    = "reports"
	StageCandidates = "candidates"
)

// DecodeReport parses a report message.
func DecodeReport(raw domain.RawEvent) (domain.Report, error) {
	return domain.ParseReport(raw.Value)
}

// DecodeCandidate parses a candidate message. A candidate without an ID takes
// the message key, so redelivered messages stay idempotent in the store.
func DecodeCandidate(raw domain.RawEvent) (domain.Candidate, error) {
	c, err := domain.ParseCandidate(raw.Value)
	if err != nil {
		return domain.Candidate{}, err
	}
	if c.ID == "" && len(raw.Key) > 0 {
		c.ID = string(raw.Key)
	}
	return c, nil
}

// ReportVerifier clusters each batch of reports, keeps one representative per
// cluster that passes the veracity gate, and forwards the representatives to
// the sink. It implements BatchLoader[domain.Report].
type ReportVerifier struct {
	clusterer *domain.ReportClusterer
	gate      *domain.VeracityGate
	sink      BatchLoader[domain.Report]
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewReportVerifier wires a verifier in front of sink.
func NewReportVerifier(clusterer *domain.ReportClusterer, gate *domain.VeracityGate, sink BatchLoader[domain.Report], logger *slog.Logger, metrics *observability.Metrics) *ReportVerifier {
	return &ReportVerifier{
		clusterer: clusterer,
		gate:      gate,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
	}
}

// Verify returns the verified representative of each cluster that passes
// the gate, in cluster order.
func (v *ReportVerifier) Verify(reports []domain.Report) []domain.Report {
	clusters := v.clusterer.Cluster(reports)
	verified := make([]domain.Report, 0, len(clusters))
	for _, c := range clusters {
		v.metrics.ClustersCreated.Inc()
		v.metrics.ClusterSize.Observe(float64(len(c)))

		rep, ok := v.gate.Evaluate(c)
		if !ok {
			v.metrics.ReportsFiltered.Add(float64(len(c)))
			v.logger.Debug("cluster rejected by veracity gate",
				"anchor_id", c.Anchor().ID,
				"source", c.Anchor().Source,
			)
			continue
		}
		v.metrics.ReportsVerified.Inc()
		v.metrics.ReportsFiltered.Add(float64(len(c) - 1))
		verified = append(verified, rep)
	}
	return verified
}

// LoadBatch verifies reports and publishes the representatives.
func (v *ReportVerifier) LoadBatch(ctx context.Context, reports []domain.Report) error {
	verified := v.Verify(reports)
	v.logger.Info("batch verified", "reports", len(reports), "verified", len(verified))
	if len(verified) == 0 {
		return nil
	}
	if err := v.sink.LoadBatch(ctx, verified); err != nil {
		return fmt.Errorf("publish verified reports: %w", err)
	}
	return nil
}

// CandidateLoader stores incoming hotspot candidates as pending. It
// implements BatchLoader[domain.Candidate].
type CandidateLoader struct {
	store   domain.CandidateStore
	metrics *observability.Metrics
}

// NewCandidateLoader writes candidates to store.
func NewCandidateLoader(store domain.CandidateStore, metrics *observability.Metrics) *CandidateLoader {
	return &CandidateLoader{store: store, metrics: metrics}
}

// LoadBatch marks every candidate pending, stamps its arrival time and saves
// the batch.
func (l *CandidateLoader) LoadBatch(ctx context.Context, candidates []domain.Candidate) error {
	now := domain.Now()
	batch := make([]domain.Candidate, len(candidates))
	for i, c := range candidates {
		c.Status = domain.StatusPending
		if c.ReceivedAt.IsZero() {
			c.ReceivedAt = now
		}
		batch[i] = c
	}
	if err := l.store.SaveCandidates(ctx, batch); err != nil {
		return fmt.Errorf("store candidates: %w", err)
	}
	l.metrics.CandidatesStored.Add(float64(len(batch)))
	return nil
}
