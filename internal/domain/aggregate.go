package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// AggregatorOptions configures how groups are matched against stored hotspots.
type AggregatorOptions struct {
	MergeRadiusKM float64 // a stored hotspot within this distance is merged into
	BoxDegrees    float64 // bounding-box prefilter half-width
	Workers       int     // groups aggregated concurrently
}

// DefaultAggregatorOptions returns a 5 km merge radius, a 0.05 degree box and 4 workers.
func DefaultAggregatorOptions() AggregatorOptions {
	return AggregatorOptions{
		MergeRadiusKM: 5,
		BoxDegrees:    0.05,
		Workers:       4,
	}
}

// Validate checks that all options are positive.
func (o AggregatorOptions) Validate() error {
	if o.MergeRadiusKM <= 0 {
		return errors.New("merge radius must be positive")
	}
	if o.BoxDegrees <= 0 {
		return errors.New("bounding box degrees must be positive")
	}
	if o.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	return nil
}

// ErrEmptyGroup is returned when aggregating a group with no points.
var ErrEmptyGroup = errors.New("empty point group")

// GroupResult is the outcome of aggregating one spatial group.
type GroupResult struct {
	Hotspot     CompositeHotspot
	Created     bool
	Transitions []StatusTransition
	// ReadBackErr is set when the write succeeded but reading the hotspot back
	// failed. Hotspot then holds the value that was written.
	ReadBackErr error
	Err         error
}

// HotspotAggregator creates or merges composite hotspots from spatial groups.
type HotspotAggregator struct {
	store  HotspotStore
	opts   AggregatorOptions
	locks  *keyedMutex
	newID  func() string
	logger *slog.Logger
}

// NewHotspotAggregator validates opts and returns an aggregator writing to store.
func NewHotspotAggregator(store HotspotStore, opts AggregatorOptions, logger *slog.Logger) (*HotspotAggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &HotspotAggregator{
		store:  store,
		opts:   opts,
		locks:  newKeyedMutex(),
		newID:  uuid.NewString,
		logger: logger,
	}, nil
}

// AggregateGroups aggregates each group independently, up to Workers at a
// time. A failing group is logged and reported in its result without
// affecting the others. Groups not started before ctx is cancelled report the
// context error. Results are returned in group order.
func (a *HotspotAggregator) AggregateGroups(ctx context.Context, groups [][]GeoPoint) []GroupResult {
	results := make([]GroupResult, len(groups))

	var g errgroup.Group
	g.SetLimit(a.opts.Workers)
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			results[i] = GroupResult{Err: err}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = GroupResult{Err: err}
				return nil
			}
			res, err := a.Aggregate(ctx, group)
			if err != nil {
				a.logger.Warn("aggregate group failed, skipping",
					"error", err,
					"points", len(group),
				)
				res.Err = err
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Aggregate folds one spatial group into the nearest stored hotspot, or
// creates a new one, and returns the hotspot as read back from the store.
// Once the write has succeeded the result always carries the group's
// transitions, even if the read back fails.
func (a *HotspotAggregator) Aggregate(ctx context.Context, group []GeoPoint) (GroupResult, error) {
	if len(group) == 0 {
		return GroupResult{}, ErrEmptyGroup
	}

	batch, err := summarize(group)
	if err != nil {
		return GroupResult{}, err
	}

	existing, found, err := a.findNearby(ctx, batch.centroid)
	if err != nil {
		return GroupResult{}, err
	}

	var written CompositeHotspot
	if found {
		written, err = a.mergeInto(ctx, existing.ID, batch)
		if err != nil {
			return GroupResult{}, err
		}
	} else {
		written = batch.newHotspot(a.newID())
		if err := a.store.Save(ctx, written); err != nil {
			return GroupResult{}, fmt.Errorf("insert hotspot %s: %w", written.ID, err)
		}
	}

	// The write succeeded: transitions are returned whatever the read back does.
	res := GroupResult{
		Hotspot:     written,
		Created:     !found,
		Transitions: transitionsFor(group),
	}
	saved, err := a.store.Get(ctx, written.ID)
	if err != nil {
		a.logger.Warn("read back hotspot failed, using written value",
			"error", err,
			"hotspot_id", written.ID,
		)
		res.ReadBackErr = fmt.Errorf("read back hotspot %s: %w", written.ID, err)
		return res, nil
	}
	res.Hotspot = saved
	return res, nil
}

// mergeInto re-reads the hotspot under its lock so concurrent groups that
// resolve to the same hotspot apply their merges one at a time. It returns
// the merged value it wrote.
func (a *HotspotAggregator) mergeInto(ctx context.Context, id string, batch *batchSummary) (CompositeHotspot, error) {
	unlock := a.locks.Lock(id)
	defer unlock()

	current, err := a.store.Get(ctx, id)
	if err != nil {
		return CompositeHotspot{}, fmt.Errorf("load hotspot %s: %w", id, err)
	}
	merged := batch.mergeInto(current)
	if err := a.store.Save(ctx, merged); err != nil {
		return CompositeHotspot{}, fmt.Errorf("update hotspot %s: %w", id, err)
	}
	return merged, nil
}

// findNearby prefilters stored hotspots with a bounding box and returns the
// first one within the merge radius.
func (a *HotspotAggregator) findNearby(ctx context.Context, c Coordinate) (CompositeHotspot, bool, error) {
	hotspots, err := a.store.FindInBox(ctx, BoxAround(c, a.opts.BoxDegrees))
	if err != nil {
		return CompositeHotspot{}, false, fmt.Errorf("find hotspots near %.5f,%.5f: %w", c.Lat, c.Lon, err)
	}
	for _, h := range hotspots {
		if Haversine(c, h.Coordinate()) <= a.opts.MergeRadiusKM {
			return h, true, nil
		}
	}
	return CompositeHotspot{}, false, nil
}

func transitionsFor(group []GeoPoint) []StatusTransition {
	out := make([]StatusTransition, 0, len(group))
	for _, p := range group {
		out = append(out, StatusTransition{
			CandidateID: p.Candidate.ID,
			Kind:        p.Candidate.Kind,
			Status:      StatusAggregated,
		})
	}
	return out
}

// batchSummary accumulates the signals of one group.
type batchSummary struct {
	points      int
	centroid    Coordinate
	emotionSums map[string]float64
	panicScores []float64
	eventTypes  map[string]struct{}
	severities  []float64
	riskTally   map[RiskLevel]int
	riskOrder   []RiskLevel
	reportIDs   map[string]struct{}
}

func summarize(group []GeoPoint) (*batchSummary, error) {
	b := &batchSummary{
		points:      len(group),
		emotionSums: make(map[string]float64),
		eventTypes:  make(map[string]struct{}),
		riskTally:   make(map[RiskLevel]int),
		reportIDs:   make(map[string]struct{}),
	}

	var latSum, lonSum, weight float64
	for _, p := range group {
		latSum += p.Lat * p.Weight
		lonSum += p.Lon * p.Weight
		weight += p.Weight
		b.reportIDs[p.Candidate.ContributorID()] = struct{}{}

		switch p.Candidate.Kind {
		case PointHuman:
			if p.Candidate.Human == nil {
				return nil, fmt.Errorf("candidate %s: human payload missing", p.Candidate.ID)
			}
			for _, e := range p.Candidate.Human.Emotions {
				b.emotionSums[e.Emotion] += e.Score * p.Weight
			}
			b.panicScores = append(b.panicScores, PanicScore(p.Candidate.Human.PanicLevel)*p.Weight)
		case PointDisaster:
			d := p.Candidate.Disaster
			if d == nil {
				return nil, fmt.Errorf("candidate %s: disaster payload missing", p.Candidate.ID)
			}
			if d.EventType != "" {
				b.eventTypes[d.EventType] = struct{}{}
			}
			b.severities = append(b.severities, SeverityValue(d.Severity)*p.Weight)
			if d.RiskLevel != "" {
				b.tallyRisk(RiskLevel(d.RiskLevel))
			}
		default:
			return nil, fmt.Errorf("candidate %s: %w: %q", p.Candidate.ID, ErrUnknownKind, p.Candidate.Kind)
		}
	}

	if weight == 0 {
		weight = 1
	}
	b.centroid = Coordinate{Lat: latSum / weight, Lon: lonSum / weight}
	return b, nil
}

func (b *batchSummary) tallyRisk(r RiskLevel) {
	if _, ok := b.riskTally[r]; !ok {
		b.riskOrder = append(b.riskOrder, r)
	}
	b.riskTally[r]++
}

// topRisk returns the most frequent risk level, the earliest seen on ties.
func (b *batchSummary) topRisk() (RiskLevel, int) {
	var top RiskLevel
	best := 0
	for _, r := range b.riskOrder {
		if n := b.riskTally[r]; n > best {
			top, best = r, n
		}
	}
	return top, best
}

func (b *batchSummary) panicSum() float64 {
	var s float64
	for _, v := range b.panicScores {
		s += v
	}
	return s
}

func (b *batchSummary) newHotspot(id string) CompositeHotspot {
	n := float64(b.points)

	emotions := make(map[string]float64, len(b.emotionSums))
	for e, s := range b.emotionSums {
		emotions[e] = s / n
	}

	var avgPanic float64
	if len(b.panicScores) > 0 {
		avgPanic = b.panicSum() / n
	}

	severity := SeverityLow
	if len(b.severities) > 0 {
		severity = SeverityForValue(maxOf(b.severities))
	}

	risk := RiskUnknown
	if top, count := b.topRisk(); count > 0 {
		risk = top
	}

	now := Now()
	return CompositeHotspot{
		ID:                  id,
		Latitude:            b.centroid.Lat,
		Longitude:           b.centroid.Lon,
		AggregatedEmotions:  emotions,
		AveragePanicLevel:   avgPanic,
		EventTypes:          unionSorted(nil, b.eventTypes),
		SeverityLevel:       severity,
		RiskLevel:           risk,
		ContributingReports: len(b.reportIDs),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// mergeInto weights existing averages by the stored report count and the
// batch by its distinct report count.
func (b *batchSummary) mergeInto(h CompositeHotspot) CompositeHotspot {
	prev := float64(h.ContributingReports)
	added := len(b.reportIDs)
	total := float64(h.ContributingReports + added)

	emotions := make(map[string]float64, len(h.AggregatedEmotions)+len(b.emotionSums))
	for e, v := range h.AggregatedEmotions {
		emotions[e] = v
	}
	if total > 0 {
		for e, s := range b.emotionSums {
			emotions[e] = (emotions[e]*prev + s) / total
		}
		h.AveragePanicLevel = (h.AveragePanicLevel*prev + b.panicSum()) / total
		h.Latitude = (h.Latitude*prev + b.centroid.Lat*float64(added)) / total
		h.Longitude = (h.Longitude*prev + b.centroid.Lon*float64(added)) / total
	}
	h.AggregatedEmotions = emotions

	h.SeverityLevel = SeverityForValue(maxOf(append([]float64{SeverityValue(string(h.SeverityLevel))}, b.severities...)))

	if top, count := b.topRisk(); count > b.riskTally[h.RiskLevel] {
		h.RiskLevel = top
	}

	h.EventTypes = unionSorted(h.EventTypes, b.eventTypes)
	h.ContributingReports += added
	h.UpdatedAt = Now()
	return h
}

func unionSorted(existing []string, add map[string]struct{}) []string {
	set := make(map[string]struct{}, len(existing)+len(add))
	for _, e := range existing {
		set[e] = struct{}{}
	}
	for e := range add {
		set[e] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		m = max(m, v)
	}
	return m
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
