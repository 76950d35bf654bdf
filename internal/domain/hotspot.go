package domain

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// SeverityLevel is the categorical severity of a composite hotspot.
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityVeryHigh SeverityLevel = "very_high"
)

// RiskLevel is the categorical risk of a composite hotspot.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskUnknown  RiskLevel = "unknown"
)

// CompositeHotspot is a persisted, continuously merged aggregate of
// human-impact and disaster-severity signals at one location.
type CompositeHotspot struct {
	ID                  string             `json:"id"`
	Latitude            float64            `json:"latitude"`
	Longitude           float64            `json:"longitude"`
	AggregatedEmotions  map[string]float64 `json:"aggregated_emotions"`
	AveragePanicLevel   float64            `json:"average_panic_level"`
	EventTypes          []string           `json:"event_types"`
	SeverityLevel       SeverityLevel      `json:"severity_level"`
	RiskLevel           RiskLevel          `json:"risk_level"`
	ContributingReports int                `json:"contributing_reports"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Coordinate returns the hotspot centroid.
func (h CompositeHotspot) Coordinate() Coordinate {
	return Coordinate{Lat: h.Latitude, Lon: h.Longitude}
}

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// HotspotStore persists composite hotspots.
type HotspotStore interface {
	// FindInBox returns hotspots whose centroid lies inside box, oldest first.
	FindInBox(ctx context.Context, box Box) ([]CompositeHotspot, error)
	// Get returns the hotspot with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (CompositeHotspot, error)
	// Save inserts or replaces a hotspot by ID.
	Save(ctx context.Context, h CompositeHotspot) error
}

// CandidateStore persists hotspot candidates and their aggregation status.
type CandidateStore interface {
	// SaveCandidates stores new candidates. Candidates whose ID is already
	// stored are left untouched.
	SaveCandidates(ctx context.Context, candidates []Candidate) error
	// ListPending returns up to limit pending candidates in arrival order.
	// A limit of zero or less returns all of them.
	ListPending(ctx context.Context, limit int) ([]Candidate, error)
	// ApplyTransitions updates candidate statuses.
	ApplyTransitions(ctx context.Context, transitions []StatusTransition) error
}

// SeverityValue maps a severity label onto the 1-4 scale. Unknown labels count as low.
func SeverityValue(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", string(SeverityVeryHigh):
		return 4
	case string(SeverityHigh):
		return 3
	case string(SeverityMedium):
		return 2
	default:
		return 1
	}
}

// SeverityForValue maps a 1-4 severity value back to a label, rounding to the
// nearest step and clamping to the scale.
func SeverityForValue(v float64) SeverityLevel {
	switch n := math.Round(v); {
	case n >= 4:
		return SeverityVeryHigh
	case n == 3:
		return SeverityHigh
	case n == 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SeverityForEventType gives the default severity of an event type when the
// classifier supplied none.
func SeverityForEventType(eventType string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "earthquake":
		return string(SeverityVeryHigh)
	case "fire", "flood", "inundation":
		return string(SeverityHigh)
	case "riot", "storm":
		return string(SeverityMedium)
	}
	return ""
}

// RiskForSeverity derives a risk level from a severity label. A blank
// severity yields a blank risk.
func RiskForSeverity(severity string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "":
		return ""
	case string(SeverityVeryHigh), "critical":
		return RiskCritical
	case string(SeverityHigh):
		return RiskHigh
	case string(SeverityMedium):
		return RiskMedium
	default:
		return RiskLow
	}
}

// PanicScore maps a panic level label to its base score.
func PanicScore(level string) float64 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "high":
		return 1.0
	case "medium":
		return 0.6
	case "low":
		return 0.3
	}
	return 0
}
