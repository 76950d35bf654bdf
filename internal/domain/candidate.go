package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PointKind discriminates the two hotspot candidate payloads.
type PointKind string

const (
	PointHuman    PointKind = "human"
	PointDisaster PointKind = "disaster"
)

// CandidateStatus tracks whether a candidate has been folded into a composite hotspot.
// The only transition is pending -> aggregated.
type CandidateStatus string

const (
	StatusPending    CandidateStatus = "pending"
	StatusAggregated CandidateStatus = "aggregated"
)

// ErrUnknownKind is returned for a candidate whose kind is neither human nor disaster.
var ErrUnknownKind = errors.New("unknown candidate kind")

// EmotionScore is one classified emotion with its strength.
type EmotionScore struct {
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
}

// HumanSignal is the human-impact payload of a candidate.
type HumanSignal struct {
	Emotions   []EmotionScore
	PanicLevel string
}

// DisasterSignal is the disaster-severity payload of a candidate.
type DisasterSignal struct {
	EventType string
	Severity  string
	RiskLevel string
}

// Candidate is a classified human or disaster hotspot waiting to be geocoded
// and aggregated. Exactly one of Human and Disaster is set, matching Kind.
type Candidate struct {
	ID         string
	ReportID   string
	Kind       PointKind
	Location   string
	Timestamp  string
	Confidence *float64
	Status     CandidateStatus
	ReceivedAt time.Time

	Human    *HumanSignal
	Disaster *DisasterSignal
}

// ContributorID identifies the report a candidate was derived from, falling
// back to the candidate ID when no report ID was supplied.
func (c Candidate) ContributorID() string {
	if c.ReportID != "" {
		return c.ReportID
	}
	return c.ID
}

// Validate checks the kind discriminator, payload and confidence.
func (c Candidate) Validate() error {
	switch c.Kind {
	case PointHuman:
		if c.Human == nil {
			return errors.New("human candidate without human payload")
		}
	case PointDisaster:
		if c.Disaster == nil {
			return errors.New("disaster candidate without disaster payload")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	return validateConfidence(c.Confidence)
}

// ParseCandidate decodes and validates a JSON candidate payload. New
// candidates always start pending.
func ParseCandidate(data []byte) (Candidate, error) {
	var c Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return Candidate{}, fmt.Errorf("unmarshal candidate: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Candidate{}, fmt.Errorf("validate candidate: %w", err)
	}
	c.Status = StatusPending
	return c, nil
}

// candidateJSON is the flat wire form shared by both kinds.
type candidateJSON struct {
	ID         string          `json:"id,omitempty"`
	ReportID   string          `json:"report_id,omitempty"`
	Kind       PointKind       `json:"kind"`
	Location   string          `json:"location,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Status     CandidateStatus `json:"status,omitempty"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`

	Emotions   []EmotionScore `json:"emotions,omitempty"`
	PanicLevel string         `json:"panic_level,omitempty"`

	EventType string `json:"event_type,omitempty"`
	Severity  string `json:"severity,omitempty"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// MarshalJSON encodes the candidate in its flat wire form.
func (c Candidate) MarshalJSON() ([]byte, error) {
	w := candidateJSON{
		ID:         c.ID,
		ReportID:   c.ReportID,
		Kind:       c.Kind,
		Location:   c.Location,
		Timestamp:  c.Timestamp,
		Confidence: c.Confidence,
		Status:     c.Status,
	}
	if !c.ReceivedAt.IsZero() {
		t := c.ReceivedAt
		w.ReceivedAt = &t
	}
	if c.Human != nil {
		w.Emotions = c.Human.Emotions
		w.PanicLevel = c.Human.PanicLevel
	}
	if c.Disaster != nil {
		w.EventType = c.Disaster.EventType
		w.Severity = c.Disaster.Severity
		w.RiskLevel = c.Disaster.RiskLevel
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire form, filling the payload that matches the kind.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var w candidateJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Candidate{
		ID:         w.ID,
		ReportID:   w.ReportID,
		Kind:       PointKind(strings.ToLower(string(w.Kind))),
		Location:   w.Location,
		Timestamp:  w.Timestamp,
		Confidence: w.Confidence,
		Status:     w.Status,
	}
	if w.ReceivedAt != nil {
		c.ReceivedAt = *w.ReceivedAt
	}
	switch c.Kind {
	case PointHuman:
		c.Human = &HumanSignal{Emotions: w.Emotions, PanicLevel: w.PanicLevel}
	case PointDisaster:
		severity := w.Severity
		if severity == "" {
			severity = SeverityForEventType(w.EventType)
		}
		risk := w.RiskLevel
		if risk == "" {
			risk = string(RiskForSeverity(severity))
		}
		c.Disaster = &DisasterSignal{EventType: w.EventType, Severity: severity, RiskLevel: risk}
	}
	return nil
}

// StatusTransition is a status change for the candidate store to apply.
type StatusTransition struct {
	CandidateID string
	Kind        PointKind
	Status      CandidateStatus
}

// GeoPoint is a geocoded candidate ready for spatial clustering.
type GeoPoint struct {
	Candidate Candidate
	Coordinate
	Weight float64
}

// NewGeoPoint places c at coord. Its weight is the candidate confidence, or 1
// when the confidence is absent or zero.
func NewGeoPoint(c Candidate, coord Coordinate) GeoPoint {
	w := 1.0
	if c.Confidence != nil && *c.Confidence > 0 {
		w = *c.Confidence
	}
	return GeoPoint{Candidate: c, Coordinate: coord, Weight: w}
}
