package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RawEvent represents an unprocessed message from a source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// VeracityFlag is the categorical trust label carried by a report.
type VeracityFlag string

const (
	VeracityConfirmed   VeracityFlag = "confirmed"
	VeracityUnconfirmed VeracityFlag = "unconfirmed"
	VeracityRetracted   VeracityFlag = "retracted"
	VeracityUnknown     VeracityFlag = "unknown"
	VeracityVerified    VeracityFlag = "verified"
	VeracityRejected    VeracityFlag = "rejected"
)

// Valid reports whether f is one of the known flags. The empty flag is valid.
func (f VeracityFlag) Valid() bool {
	switch f {
	case "", VeracityConfirmed, VeracityUnconfirmed, VeracityRetracted,
		VeracityUnknown, VeracityVerified, VeracityRejected:
		return true
	}
	return false
}

// Report is a single claim about a disaster or human-impact event extracted
// from one piece of text. Empty string fields are treated as absent.
type Report struct {
	ID           string       `json:"id,omitempty"`
	EventType    string       `json:"event_type,omitempty"`
	Location     string       `json:"location,omitempty"`
	Timestamp    string       `json:"timestamp,omitempty"`
	Description  string       `json:"description,omitempty"`
	Source       string       `json:"source,omitempty"`
	MediaURLs    []string     `json:"media_urls,omitempty"`
	Reporter     string       `json:"reporter,omitempty"`
	Confidence   *float64     `json:"confidence,omitempty"`
	VeracityFlag VeracityFlag `json:"veracity_flag,omitempty"`
}

// ConfidenceOrZero returns the report confidence, treating an absent value as 0.
func (r Report) ConfidenceOrZero() float64 {
	if r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

var (
	// ErrInvalidConfidence is returned when a confidence lies outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be within [0,1]")
	// ErrInvalidVeracityFlag is returned for an unrecognised veracity flag.
	ErrInvalidVeracityFlag = errors.New("unknown veracity flag")
)

// Validate checks the report invariants.
func (r Report) Validate() error {
	if err := validateConfidence(r.Confidence); err != nil {
		return err
	}
	if !r.VeracityFlag.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVeracityFlag, r.VeracityFlag)
	}
	return nil
}

// ParseReport decodes and validates a JSON report payload.
func ParseReport(data []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Report{}, fmt.Errorf("validate report: %w", err)
	}
	return r, nil
}

func validateConfidence(c *float64) error {
	if c == nil {
		return nil
	}
	if *c < 0 || *c > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, *c)
	}
	return nil
}
