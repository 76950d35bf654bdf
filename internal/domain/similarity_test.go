package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTextSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "fire", "fire", 100},
		{"case insensitive", "Fire", "fire", 100},
		{"word order ignored", "north paris", "Paris North", 100},
		{"subset scores full", "paris", "paris france", 100},
		{"repeated words ignored", "flood flood", "flood", 100},
		{"disjoint", "flood", "earthquake", 0},
		{"empty left", "", "fire", 0},
		{"blank right", "fire", "   ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TextSimilarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestTextSimilarity_PartialOverlap(t *testing.T) {
	// Best pair is "fire kitchen" vs "fire house": LCS "fire he", 2*7/22.
	got := TextSimilarity("kitchen fire", "house fire")
	assert.InDelta(t, 63.636, got, 0.01)
}

func TestTextSimilarity_Symmetric(t *testing.T) {
	a, b := "large fire near the river bank", "fire by river"
	assert.InDelta(t, TextSimilarity(a, b), TextSimilarity(b, a), 1e-9)
}

func TestTimeWithinWindow(t *testing.T) {
	tests := []struct {
		name   string
		t1, t2 string
		window time.Duration
		want   bool
	}{
		{"within", "2025-09-14T12:00:00Z", "2025-09-14T12:15:00Z", 2 * time.Hour, true},
		{"reversed order", "2025-09-14T14:00:00Z", "2025-09-14T12:30:00Z", 2 * time.Hour, true},
		{"boundary inclusive", "2025-09-14T12:00:00Z", "2025-09-14T14:00:00Z", 2 * time.Hour, true},
		{"outside", "2025-09-14T12:00:00Z", "2025-09-14T14:00:01Z", 2 * time.Hour, false},
		{"offset form rejected", "2025-09-14T12:00:00+00:00", "2025-09-14T12:00:00Z", 2 * time.Hour, false},
		{"fractional seconds rejected", "2025-09-14T12:00:00.5Z", "2025-09-14T12:00:00Z", 2 * time.Hour, false},
		{"garbage", "yesterday", "2025-09-14T12:00:00Z", 2 * time.Hour, false},
		{"empty", "", "", 2 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeWithinWindow(tt.t1, tt.t2, tt.window))
		})
	}
}
