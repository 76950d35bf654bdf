package domain

import (
	"errors"
	"fmt"
	"time"
)

// Cluster is an ordered, non-empty group of reports believed to describe the
// same event. The first report is the comparison anchor.
type Cluster []Report

// Anchor returns the report every candidate is compared against.
func (c Cluster) Anchor() Report {
	return c[0]
}

// ClusterOptions holds the thresholds used when grouping reports.
type ClusterOptions struct {
	EventTypeThreshold   float64
	LocationThreshold    float64
	DescriptionThreshold float64
	TimeWindow           time.Duration
}

// DefaultClusterOptions returns thresholds of 60 and a two hour window.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{
		EventTypeThreshold:   60,
		LocationThreshold:    60,
		DescriptionThreshold: 60,
		TimeWindow:           2 * time.Hour,
	}
}

// Validate checks that thresholds are on the 0-100 scale and the window is positive.
func (o ClusterOptions) Validate() error {
	for name, v := range map[string]float64{
		"event type threshold":  o.EventTypeThreshold,
		"location threshold":    o.LocationThreshold,
		"description threshold": o.DescriptionThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within [0,100], got %v", name, v)
		}
	}
	if o.TimeWindow <= 0 {
		return errors.New("time window must be positive")
	}
	return nil
}

// ReportClusterer groups reports that describe the same underlying event.
type ReportClusterer struct {
	opts ClusterOptions
}

// NewReportClusterer validates opts and returns a clusterer.
func NewReportClusterer(opts ClusterOptions) (*ReportClusterer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &ReportClusterer{opts: opts}, nil
}

// Cluster partitions reports in arrival order. Each report joins the first
// cluster whose anchor it matches, or starts a new one. Clusters are never
// merged and earlier assignments are never revisited.
func (c *ReportClusterer) Cluster(reports []Report) []Cluster {
	var clusters []Cluster
	for _, r := range reports {
		joined := false
		for i := range clusters {
			if c.matches(clusters[i].Anchor(), r) {
				clusters[i] = append(clusters[i], r)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, Cluster{r})
		}
	}
	return clusters
}

// matches counts the fields present on both reports and how many of them agree.
func (c *ReportClusterer) matches(anchor, r Report) bool {
	total, matched := 0, 0

	compare := func(a, b string, threshold float64) {
		if a == "" || b == "" {
			return
		}
		total++
		if TextSimilarity(a, b) >= threshold {
			matched++
		}
	}

	compare(anchor.EventType, r.EventType, c.opts.EventTypeThreshold)
	compare(anchor.Location, r.Location, c.opts.LocationThreshold)
	if anchor.Timestamp != "" && r.Timestamp != "" {
		total++
		if TimeWithinWindow(anchor.Timestamp, r.Timestamp, c.opts.TimeWindow) {
			matched++
		}
	}
	compare(anchor.Description, r.Description, c.opts.DescriptionThreshold)

	return total > 0 && matched >= max(2, total/2)
}
