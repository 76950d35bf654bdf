package domain

import "strings"

// DefaultTrustedSources lists the sources that corroborate a single report on their own.
var DefaultTrustedSources = []string{
	"official_news_agency",
	"government_official",
	"well_known_media",
	"red_cross",
	"un_official_disaster_org",
}

// VeracityGate accepts or rejects a cluster based on source trust and
// corroboration, and picks the report that represents an accepted cluster.
type VeracityGate struct {
	trusted map[string]struct{}
}

// NewVeracityGate builds a gate over the given trusted source names.
func NewVeracityGate(trusted []string) *VeracityGate {
	set := make(map[string]struct{}, len(trusted))
	for _, s := range trusted {
		if n := NormalizeSource(s); n != "" {
			set[n] = struct{}{}
		}
	}
	return &VeracityGate{trusted: set}
}

// NormalizeSource lowercases a source name and replaces spaces with underscores.
func NormalizeSource(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// Trusted reports whether source is on the allow-list.
func (g *VeracityGate) Trusted(source string) bool {
	_, ok := g.trusted[NormalizeSource(source)]
	return ok
}

// Evaluate returns the verified representative of c, or false when the
// cluster is a lone report from an untrusted source. The input is not modified.
func (g *VeracityGate) Evaluate(c Cluster) (Report, bool) {
	if len(c) == 0 {
		return Report{}, false
	}

	trusted := 0
	for _, r := range c {
		if g.Trusted(r.Source) {
			trusted++
		}
	}
	if trusted == 0 && len(c) < 2 {
		return Report{}, false
	}

	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].ConfidenceOrZero() > c[best].ConfidenceOrZero() {
			best = i
		}
	}

	rep := c[best]
	if rep.Reporter == "" {
		rep.Reporter = "unknown"
	}
	rep.VeracityFlag = VeracityVerified
	return rep, true
}
