// Package domain holds the disaster report and hotspot model.
//
// # Verification
//
// Reports arrive from the extraction stage in batches. [ReportClusterer]
// groups reports that describe the same event by fuzzy-matching event type,
// location and description against each cluster's first report and checking
// that timestamps fall within a window. [VeracityGate] then drops clusters
// made of a single untrusted report and emits one representative per
// accepted cluster, flagged "verified".
//
// # Aggregation
//
// Verified reports are classified downstream into human-impact and disaster
// [Candidate] records. Once geocoded into [GeoPoint] values they are grouped
// by single linkage within a 5 km radius ([ClusterPoints]) and each group is
// folded by [HotspotAggregator] into the nearest stored [CompositeHotspot],
// or a new one. Averages are weighted by the number of distinct reports that
// contributed, so a hotspot's contributing report count never decreases.
//
// Aggregation returns explicit pending -> aggregated [StatusTransition]
// values; the caller applies them to the [CandidateStore].
package domain
