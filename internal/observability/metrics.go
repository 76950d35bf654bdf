package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotspot_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Stream stage metrics, labelled by stage={reports,candidates}.
	MessagesConsumed        *prometheus.CounterVec
	MessagesLoaded          *prometheus.CounterVec
	DecodeErrors            *prometheus.CounterVec
	PipelineRunning         *prometheus.GaugeVec
	BatchSize               *prometheus.HistogramVec
	BatchProcessingDuration *prometheus.HistogramVec

	// Verification metrics.
	ClustersCreated prometheus.Counter
	ClusterSize     prometheus.Histogram
	ReportsVerified prometheus.Counter
	ReportsFiltered prometheus.Counter

	// Candidate intake.
	CandidatesStored prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,empty,error,blank}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeLimiterWait prometheus.Histogram

	// Aggregation metrics.
	PointsDropped           prometheus.Counter
	HotspotsCreated         prometheus.Counter
	HotspotsUpdated         prometheus.Counter
	AggregationErrors       prometheus.Counter
	AggregationPassDuration prometheus.Histogram
	PendingCandidates       prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from a source topic.",
		}, []string{"stage"}),
		MessagesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_loaded_total",
			Help:      "Total decoded messages handed to the stage loader.",
		}, []string{"stage"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Messages skipped because they failed to decode or validate.",
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the stage loop is active, 0 when shut down.",
		}, []string{"stage"}),
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}, []string{"stage"}),
		BatchProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-decode-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		ClustersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_created_total",
			Help:      "Report clusters formed during verification.",
		}),
		ClusterSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_size",
			Help:      "Reports per cluster.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		ReportsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_verified_total",
			Help:      "Representative reports emitted as verified.",
		}),
		ReportsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_filtered_total",
			Help:      "Reports dropped by the veracity gate or folded into a representative.",
		}),
		CandidatesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_stored_total",
			Help:      "Hotspot candidates stored as pending.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding lookups by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		GeocodeLimiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_limiter_wait_seconds",
			Help:      "Time spent waiting for the geocoding rate limiter.",
			Buckets:   []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		PointsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_dropped_total",
			Help:      "Candidates left out of an aggregation pass because they could not be geocoded.",
		}),
		HotspotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hotspots_created_total",
			Help:      "Composite hotspots created.",
		}),
		HotspotsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hotspots_updated_total",
			Help:      "Composite hotspots merged in place.",
		}),
		AggregationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_errors_total",
			Help:      "Point groups skipped because aggregation failed.",
		}),
		AggregationPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_pass_duration_seconds",
			Help:      "Duration of a full aggregation pass.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		PendingCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_candidates",
			Help:      "Pending candidates loaded at the start of the last aggregation pass.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesLoaded,
		m.DecodeErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ClustersCreated,
		m.ClusterSize,
		m.ReportsVerified,
		m.ReportsFiltered,
		m.CandidatesStored,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeLimiterWait,
		m.PointsDropped,
		m.HotspotsCreated,
		m.HotspotsUpdated,
		m.AggregationErrors,
		m.AggregationPassDuration,
		m.PendingCandidates,
	}
}
