package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Geocoding providers.
const (
	GeocoderNominatim = "nominatim"
	GeocoderMapbox    = "mapbox"
	GeocoderGoogle    = "google"
)

// Store backends.
const (
	StoreMemory        = "memory"
	StoreElasticsearch = "elasticsearch"
)

const (
	minGeocodeInterval  = time.Second
	minGeocodeCacheSize = 1000
)

// DefaultTrustedSources is the comma separated default for TRUSTED_SOURCES.
const DefaultTrustedSources = "official_news_agency,government_official,well_known_media,red_cross,un_official_disaster_org"

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers        []string
	KafkaReportTopic    string
	KafkaCandidateTopic string
	KafkaVerifiedTopic  string
	KafkaGroupID        string
	HTTPAddr            string
	LogLevel            string
	LogFormat           string
	ShutdownTimeout     time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Report verification.
	EventTypeThreshold   float64
	LocationThreshold    float64
	DescriptionThreshold float64
	ClusterTimeWindow    time.Duration
	TrustedSources       []string

	// Geocoding.
	Geocoder           string
	GeocodeInterval    time.Duration
	GeocodeCacheSize   int
	GeocodeTimeout     time.Duration
	NominatimURL       string
	NominatimUserAgent string
	MapboxToken        string
	GoogleMapsAPIKey   string

	// Spatial aggregation.
	SpatialRadiusKM   float64
	HotspotBoxDegrees float64
	AggregateWorkers  int
	AggregateSchedule string

	// Storage.
	StoreBackend                string
	ElasticsearchAddr           string
	ElasticsearchHotspotIndex   string
	ElasticsearchCandidateIndex string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportTopic:    sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "extracted-reports"),
		KafkaCandidateTopic: sharedcfg.EnvOrDefault("KAFKA_CANDIDATE_TOPIC", "hotspot-candidates"),
		KafkaVerifiedTopic:  sharedcfg.EnvOrDefault("KAFKA_VERIFIED_TOPIC", "verified-reports"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "disaster-hotspot-etl"),
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
		BatchSize:           batchSize,
		BatchFlushInterval:  flushInterval,

		TrustedSources: parseList(sharedcfg.EnvOrDefault("TRUSTED_SOURCES", DefaultTrustedSources)),

		Geocoder:           strings.ToLower(sharedcfg.EnvOrDefault("GEOCODER", GeocoderNominatim)),
		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org/search"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "disaster-hotspot-etl/1.0"),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),
		GoogleMapsAPIKey:   os.Getenv("GOOGLE_MAPS_API_KEY"),

		AggregateSchedule: sharedcfg.EnvOrDefault("AGGREGATE_SCHEDULE", "@every 5m"),

		StoreBackend:                strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", StoreMemory)),
		ElasticsearchAddr:           sharedcfg.EnvOrDefault("ELASTICSEARCH_ADDR", "http://localhost:9200"),
		ElasticsearchHotspotIndex:   sharedcfg.EnvOrDefault("ELASTICSEARCH_HOTSPOT_INDEX", "composite_hotspots"),
		ElasticsearchCandidateIndex: sharedcfg.EnvOrDefault("ELASTICSEARCH_CANDIDATE_INDEX", "hotspot_candidates"),
	}

	if cfg.EventTypeThreshold, err = parseThreshold("SIMILARITY_EVENT_TYPE_THRESHOLD"); err != nil {
		return nil, err
	}
	if cfg.LocationThreshold, err = parseThreshold("SIMILARITY_LOCATION_THRESHOLD"); err != nil {
		return nil, err
	}
	if cfg.DescriptionThreshold, err = parseThreshold("SIMILARITY_DESCRIPTION_THRESHOLD"); err != nil {
		return nil, err
	}
	if cfg.ClusterTimeWindow, err = parsePositiveDuration("CLUSTER_TIME_WINDOW", "2h"); err != nil {
		return nil, err
	}
	if cfg.GeocodeInterval, err = parsePositiveDuration("GEOCODE_INTERVAL", "1s"); err != nil {
		return nil, err
	}
	if cfg.GeocodeTimeout, err = parsePositiveDuration("GEOCODE_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.GeocodeCacheSize, err = parseInt("GEOCODE_CACHE_SIZE", minGeocodeCacheSize); err != nil {
		return nil, err
	}
	if cfg.SpatialRadiusKM, err = parsePositiveFloat("SPATIAL_RADIUS_KM", 5); err != nil {
		return nil, err
	}
	if cfg.HotspotBoxDegrees, err = parsePositiveFloat("HOTSPOT_BOX_DEGREES", 0.05); err != nil {
		return nil, err
	}
	if cfg.AggregateWorkers, err = parseInt("AGGREGATE_WORKERS", 4); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaReportTopic == "" {
		return errors.New("KAFKA_REPORT_TOPIC is required")
	}
	if cfg.KafkaCandidateTopic == "" {
		return errors.New("KAFKA_CANDIDATE_TOPIC is required")
	}
	if cfg.KafkaVerifiedTopic == "" {
		return errors.New("KAFKA_VERIFIED_TOPIC is required")
	}
	if cfg.GeocodeInterval < minGeocodeInterval {
		return fmt.Errorf("GEOCODE_INTERVAL must be at least %s", minGeocodeInterval)
	}
	if cfg.GeocodeCacheSize < minGeocodeCacheSize {
		return fmt.Errorf("GEOCODE_CACHE_SIZE must be at least %d", minGeocodeCacheSize)
	}
	if cfg.AggregateWorkers < 1 {
		return errors.New("AGGREGATE_WORKERS must be at least 1")
	}
	if _, err := cron.ParseStandard(cfg.AggregateSchedule); err != nil {
		return fmt.Errorf("invalid AGGREGATE_SCHEDULE: %w", err)
	}

	switch cfg.Geocoder {
	case GeocoderNominatim:
		if cfg.NominatimURL == "" {
			return errors.New("NOMINATIM_URL is required")
		}
	case GeocoderMapbox:
		if cfg.MapboxToken == "" {
			return errors.New("GEOCODER is mapbox but MAPBOX_TOKEN is not set")
		}
	case GeocoderGoogle:
		if cfg.GoogleMapsAPIKey == "" {
			return errors.New("GEOCODER is google but GOOGLE_MAPS_API_KEY is not set")
		}
	default:
		return fmt.Errorf("invalid GEOCODER %q", cfg.Geocoder)
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreElasticsearch:
		if cfg.ElasticsearchAddr == "" {
			return errors.New("ELASTICSEARCH_ADDR is required")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}
	return nil
}

func parseThreshold(key string) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return 60, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("invalid %s: must be a number within [0,100]", key)
	}
	return v, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive number", key)
	}
	return v, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
