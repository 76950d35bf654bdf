package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "extracted-reports", cfg.KafkaReportTopic)
	assert.Equal(t, "hotspot-candidates", cfg.KafkaCandidateTopic)
	assert.Equal(t, "verified-reports", cfg.KafkaVerifiedTopic)
	assert.Equal(t, "disaster-hotspot-etl", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)

	assert.Equal(t, 60.0, cfg.EventTypeThreshold)
	assert.Equal(t, 60.0, cfg.LocationThreshold)
	assert.Equal(t, 60.0, cfg.DescriptionThreshold)
	assert.Equal(t, 2*time.Hour, cfg.ClusterTimeWindow)
	assert.Equal(t, []string{
		"official_news_agency", "government_official", "well_known_media", "red_cross", "un_official_disaster_org",
	}, cfg.TrustedSources)

	assert.Equal(t, GeocoderNominatim, cfg.Geocoder)
	assert.Equal(t, time.Second, cfg.GeocodeInterval)
	assert.Equal(t, 1000, cfg.GeocodeCacheSize)
	assert.Equal(t, 10*time.Second, cfg.GeocodeTimeout)
	assert.Equal(t, "https://nominatim.openstreetmap.org/search", cfg.NominatimURL)

	assert.Equal(t, 5.0, cfg.SpatialRadiusKM)
	assert.Equal(t, 0.05, cfg.HotspotBoxDegrees)
	assert.Equal(t, 4, cfg.AggregateWorkers)
	assert.Equal(t, "@every 5m", cfg.AggregateSchedule)

	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "composite_hotspots", cfg.ElasticsearchHotspotIndex)
	assert.Equal(t, "hotspot_candidates", cfg.ElasticsearchCandidateIndex)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_REPORT_TOPIC", "custom-reports")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SIMILARITY_LOCATION_THRESHOLD", "75.5")
	t.Setenv("CLUSTER_TIME_WINDOW", "30m")
	t.Setenv("TRUSTED_SOURCES", " red_cross , , local_police ")
	t.Setenv("GEOCODER", "Mapbox")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("GEOCODE_INTERVAL", "2s")
	t.Setenv("GEOCODE_CACHE_SIZE", "5000")
	t.Setenv("SPATIAL_RADIUS_KM", "2.5")
	t.Setenv("AGGREGATE_WORKERS", "8")
	t.Setenv("AGGREGATE_SCHEDULE", "*/10 * * * *")
	t.Setenv("STORE_BACKEND", "elasticsearch")
	t.Setenv("ELASTICSEARCH_ADDR", "http://es:9200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-reports", cfg.KafkaReportTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 75.5, cfg.LocationThreshold)
	assert.Equal(t, 30*time.Minute, cfg.ClusterTimeWindow)
	assert.Equal(t, []string{"red_cross", "local_police"}, cfg.TrustedSources)
	assert.Equal(t, GeocoderMapbox, cfg.Geocoder)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 2*time.Second, cfg.GeocodeInterval)
	assert.Equal(t, 5000, cfg.GeocodeCacheSize)
	assert.Equal(t, 2.5, cfg.SpatialRadiusKM)
	assert.Equal(t, 8, cfg.AggregateWorkers)
	assert.Equal(t, "*/10 * * * *", cfg.AggregateSchedule)
	assert.Equal(t, StoreElasticsearch, cfg.StoreBackend)
	assert.Equal(t, "http://es:9200", cfg.ElasticsearchAddr)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		key, value, wantInErr string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"BATCH_SIZE", "0", "BATCH_SIZE"},
		{"BATCH_SIZE", "9999", "BATCH_SIZE"},
		{"BATCH_FLUSH_INTERVAL", "not-a-duration", "BATCH_FLUSH_INTERVAL"},
		{"SIMILARITY_EVENT_TYPE_THRESHOLD", "101", "SIMILARITY_EVENT_TYPE_THRESHOLD"},
		{"SIMILARITY_DESCRIPTION_THRESHOLD", "abc", "SIMILARITY_DESCRIPTION_THRESHOLD"},
		{"CLUSTER_TIME_WINDOW", "-5m", "CLUSTER_TIME_WINDOW"},
		{"GEOCODE_INTERVAL", "500ms", "GEOCODE_INTERVAL"},
		{"GEOCODE_CACHE_SIZE", "10", "GEOCODE_CACHE_SIZE"},
		{"GEOCODE_CACHE_SIZE", "lots", "GEOCODE_CACHE_SIZE"},
		{"GEOCODE_TIMEOUT", "0s", "GEOCODE_TIMEOUT"},
		{"SPATIAL_RADIUS_KM", "0", "SPATIAL_RADIUS_KM"},
		{"HOTSPOT_BOX_DEGREES", "-1", "HOTSPOT_BOX_DEGREES"},
		{"AGGREGATE_WORKERS", "0", "AGGREGATE_WORKERS"},
		{"AGGREGATE_SCHEDULE", "every so often", "AGGREGATE_SCHEDULE"},
		{"GEOCODER", "bing", "GEOCODER"},
		{"STORE_BACKEND", "postgres", "STORE_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantInErr)
		})
	}
}

func TestLoad_ProviderCredentials(t *testing.T) {
	t.Run("mapbox without token", func(t *testing.T) {
		t.Setenv("GEOCODER", GeocoderMapbox)
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
	})

	t.Run("google without key", func(t *testing.T) {
		t.Setenv("GEOCODER", GeocoderGoogle)
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GOOGLE_MAPS_API_KEY")
	})

	t.Run("google with key", func(t *testing.T) {
		t.Setenv("GEOCODER", GeocoderGoogle)
		t.Setenv("GOOGLE_MAPS_API_KEY", "AIza-test")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "AIza-test", cfg.GoogleMapsAPIKey)
	})
}
