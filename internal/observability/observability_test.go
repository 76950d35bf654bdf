package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/config"
)

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level      string
		enabled    slog.Level
		suppressed slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warning", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(&config.Config{LogLevel: tt.level, LogFormat: "json"})
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.suppressed))
		})
	}
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.MessagesConsumed.WithLabelValues("reports").Add(3)
	m.HotspotsCreated.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesConsumed.WithLabelValues("reports")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HotspotsCreated))
}
