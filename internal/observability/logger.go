package observability

import (
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/config"
)

const serviceName = "disaster-hotspot-etl"

// NewLogger builds the service logger from LOG_LEVEL and LOG_FORMAT and tags
// every record with the service name.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", serviceName)
}
