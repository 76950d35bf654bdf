// Package geocode resolves free-form location text to coordinates through a
// rate-limited, memoized wrapper around a geocoding provider.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/observability"
)

const (
	// MinInterval is the smallest spacing allowed between provider calls.
	MinInterval = time.Second
	// MinCacheSize is the smallest memo capacity allowed.
	MinCacheSize = 1000
)

// Options configures a Resolver.
type Options struct {
	Interval  time.Duration // minimum spacing between provider calls
	CacheSize int           // memoized lookups kept
	Timeout   time.Duration // per provider call
}

// DefaultOptions returns one call per second, 1000 cached entries and a 10s timeout.
func DefaultOptions() Options {
	return Options{
		Interval:  MinInterval,
		CacheSize: MinCacheSize,
		Timeout:   10 * time.Second,
	}
}

// Validate enforces the minimum interval and cache size.
func (o Options) Validate() error {
	if o.Interval < MinInterval {
		return fmt.Errorf("geocode interval must be at least %s", MinInterval)
	}
	if o.CacheSize < MinCacheSize {
		return fmt.Errorf("geocode cache size must be at least %d", MinCacheSize)
	}
	if o.Timeout <= 0 {
		return errors.New("geocode timeout must be positive")
	}
	return nil
}

// entry is a memoized lookup. Not-found answers are cached too.
type entry struct {
	coord domain.Coordinate
	found bool
}

// Resolver memoizes geocoding lookups by normalized text and spaces all
// provider calls on one instance by at least the configured interval. Callers
// wait for their turn rather than being dropped. Share one Resolver across
// every caller that talks to the same provider.
type Resolver struct {
	geocoder domain.Geocoder
	cache    *lru.Cache
	limiter  *rate.Limiter
	flights  singleflight.Group
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New validates opts and builds a Resolver over geocoder.
func New(geocoder domain.Geocoder, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Resolver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return newResolver(geocoder, opts, logger, metrics)
}

func newResolver(geocoder domain.Geocoder, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Resolver, error) {
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}
	return &Resolver{
		geocoder: geocoder,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Every(opts.Interval), 1),
		timeout:  opts.Timeout,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Resolve returns the coordinates for location, or false when the text is
// blank, the provider has no match, or the lookup failed. Failures are logged
// and not cached, so a later call retries them. Concurrent callers for the
// same text share one provider call; a caller whose ctx ends stops waiting
// without cancelling the call for the others.
func (r *Resolver) Resolve(ctx context.Context, location string) (domain.Coordinate, bool) {
	key := normalize(location)
	if key == "" {
		r.metrics.GeocodeRequests.WithLabelValues("blank").Inc()
		return domain.Coordinate{}, false
	}

	if v, ok := r.cache.Get(key); ok {
		r.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		e := v.(entry)
		return e.coord, e.found
	}
	r.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	if err := ctx.Err(); err != nil {
		r.logger.Warn("geocode skipped", "error", err, "location", location)
		return domain.Coordinate{}, false
	}

	query := strings.TrimSpace(location)
	flightCtx := context.WithoutCancel(ctx)
	ch := r.flights.DoChan(key, func() (any, error) {
		// A flight that finished just before this one may have filled the cache.
		if v, ok := r.cache.Get(key); ok {
			return v, nil
		}
		e, err := r.lookup(flightCtx, query)
		if err != nil {
			return nil, err
		}
		r.cache.Add(key, e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		r.logger.Warn("geocode abandoned", "error", ctx.Err(), "location", location)
		return domain.Coordinate{}, false
	case res := <-ch:
		if res.Err != nil {
			r.logger.Warn("geocode failed", "error", res.Err, "location", location)
			return domain.Coordinate{}, false
		}
		e := res.Val.(entry)
		return e.coord, e.found
	}
}

func (r *Resolver) lookup(ctx context.Context, query string) (entry, error) {
	waitStart := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		r.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return entry{}, fmt.Errorf("wait for geocode rate limit: %w", err)
	}
	r.metrics.GeocodeLimiterWait.Observe(time.Since(waitStart).Seconds())

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.geocoder.Geocode(callCtx, query)
	r.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return entry{}, err
	}
	if !result.Found() {
		r.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		r.logger.Debug("geocode returned no match", "location", query)
		return entry{}, nil
	}
	r.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return entry{coord: result.Coordinate(), found: true}, nil
}

// normalize trims, lowercases and collapses internal whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
