package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/elasticsearch"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/geocode"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/googlemaps"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/memory"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/config"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/observability"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/pipeline"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	geocoder, err := newGeocoder(cfg)
	if err != nil {
		return err
	}
	resolver, err := geocode.New(geocoder, geocode.Options{
		Interval:  cfg.GeocodeInterval,
		CacheSize: cfg.GeocodeCacheSize,
		Timeout:   cfg.GeocodeTimeout,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("geocode resolver: %w", err)
	}
	logger.Info("geocoding configured", "provider", cfg.Geocoder, "interval", cfg.GeocodeInterval, "cache_size", cfg.GeocodeCacheSize)

	hotspots, candidates, storeCheck, err := newStores(cfg, logger)
	if err != nil {
		return err
	}

	// Report verification stage.
	clusterer, err := domain.NewReportClusterer(domain.ClusterOptions{
		EventTypeThreshold:   cfg.EventTypeThreshold,
		LocationThreshold:    cfg.LocationThreshold,
		DescriptionThreshold: cfg.DescriptionThreshold,
		TimeWindow:           cfg.ClusterTimeWindow,
	})
	if err != nil {
		return fmt.Errorf("report clusterer: %w", err)
	}
	reportReader := kafkaadapter.NewReader(cfg, cfg.KafkaReportTopic, logger)
	verifiedWriter := kafkaadapter.NewWriter(cfg, logger)
	verifier := pipeline.NewReportVerifier(clusterer, domain.NewVeracityGate(cfg.TrustedSources), verifiedWriter, logger, metrics)
	reports := pipeline.New(pipeline.StageReports, reportReader, pipeline.DecodeReport, verifier, logger, metrics, cfg.BatchSize)

	// Candidate intake stage.
	candidateReader := kafkaadapter.NewReader(cfg, cfg.KafkaCandidateTopic, logger)
	candidateLoader := pipeline.NewCandidateLoader(candidates, metrics)
	intake := pipeline.New(pipeline.StageCandidates, candidateReader, pipeline.DecodeCandidate, candidateLoader, logger, metrics, cfg.BatchSize)

	// Scheduled aggregation.
	aggregator, err := domain.NewHotspotAggregator(hotspots, domain.AggregatorOptions{
		MergeRadiusKM: cfg.SpatialRadiusKM,
		BoxDegrees:    cfg.HotspotBoxDegrees,
		Workers:       cfg.AggregateWorkers,
	}, logger)
	if err != nil {
		return fmt.Errorf("hotspot aggregator: %w", err)
	}
	aggregation, err := pipeline.NewAggregation(candidates, resolver, aggregator, cfg.SpatialRadiusKM, 0, logger, metrics)
	if err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	scheduler, err := pipeline.NewScheduler(cfg.AggregateSchedule, aggregation, logger)
	if err != nil {
		return err
	}

	ready := append(httpadapter.Checks{reports, intake}, storeCheck...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start both stages and the aggregation schedule.
	var wg sync.WaitGroup
	for name, loop := range map[string]func(context.Context) error{
		pipeline.StageReports:    reports.Run,
		pipeline.StageCandidates: intake.Run,
		"aggregation":            scheduler.Run,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop(ctx); err != nil {
				logger.Error("loop error", "loop", name, "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	loopsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(loopsDone)
	}()
	select {
	case <-loopsDone:
	case <-shutdownCtx.Done():
		logger.Warn("loops did not stop before shutdown timeout")
	}

	if err := reportReader.Close(); err != nil {
		logger.Error("kafka report reader close error", "error", err)
	}
	if err := candidateReader.Close(); err != nil {
		logger.Error("kafka candidate reader close error", "error", err)
	}
	if err := verifiedWriter.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newGeocoder(cfg *config.Config) (domain.Geocoder, error) {
	switch cfg.Geocoder {
	case config.GeocoderMapbox:
		return mapbox.NewClient(cfg.MapboxToken, cfg.GeocodeTimeout), nil
	case config.GeocoderGoogle:
		client, err := googlemaps.NewClient(cfg.GoogleMapsAPIKey, cfg.GeocodeTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout), nil
	}
}

// newStores returns the hotspot and candidate stores for the configured
// backend, plus a readiness check when the backend is remote.
func newStores(cfg *config.Config, logger *slog.Logger) (domain.HotspotStore, domain.CandidateStore, httpadapter.Checks, error) {
	if cfg.StoreBackend == config.StoreElasticsearch {
		es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchHotspotIndex, cfg.ElasticsearchCandidateIndex, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("using elasticsearch store", "addr", cfg.ElasticsearchAddr)
		return es, es, httpadapter.Checks{es}, nil
	}
	logger.Warn("using in-memory store; hotspots are lost on restart")
	return memory.NewHotspotStore(), memory.NewCandidateStore(), nil, nil
}
