// Command replay runs report verification and hotspot aggregation over JSON
// files instead of Kafka, using in-memory stores, and prints the result.
//
// Usage:
//
//	go run ./cmd/replay \
//	  -reports testdata/reports.json \
//	  -candidates testdata/candidates.json \
//	  -gazetteer testdata/gazetteer.json \
//	  -now 2025-09-14T18:00:00Z
//
// Without -gazetteer, candidate locations are resolved with Nominatim at one
// request per second.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/geocode"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/memory"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/observability"
	"github.com/couchcryptid/disaster-hotspot-etl/internal/pipeline"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

// output is what replay prints.
type output struct {
	Verified []domain.Report           `json:"verified"`
	Hotspots []domain.CompositeHotspot `json:"hotspots"`
	Pass     *pipeline.PassSummary     `json:"pass,omitempty"`
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	reportsPath := fs.String("reports", "", "JSON array of reports to verify")
	candidatesPath := fs.String("candidates", "", "JSON array of hotspot candidates to aggregate")
	gazetteerPath := fs.String("gazetteer", "", "JSON object mapping location text to {\"lat\",\"lon\"}")
	now := fs.String("now", "", "RFC3339 time used for hotspot timestamps")
	trusted := fs.String("trusted", strings.Join(domain.DefaultTrustedSources, ","), "comma separated trusted sources")
	radius := fs.Float64("radius-km", domain.DefaultSpatialRadiusKM, "spatial clustering and merge radius")
	verbose := fs.Bool("v", false, "log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *reportsPath == "" && *candidatesPath == "" {
		fs.Usage()
		return fmt.Errorf("at least one of -reports or -candidates is required")
	}

	if *now != "" {
		t, err := time.Parse(time.RFC3339, *now)
		if err != nil {
			return fmt.Errorf("invalid -now: %w", err)
		}
		domain.SetClock(clockwork.NewFakeClockAt(t))
		defer domain.SetClock(nil)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewMetricsForTesting()

	out := output{Verified: []domain.Report{}, Hotspots: []domain.CompositeHotspot{}}

	if *reportsPath != "" {
		var reports []domain.Report
		if err := readJSON(*reportsPath, &reports); err != nil {
			return err
		}
		for i, r := range reports {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("report %d: %w", i, err)
			}
		}
		clusterer, err := domain.NewReportClusterer(domain.DefaultClusterOptions())
		if err != nil {
			return err
		}
		gate := domain.NewVeracityGate(strings.Split(*trusted, ","))
		out.Verified = pipeline.NewReportVerifier(clusterer, gate, nil, logger, metrics).Verify(reports)
	}

	if *candidatesPath != "" {
		var candidates []domain.Candidate
		if err := readJSON(*candidatesPath, &candidates); err != nil {
			return err
		}
		for i, c := range candidates {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("candidate %d: %w", i, err)
			}
		}

		resolver, err := newResolver(*gazetteerPath, logger, metrics)
		if err != nil {
			return err
		}

		hotspots := memory.NewHotspotStore()
		store := memory.NewCandidateStore()
		if err := pipeline.NewCandidateLoader(store, metrics).LoadBatch(ctx, candidates); err != nil {
			return err
		}
		opts := domain.DefaultAggregatorOptions()
		opts.MergeRadiusKM = *radius
		aggregator, err := domain.NewHotspotAggregator(hotspots, opts, logger)
		if err != nil {
			return err
		}
		aggregation, err := pipeline.NewAggregation(store, resolver, aggregator, *radius, 0, logger, metrics)
		if err != nil {
			return err
		}
		sum, err := aggregation.RunPass(ctx)
		if err != nil {
			return err
		}
		out.Pass = &sum
		out.Hotspots = hotspots.Hotspots()
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newResolver(gazetteerPath string, logger *slog.Logger, metrics *observability.Metrics) (pipeline.Resolver, error) {
	if gazetteerPath == "" {
		client := nominatim.NewClient(nominatimURL, "disaster-hotspot-replay/1.0", 10*time.Second)
		return geocode.New(client, geocode.DefaultOptions(), logger, metrics)
	}
	var entries map[string]domain.Coordinate
	if err := readJSON(gazetteerPath, &entries); err != nil {
		return nil, err
	}
	g := make(gazetteer, len(entries))
	for k, v := range entries {
		g[normalize(k)] = v
	}
	return g, nil
}

// gazetteer resolves locations from a fixed table.
type gazetteer map[string]domain.Coordinate

func (g gazetteer) Resolve(_ context.Context, location string) (domain.Coordinate, bool) {
	c, ok := g[normalize(location)]
	return c, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
