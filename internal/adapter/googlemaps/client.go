// Package googlemaps geocodes free-form location text with the Google Maps
// Geocoding API.
package googlemaps

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

// Client implements domain.Geocoder on top of the Google Maps client.
type Client struct {
	maps *maps.Client
}

// Option customizes the underlying maps client.
type Option = maps.ClientOption

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return maps.WithBaseURL(u)
}

// NewClient creates a Google Maps geocoding client for apiKey.
func NewClient(apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	opts = append([]Option{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: timeout}),
	}, opts...)
	c, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	return &Client{maps: c}, nil
}

// Geocode returns the first match for query, or an empty result when Google
// has none.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	results, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return domain.GeocodingResult{}, nil
		}
		return domain.GeocodingResult{}, fmt.Errorf("google geocode request: %w", err)
	}
	if len(results) == 0 {
		return domain.GeocodingResult{}, nil
	}

	r := results[0]
	confidence := 1.0
	if r.PartialMatch {
		confidence = 0.5
	}
	return domain.GeocodingResult{
		Lat:              r.Geometry.Location.Lat,
		Lon:              r.Geometry.Location.Lng,
		FormattedAddress: r.FormattedAddress,
		Confidence:       confidence,
	}, nil
}
