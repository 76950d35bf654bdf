// Package nominatim geocodes free-form location text with an OpenStreetMap
// Nominatim search endpoint.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

// Client implements domain.Geocoder against a Nominatim /search endpoint.
type Client struct {
	searchURL  string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a Nominatim client. Nominatim's usage policy requires an
// identifying User-Agent on every request.
func NewClient(searchURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		searchURL:  searchURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Geocode returns the top search hit for query, or an empty result when
// Nominatim has none.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("nominatim error: status %d: %s", resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		return domain.GeocodingResult{}, nil
	}
	return places[0].result()
}

// place is one Nominatim search hit. Coordinates arrive as strings.
type place struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (p place) result() (domain.GeocodingResult, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	return domain.GeocodingResult{
		Lat:              lat,
		Lon:              lon,
		FormattedAddress: p.DisplayName,
		Confidence:       p.Importance,
	}, nil
}
