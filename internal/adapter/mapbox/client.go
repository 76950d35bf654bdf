// Package mapbox geocodes free-form location text with the Mapbox Geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/domain"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
	}
}

// Geocode returns the best match for query, or an empty result when Mapbox
// has none.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("mapbox geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.GeocodingResult{}, nil
	}

	f := mapboxResp.Features[0]
	if len(f.Center) != 2 {
		return domain.GeocodingResult{}, nil
	}
	// Mapbox uses lon,lat order.
	return domain.GeocodingResult{
		Lon:              f.Center[0],
		Lat:              f.Center[1],
		FormattedAddress: f.PlaceName,
		Confidence:       f.Relevance,
	}, nil
}

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
