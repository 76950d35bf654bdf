package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	Confidence       float64 // 0.0–1.0 provider confidence score, 0 when the provider gives none
}

// Found reports whether the provider matched the query.
func (r GeocodingResult) Found() bool {
	return r.FormattedAddress != "" || r.Lat != 0 || r.Lon != 0
}

// Coordinate returns the matched position.
func (r GeocodingResult) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon}
}

// Geocoder converts free-form location text to coordinates. An empty result
// with a nil error means the provider found no match.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (GeocodingResult, error)
}
