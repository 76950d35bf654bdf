package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(id string, lat, lon float64) GeoPoint {
	c := Candidate{ID: id, ReportID: id, Kind: PointHuman, Human: &HumanSignal{}}
	return NewGeoPoint(c, Coordinate{Lat: lat, Lon: lon})
}

func TestHaversine(t *testing.T) {
	paris := Coordinate{Lat: 48.8566, Lon: 2.3522}
	london := Coordinate{Lat: 51.5074, Lon: -0.1278}

	assert.InDelta(t, 343.5, Haversine(paris, london), 1.0)
	assert.InDelta(t, Haversine(paris, london), Haversine(london, paris), 1e-9)
	assert.Zero(t, Haversine(paris, paris))
}

func TestBoxAround(t *testing.T) {
	box := BoxAround(Coordinate{Lat: 10, Lon: 20}, 0.05)

	assert.True(t, box.Contains(Coordinate{Lat: 10.049, Lon: 19.951}))
	assert.False(t, box.Contains(Coordinate{Lat: 10.051, Lon: 20}))
}

func TestClusterPoints_NewYorkScenario(t *testing.T) {
	points := []GeoPoint{
		point("a", 40.7128, -74.0060),
		point("b", 40.7130, -74.0062),
	}

	groups := ClusterPoints(points, DefaultSpatialRadiusKM)

	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestClusterPoints_IsolatedPointIsSingleton(t *testing.T) {
	points := []GeoPoint{
		point("nyc", 40.7128, -74.0060),
		point("boston", 42.3601, -71.0589),
		point("nyc-2", 40.7200, -74.0000),
	}

	groups := ClusterPoints(points, DefaultSpatialRadiusKM)

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"nyc", "nyc-2"}, pointIDs(groups[0]))
	assert.Equal(t, []string{"boston"}, pointIDs(groups[1]))
}

func TestClusterPoints_Chaining(t *testing.T) {
	// Each step is ~4.4 km north; the ends are ~13 km apart.
	points := []GeoPoint{
		point("p3", 40.12, -74.0),
		point("p0", 40.00, -74.0),
		point("p2", 40.08, -74.0),
		point("p1", 40.04, -74.0),
	}

	groups := ClusterPoints(points, DefaultSpatialRadiusKM)

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"p3", "p0", "p2", "p1"}, pointIDs(groups[0]))
}

func TestClusterPoints_Deterministic(t *testing.T) {
	var points []GeoPoint
	for i := range 30 {
		points = append(points, point(fmt.Sprintf("p%d", i), 40+float64(i%5)*0.2, -74+float64(i%3)*0.01))
	}

	first := ClusterPoints(points, DefaultSpatialRadiusKM)
	for range 5 {
		again := ClusterPoints(points, DefaultSpatialRadiusKM)
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, pointIDs(first[i]), pointIDs(again[i]))
		}
	}
}

func TestClusterPoints_Empty(t *testing.T) {
	assert.Empty(t, ClusterPoints(nil, DefaultSpatialRadiusKM))
}

func pointIDs(g []GeoPoint) []string {
	out := make([]string, len(g))
	for i, p := range g {
		out[i] = p.Candidate.ID
	}
	return out
}
