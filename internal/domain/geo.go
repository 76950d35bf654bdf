package domain

import "math"

// EarthRadiusKM is the mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Box is a latitude/longitude bounding box, inclusive on all edges.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoxAround returns the box extending deg degrees on each side of c.
// Longitude degrees shrink toward the poles, so the box under-covers at high
// latitudes; callers refine with Haversine.
func BoxAround(c Coordinate, deg float64) Box {
	return Box{
		MinLat: c.Lat - deg,
		MaxLat: c.Lat + deg,
		MinLon: c.Lon - deg,
		MaxLon: c.Lon + deg,
	}
}

// Contains reports whether c falls inside the box.
func (b Box) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}
