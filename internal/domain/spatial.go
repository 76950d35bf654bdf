package domain

// DefaultSpatialRadiusKM is the linkage distance between neighbouring points.
const DefaultSpatialRadiusKM = 5.0

// ClusterPoints groups points by single linkage: two points share a group
// when a chain of points, each within radiusKM of the next, connects them.
// Groups are ordered by their earliest member and keep input order within.
func ClusterPoints(points []GeoPoint, radiusKM float64) [][]GeoPoint {
	visited := make([]bool, len(points))
	var groups [][]GeoPoint

	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true

		members := []int{i}
		queue := []int{i}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for j := range points {
				if visited[j] {
					continue
				}
				if Haversine(points[cur].Coordinate, points[j].Coordinate) <= radiusKM {
					visited[j] = true
					members = append(members, j)
					queue = append(queue, j)
				}
			}
		}

		groups = append(groups, collect(points, members))
	}
	return groups
}

// collect returns the indexed points in ascending index order.
func collect(points []GeoPoint, idx []int) []GeoPoint {
	in := make([]bool, len(points))
	for _, i := range idx {
		in[i] = true
	}
	out := make([]GeoPoint, 0, len(idx))
	for i, ok := range in {
		if ok {
			out = append(out, points[i])
		}
	}
	return out
}
