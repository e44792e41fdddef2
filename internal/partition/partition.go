// Package partition turns a set of sensor nodes into Voronoi sector cells
// with an adjacency graph.
//
// Cell polygons are computed exactly by half-plane clipping: each cell starts
// as the padded bounding rectangle in a local planar frame and is cut down by
// the perpendicular bisector against every other node. Adjacency comes from
// the Delaunay triangulation dual, which for small node sets (tens, not
// thousands) keeps the whole computation well under a millisecond.
package partition

import (
	"fmt"
	"math"
	"sort"

	"github.com/fogleman/delaunay"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
	"github.com/couchcryptid/cloudburst-engine/internal/geo"
)

const (
	// BoundsPaddingKM is added on every side when bounds are derived from
	// the nodes rather than supplied explicitly.
	BoundsPaddingKM = 15.0

	// MinCellRadiusKM and MaxCellRadiusKM clamp every cell vertex's distance
	// from its node, bounding sector size regardless of node density.
	MinCellRadiusKM = 2.0
	MaxCellRadiusKM = 10.0

	// RegenerationDistanceKM is how far a node must move before the whole
	// partition is recomputed (100 m).
	RegenerationDistanceKM = 0.1
)

// DefaultBounds is the placeholder region returned for an empty node set,
// covering the Indian subcontinent where the sensor network operates.
var DefaultBounds = geo.Bounds{MinLat: 6.0, MaxLat: 36.0, MinLng: 68.0, MaxLng: 98.0}

// Cell is one node's Voronoi region after clipping.
type Cell struct {
	ID       string
	NodeID   string
	Centroid domain.Coordinates
	// Polygon is a closed ring: the last vertex repeats the first.
	Polygon   []domain.Coordinates
	Neighbors []string
}

// Result is a complete partition of the monitored region.
type Result struct {
	Cells  []Cell
	Bounds geo.Bounds
}

// SectorID returns the stable sector ID for a node.
func SectorID(nodeID string) string {
	return "sector-" + nodeID
}

// Partition computes one Voronoi cell per node with valid coordinates.
// Nodes with invalid or missing coordinates are filtered, not rejected.
// If explicitBounds is nil the region is derived from the nodes and padded
// by BoundsPaddingKM. An empty (or fully filtered) node set yields an empty
// result over DefaultBounds.
func Partition(nodes []domain.SensorNode, explicitBounds *geo.Bounds) Result {
	valid := make([]domain.SensorNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Coordinates.Valid() {
			valid = append(valid, n)
		}
	}

	if len(valid) == 0 {
		bounds := DefaultBounds
		if explicitBounds != nil {
			bounds = *explicitBounds
		}
		return Result{Bounds: bounds}
	}

	var bounds geo.Bounds
	if explicitBounds != nil {
		bounds = *explicitBounds
	} else {
		lats := make([]float64, len(valid))
		lngs := make([]float64, len(valid))
		for i, n := range valid {
			lats[i] = n.Coordinates.Lat
			lngs[i] = n.Coordinates.Lng
		}
		raw, _ := geo.BoundsFromCoordinates(lats, lngs)
		bounds = geo.PadBounds(raw, BoundsPaddingKM)
	}

	centerLat := bounds.CenterLat()

	// Project every node and the bounding rectangle into a local planar frame.
	points := make([]planarPoint, len(valid))
	for i, n := range valid {
		x, y := geo.ToProjected(n.Coordinates.Lat, n.Coordinates.Lng, centerLat)
		points[i] = planarPoint{X: x, Y: y}
	}
	rect := projectedRect(bounds, centerLat)

	neighbors := adjacency(points)

	cells := make([]Cell, len(valid))
	for i, n := range valid {
		poly := voronoiCell(i, points, rect)
		ring := make([]domain.Coordinates, 0, len(poly)+1)
		for _, p := range poly {
			lat, lng := geo.FromProjected(p.X, p.Y, centerLat)
			ring = append(ring, clampVertexRadius(n.Coordinates, domain.Coordinates{Lat: lat, Lng: lng}))
		}
		if len(ring) > 0 {
			ring = append(ring, ring[0])
		}

		ids := make([]string, 0, len(neighbors[i]))
		for _, j := range neighbors[i] {
			ids = append(ids, SectorID(valid[j].ID))
		}
		sort.Strings(ids)

		cells[i] = Cell{
			ID:        SectorID(n.ID),
			NodeID:    n.ID,
			Centroid:  n.Coordinates,
			Polygon:   ring,
			Neighbors: ids,
		}
	}

	return Result{Cells: cells, Bounds: bounds}
}

// NeedsRegeneration reports whether the partition derived from prev is stale
// for the current node set: node count changed, node ID set changed, or any
// node moved more than RegenerationDistanceKM. The returned reason is empty
// when no regeneration is needed.
func NeedsRegeneration(prev, current []domain.SensorNode) (bool, string) {
	if len(prev) != len(current) {
		return true, fmt.Sprintf("node count changed: %d -> %d", len(prev), len(current))
	}

	prevByID := make(map[string]domain.SensorNode, len(prev))
	for _, n := range prev {
		prevByID[n.ID] = n
	}
	for _, n := range current {
		old, ok := prevByID[n.ID]
		if !ok {
			return true, fmt.Sprintf("node %s is new", n.ID)
		}
		moved := geo.HaversineDistance(
			old.Coordinates.Lat, old.Coordinates.Lng,
			n.Coordinates.Lat, n.Coordinates.Lng,
		)
		if moved > RegenerationDistanceKM {
			return true, fmt.Sprintf("node %s moved %.0f m", n.ID, moved*1000)
		}
	}
	return false, ""
}

// clampVertexRadius enforces the cell-size invariant: every vertex sits
// between MinCellRadiusKM and MaxCellRadiusKM from its node. Out-of-range
// vertices are moved along the ray from the node to the vertex.
func clampVertexRadius(node, vertex domain.Coordinates) domain.Coordinates {
	dist := geo.HaversineDistance(node.Lat, node.Lng, vertex.Lat, vertex.Lng)
	if dist >= MinCellRadiusKM && dist <= MaxCellRadiusKM {
		return vertex
	}

	bearing := 0.0
	if dist > 1e-9 {
		bearing = geo.Bearing(node.Lat, node.Lng, vertex.Lat, vertex.Lng)
	}
	target := MinCellRadiusKM
	if dist > MaxCellRadiusKM {
		target = MaxCellRadiusKM
	}
	lat, lng := geo.Destination(node.Lat, node.Lng, bearing, target)
	return domain.Coordinates{Lat: lat, Lng: lng}
}

// adjacency returns, per point index, the indices sharing a Delaunay edge.
// Degenerate inputs (fewer than three points, or all collinear) fall back to
// all-pairs adjacency, which is exact for n <= 2 and safe for collinear sets.
func adjacency(points []planarPoint) [][]int {
	sets := make([]map[int]struct{}, len(points))
	for i := range sets {
		sets[i] = make(map[int]struct{})
	}

	if tri, err := triangulate(points); err == nil {
		for e := 0; e < len(tri.Triangles); e++ {
			a := tri.Triangles[e]
			b := tri.Triangles[nextHalfedge(e)]
			sets[a][b] = struct{}{}
			sets[b][a] = struct{}{}
		}
	} else {
		for i := range points {
			for j := range points {
				if i != j {
					sets[i][j] = struct{}{}
				}
			}
		}
	}

	out := make([][]int, len(points))
	for i, set := range sets {
		for j := range set {
			out[i] = append(out[i], j)
		}
		sort.Ints(out[i])
	}
	return out
}

func triangulate(points []planarPoint) (*delaunay.Triangulation, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("need at least 3 points, have %d", len(points))
	}
	dp := make([]delaunay.Point, len(points))
	for i, p := range points {
		dp[i] = delaunay.Point{X: p.X, Y: p.Y}
	}
	return delaunay.Triangulate(dp)
}

// nextHalfedge returns the next halfedge index within the same triangle.
func nextHalfedge(e int) int {
	if e%3 == 2 {
		return e - 2
	}
	return e + 1
}

// planarPoint is a projected coordinate in kilometers.
type planarPoint struct {
	X, Y float64
}

// projectedRect returns the bounds rectangle in the planar frame, counter-clockwise.
func projectedRect(b geo.Bounds, centerLat float64) []planarPoint {
	x1, y1 := geo.ToProjected(b.MinLat, b.MinLng, centerLat)
	x2, y2 := geo.ToProjected(b.MaxLat, b.MaxLng, centerLat)
	return []planarPoint{
		{X: x1, Y: y1},
		{X: x2, Y: y1},
		{X: x2, Y: y2},
		{X: x1, Y: y2},
	}
}

// voronoiCell computes point i's Voronoi region clipped to rect by cutting
// the rectangle with the perpendicular bisector against every other point.
func voronoiCell(i int, points []planarPoint, rect []planarPoint) []planarPoint {
	poly := make([]planarPoint, len(rect))
	copy(poly, rect)

	for j, other := range points {
		if j == i || len(poly) == 0 {
			continue
		}
		poly = clipHalfPlane(poly, points[i], other)
	}
	return poly
}

// clipHalfPlane keeps the part of poly closer to a than to b
// (Sutherland-Hodgman against the perpendicular bisector of a and b).
func clipHalfPlane(poly []planarPoint, a, b planarPoint) []planarPoint {
	mid := planarPoint{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	nx, ny := b.X-a.X, b.Y-a.Y

	// signed distance along the bisector normal; <= 0 means "closer to a".
	side := func(p planarPoint) float64 {
		return (p.X-mid.X)*nx + (p.Y-mid.Y)*ny
	}

	out := make([]planarPoint, 0, len(poly)+1)
	for k := 0; k < len(poly); k++ {
		cur := poly[k]
		next := poly[(k+1)%len(poly)]
		curSide, nextSide := side(cur), side(next)

		if curSide <= 0 {
			out = append(out, cur)
		}
		if (curSide < 0 && nextSide > 0) || (curSide > 0 && nextSide < 0) {
			t := curSide / (curSide - nextSide)
			if !math.IsNaN(t) {
				out = append(out, planarPoint{
					X: cur.X + t*(next.X-cur.X),
					Y: cur.Y + t*(next.Y-cur.Y),
				})
			}
		}
	}
	return out
}
