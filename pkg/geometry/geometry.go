// Copyright 2025 Certen Protocol
//
// Geometry Backend
// Executes spatial predicates and measurements over GeoJSON geometry pairs.
// Coordinates are taken as WGS-84 and distances/areas are geodesic.

package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/certen/astral-location-services/pkg/geojson"
)

// earthRadiusMeters is the mean Earth radius used for the spherical-excess
// area formula. orb/geo's distance functions use their own radius constant.
const earthRadiusMeters = 6371008.8

// infiniteSentinel is returned for distances with no meaningful finite
// value; callers clamp it to 2^32-1 at the signing boundary.
var infiniteSentinel = math.Inf(1)

// Backend executes the six spatial operations the compute routes expose.
type Backend struct{}

// NewBackend constructs a geometry backend. It is stateless and safe to
// share across goroutines.
func NewBackend() *Backend {
	return &Backend{}
}

// Distance returns the geodesic distance in metres between two geometries.
// For Point-Point pairs this is the great-circle distance. For any other
// combination it is the minimum distance between either geometry's
// vertices, which is exact for point-to-point and a close approximation
// otherwise; the request-size limit bounds how costly this gets.
func (b *Backend) Distance(g1, g2 *geojson.Geometry) (float64, error) {
	if p1, ok := asPoint(g1); ok {
		if p2, ok := asPoint(g2); ok {
			return geo.Distance(p1, p2), nil
		}
	}

	v1, err := vertices(g1)
	if err != nil {
		return 0, fmt.Errorf("invalid input: %w", err)
	}
	v2, err := vertices(g2)
	if err != nil {
		return 0, fmt.Errorf("invalid input: %w", err)
	}
	if len(v1) == 0 || len(v2) == 0 {
		return infiniteSentinel, nil
	}

	min := math.Inf(1)
	for _, a := range v1 {
		for _, c := range v2 {
			d := geo.Distance(a, c)
			if d < min {
				min = d
			}
		}
	}
	return min, nil
}

// Length returns the geodesic length in metres of a LineString or
// MultiLineString. Any other geometry type is invalid input.
func (b *Backend) Length(g *geojson.Geometry) (float64, error) {
	if g.Type != geojson.TypeLineString && g.Type != geojson.TypeMultiLineString {
		if g.Type == geojson.TypeGeometryCollection {
			// fall through to lineStrings, which recurses and may find none
		} else {
			return 0, fmt.Errorf("invalid input: length requires LineString or MultiLineString, got %s", g.Type)
		}
	}
	lines, err := lineStrings(g)
	if err != nil {
		return 0, fmt.Errorf("invalid input: %w", err)
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("invalid input: length requires LineString or MultiLineString, got %s", g.Type)
	}

	var total float64
	for _, ls := range lines {
		total += lineLength(ls)
	}
	return total, nil
}

func lineLength(ls orb.LineString) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		total += geo.Distance(ls[i-1], ls[i])
	}
	return total
}

// Area returns the geodesic area in square metres of a Polygon or
// MultiPolygon, holes subtracted from the outer ring.
func (b *Backend) Area(g *geojson.Geometry) (float64, error) {
	if g.Type != geojson.TypePolygon && g.Type != geojson.TypeMultiPolygon && g.Type != geojson.TypeGeometryCollection {
		return 0, fmt.Errorf("invalid input: area requires Polygon or MultiPolygon, got %s", g.Type)
	}
	polys, err := polygons(g)
	if err != nil {
		return 0, fmt.Errorf("invalid input: %w", err)
	}
	if len(polys) == 0 {
		return 0, fmt.Errorf("invalid input: area requires Polygon or MultiPolygon, got %s", g.Type)
	}

	var total float64
	for _, poly := range polys {
		total += polygonArea(poly)
	}
	return total, nil
}

// polygonArea uses the spherical-excess ring-area formula (Chamberlain &
// Duquette, "Some Algorithms for Polygons on a Sphere", JPL 2007): the
// outer ring contributes its absolute area, each hole subtracts its own.
func polygonArea(poly orb.Polygon) float64 {
	var total float64
	for i, ring := range poly {
		a := math.Abs(ringArea(ring))
		if i == 0 {
			total += a
		} else {
			total -= a
		}
	}
	if total < 0 {
		total = 0
	}
	return total
}

func ringArea(ring orb.Ring) float64 {
	n := len(ring)
	if n < 4 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		p1 := ring[i]
		p2 := ring[(i+1)%n]
		p3 := ring[(i+2)%n]
		total += (toRad(p3[0]) - toRad(p1[0])) * math.Sin(toRad(p2[1]))
	}
	return total * earthRadiusMeters * earthRadiusMeters / 2
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Contains reports whether every vertex of the inner geometry lies inside
// one of the outer geometry's polygons. The edges between inner vertices
// are not tested, so an inner line or ring whose vertices all lie inside a
// concave outer polygon counts as contained even where an edge leaves it.
// A point exactly on a horizontal ring edge counts as contained; other
// boundary points fall on whichever side the ray-casting count gives.
func (b *Backend) Contains(outer, inner *geojson.Geometry) (bool, error) {
	polys, err := polygons(outer)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}
	if len(polys) == 0 {
		return false, fmt.Errorf("invalid input: contains requires a Polygon or MultiPolygon outer geometry")
	}

	innerPts, err := vertices(inner)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}
	if len(innerPts) == 0 {
		return false, fmt.Errorf("invalid input: containee geometry has no coordinates")
	}

	for _, p := range innerPts {
		if !pointInAnyPolygon(p, polys) {
			return false, nil
		}
	}
	return true, nil
}

func pointInAnyPolygon(pt orb.Point, polys []orb.Polygon) bool {
	for _, poly := range polys {
		if pointInPolygon(pt, poly) {
			return true
		}
	}
	return false
}

// pointInPolygon implements the standard ray-casting test against the
// outer ring, subtracting any hole the point falls inside.
func pointInPolygon(pt orb.Point, poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	if !rayCast(pt, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if rayCast(pt, hole) {
			return false
		}
	}
	return true
}

func rayCast(pt orb.Point, ring orb.Ring) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > pt[1]) != (yj > pt[1]) {
			xIntersect := (xj-xi)*(pt[1]-yi)/(yj-yi) + xi
			if pt[0] < xIntersect {
				inside = !inside
			}
		} else if yi == pt[1] && yi == yj && ((xi <= pt[0] && pt[0] <= xj) || (xj <= pt[0] && pt[0] <= xi)) {
			return true
		}
	}
	return inside
}

// Within reports whether the geodesic distance between g and target is at
// most radius metres. Radius must be positive.
func (b *Backend) Within(g, target *geojson.Geometry, radius float64) (bool, error) {
	if radius <= 0 {
		return false, fmt.Errorf("invalid input: within requires radius > 0")
	}
	d, err := b.Distance(g, target)
	if err != nil {
		return false, err
	}
	return d <= radius, nil
}

// Intersects reports whether two geometries share any point.
func (b *Backend) Intersects(g1, g2 *geojson.Geometry) (bool, error) {
	polys1, err := polygons(g1)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}
	polys2, err := polygons(g2)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}
	v1, err := vertices(g1)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}
	v2, err := vertices(g2)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}

	if len(polys1) > 0 {
		for _, p := range v2 {
			if pointInAnyPolygon(p, polys1) {
				return true, nil
			}
		}
	}
	if len(polys2) > 0 {
		for _, p := range v1 {
			if pointInAnyPolygon(p, polys2) {
				return true, nil
			}
		}
	}

	lines1, err := lineStrings(g1)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}
	lines2, err := lineStrings(g2)
	if err != nil {
		return false, fmt.Errorf("invalid input: %w", err)
	}
	// Polygon rings and single vertices join the segment test, so a line
	// crossing a polygon edge or a point lying on a segment is found too.
	addEdges := func(lines []orb.LineString, polys []orb.Polygon, pts []orb.Point) []orb.LineString {
		for _, poly := range polys {
			for _, r := range poly {
				lines = append(lines, orb.LineString(r))
			}
		}
		for _, p := range pts {
			lines = append(lines, orb.LineString{p, p})
		}
		return lines
	}
	lines1 = addEdges(lines1, polys1, v1)
	lines2 = addEdges(lines2, polys2, v2)
	for _, la := range lines1 {
		for _, lb := range lines2 {
			if lineStringsIntersect(la, lb) {
				return true, nil
			}
		}
	}

	// Fall back to exact coincidence for point/point or point/line pairs
	// that reached here without a polygon or crossing line segment.
	for _, a := range v1 {
		for _, c := range v2 {
			if a == c {
				return true, nil
			}
		}
	}
	return false, nil
}

func lineStringsIntersect(a, b orb.LineString) bool {
	for i := 1; i < len(a); i++ {
		for j := 1; j < len(b); j++ {
			if segmentsIntersect(a[i-1], a[i], b[j-1], b[j]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p4, p3, p1)
	d2 := cross(p4, p3, p2)
	d3 := cross(p2, p1, p3)
	d4 := cross(p2, p1, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && onSegment(p4, p3, p1) {
		return true
	}
	if d2 == 0 && onSegment(p4, p3, p2) {
		return true
	}
	if d3 == 0 && onSegment(p2, p1, p3) {
		return true
	}
	if d4 == 0 && onSegment(p2, p1, p4) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}
