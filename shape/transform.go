package shape

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	return degrees
}

// Centroid returns the area-weighted centroid of a geometry.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

// projectedCentroid is the area-weighted centroid measured in the local meter
// frame instead of raw degree space. Away from the equator a degree-space
// centroid drifts when the shape rotates (longitude degrees shrink with
// latitude), which would give a rotation and its inverse different pivots;
// the meter-frame centroid stays put under rigid motion.
func projectedCentroid(g orb.Geometry) orb.Point {
	pr := NewProjector(Centroid(g))
	planarized := mapVertices(g, func(p orb.Point) orb.Point {
		x, y := pr.Project(p)
		return orb.Point{x, y}
	})
	c, _ := planar.CentroidArea(planarized)
	return pr.Unproject(c[0], c[1])
}

// Rotate returns geometry rotated by angleDegrees (counterclockwise) about
// the area-weighted centroid of basis. Every vertex is projected into the
// local meter frame at that centroid, run through the rotation matrix
// [cos -sin; sin cos], and unprojected, so the shape keeps its physical
// proportions at any latitude.
//
// An angle of 0 returns a structurally identical copy. The input is never
// mutated.
func Rotate(g orb.Geometry, angleDegrees float64, basis orb.Geometry) (orb.Geometry, error) {
	if err := CheckFinite(g); err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}
	if NormalizeAngle(angleDegrees) == 0 {
		return orb.Clone(g), nil
	}
	if basis == nil {
		basis = g
	}

	pr := NewProjector(projectedCentroid(basis))
	theta := angleDegrees * degToRad
	cos, sin := math.Cos(theta), math.Sin(theta)

	return mapVertices(g, func(p orb.Point) orb.Point {
		x, y := pr.Project(p)
		return pr.Unproject(cos*x-sin*y, sin*x+cos*y)
	}), nil
}

// TranslateTowardTarget is the authoritative placement operation: it moves
// geometry so its area-weighted centroid lands on target. Each vertex is
// measured as a meter offset from the centroid in the local frame there, then
// replanted at the same offset in a local frame centered on the target.
// Measuring and replanting in separate frames keeps the shape's physical
// proportions across arbitrarily long moves, where a single projected
// displacement would stretch the side of the shape far from the source frame.
func TranslateTowardTarget(g orb.Geometry, target orb.Point) (orb.Geometry, error) {
	if err := CheckFinite(g); err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	if !finite(target) {
		return nil, fmt.Errorf("translate: %w: non-finite target", ErrInvalidGeometry)
	}

	src := NewProjector(Centroid(g))
	if src.Reference() == target {
		return orb.Clone(g), nil
	}
	dst := NewProjector(target)

	return mapVertices(g, func(p orb.Point) orb.Point {
		return dst.Unproject(src.Project(p))
	}), nil
}

// DragTransform is the cheap preview path for continuous pointer movement.
// Per ring: latitude shifts by latDelta; each vertex's longitude offset from
// the ring centroid scales by cos(startLat)/cos(newLat) before lngDelta is
// added, which roughly preserves apparent width as the ring changes latitude.
//
// This is an approximation, safe to run on every pointer move; a gesture
// commit supersedes it with TranslateTowardTarget or Rotate. Zero-vertex
// rings pass through unchanged.
func DragTransform(g orb.Geometry, latDelta, lngDelta float64) (orb.Geometry, error) {
	if err := CheckFinite(g); err != nil {
		return nil, fmt.Errorf("drag: %w", err)
	}
	if math.IsNaN(latDelta) || math.IsInf(latDelta, 0) || math.IsNaN(lngDelta) || math.IsInf(lngDelta, 0) {
		return nil, fmt.Errorf("drag: %w: non-finite delta", ErrInvalidGeometry)
	}

	switch geom := g.(type) {
	case orb.Polygon:
		return dragPolygon(geom, latDelta, lngDelta), nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			out[i] = dragPolygon(poly, latDelta, lngDelta)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("drag: %w: unsupported type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

func dragPolygon(poly orb.Polygon, latDelta, lngDelta float64) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		out[i] = dragRing(ring, latDelta, lngDelta)
	}
	return out
}

func dragRing(ring orb.Ring, latDelta, lngDelta float64) orb.Ring {
	if len(ring) == 0 {
		return orb.Ring{}
	}

	centroidLng, startLat := ringMean(ring)
	newLat := startLat + latDelta

	// Widen or narrow longitude offsets to compensate for the change in
	// meters-per-degree-longitude between the old and new latitude.
	scale := 1.0
	if c := math.Cos(clampLat(newLat) * degToRad); c > 1e-12 {
		scale = math.Cos(clampLat(startLat)*degToRad) / c
	}

	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		out[i] = orb.Point{
			centroidLng + (p[0]-centroidLng)*scale + lngDelta,
			p[1] + latDelta,
		}
	}
	return out
}

// ringMean is the plain vertex average, cheap enough for the per-move drag
// path where the area-weighted centroid would be wasted work. The closing
// duplicate vertex is excluded so it cannot bias the mean.
func ringMean(ring orb.Ring) (lng, lat float64) {
	pts := ring
	if len(pts) > 1 && pts.Closed() {
		pts = pts[:len(pts)-1]
	}
	for _, p := range pts {
		lng += p[0]
		lat += p[1]
	}
	n := float64(len(pts))
	return lng / n, lat / n
}

// mapVertices applies f to every vertex, returning new geometry with the
// same ring/vertex structure. Zero-vertex rings pass through unchanged.
func mapVertices(g orb.Geometry, f func(orb.Point) orb.Point) orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon:
		return mapPolygon(geom, f)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			out[i] = mapPolygon(poly, f)
		}
		return out
	default:
		return orb.Clone(g)
	}
}

func mapPolygon(poly orb.Polygon, f func(orb.Point) orb.Point) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		newRing := make(orb.Ring, len(ring))
		for j, p := range ring {
			newRing[j] = f(p)
		}
		out[i] = newRing
	}
	return out
}
