package shape

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrInvalidGeometry is wrapped by all geometry validation failures.
// Invalid input is rejected, never silently repaired, because corrupted
// coordinates would end up in user-visible editable shapes.
var ErrInvalidGeometry = errors.New("invalid geometry")

// CheckFinite rejects geometry containing NaN or infinite coordinates.
// This is the transform-time guard: structure (ring closure, vertex counts)
// is not enforced here so degenerate rings can still pass through transforms
// unchanged.
func CheckFinite(g orb.Geometry) error {
	switch geom := g.(type) {
	case orb.Polygon:
		return checkFiniteRings(geom)
	case orb.MultiPolygon:
		for i, poly := range geom {
			if err := checkFiniteRings(poly); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil geometry", ErrInvalidGeometry)
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

func checkFiniteRings(poly orb.Polygon) error {
	for ri, ring := range poly {
		for vi, p := range ring {
			if !finite(p) {
				return fmt.Errorf("%w: non-finite coordinate at ring %d vertex %d", ErrInvalidGeometry, ri, vi)
			}
		}
	}
	return nil
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) &&
		!math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}

// ValidateGeometry is the import-time check: finite coordinates, at least one
// ring, every ring closed with at least 4 points, and lon/lat within world
// range. Used when accepting geometry from collaborators or remote sources.
func ValidateGeometry(g orb.Geometry) error {
	if err := CheckFinite(g); err != nil {
		return err
	}
	switch geom := g.(type) {
	case orb.Polygon:
		return validatePolygon(geom)
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
		}
		for i, poly := range geom {
			if err := validatePolygon(poly); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

func validatePolygon(poly orb.Polygon) error {
	if len(poly) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}
	for ri, ring := range poly {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d has %d points, need at least 4", ErrInvalidGeometry, ri, len(ring))
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, ri)
		}
		for vi, p := range ring {
			if p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
				return fmt.Errorf("%w: ring %d vertex %d outside lon/lat range: (%g, %g)",
					ErrInvalidGeometry, ri, vi, p[0], p[1])
			}
		}
	}
	return nil
}

// CountPoints returns the total vertex count across all rings.
func CountPoints(g orb.Geometry) int {
	n := 0
	switch geom := g.(type) {
	case orb.Polygon:
		for _, ring := range geom {
			n += len(ring)
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, ring := range poly {
				n += len(ring)
			}
		}
	}
	return n
}
