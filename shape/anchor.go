package shape

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const (
	// DefaultClusterDistanceKM is the great-circle distance under which the
	// parts of a multipolygon are treated as one coherent region.
	DefaultClusterDistanceKM = 200.0

	// DefaultMarkerAreaThresholdPct: a shape whose screen bounding box covers
	// at least this percentage of the viewport is large enough to see its own
	// outline and gets no marker.
	DefaultMarkerAreaThresholdPct = 10.0
)

// MarkerWarranted reports whether a shape needs a marker in the given
// viewport: true when its screen-space bounding box covers less than
// thresholdPct percent of the viewport area. Zero-area shapes are treated as
// already visible and get no marker.
func MarkerWarranted(g orb.Geometry, vp Viewport, thresholdPct float64) bool {
	if g == nil || math.Abs(geo.Area(g)) == 0 {
		return false
	}
	if vp.Area() <= 0 {
		return false
	}

	bound := g.Bound()
	x1, y1 := vp.Pixel(orb.Point{bound.Min[0], bound.Min[1]})
	x2, y2 := vp.Pixel(orb.Point{bound.Max[0], bound.Max[1]})

	w := math.Abs(x2 - x1)
	h := math.Abs(y2 - y1)
	return (w*h)/vp.Area()*100 < thresholdPct
}

// SelectAnchor chooses the representative point for a shape's marker/label.
//
// Single-part shapes anchor at their own area-weighted centroid. For a
// multipolygon, the pairwise great-circle distance between part centroids
// decides the strategy: when every pair lies within clusterKM the parts form
// one coherent region (an archipelago, say) and the anchor is the combined
// bounding-box center, keeping the marker central to the union. Otherwise
// the parts are geographically separated (a country with remote territories)
// and the anchor is the centroid of the largest-area part, so the marker
// lands on the main region instead of a midpoint over open ocean.
//
// Pure function of the geometry; returns false for nil or zero-area input.
func SelectAnchor(g orb.Geometry, clusterKM float64) (orb.Point, bool) {
	if g == nil {
		return orb.Point{}, false
	}
	if clusterKM <= 0 {
		clusterKM = DefaultClusterDistanceKM
	}

	switch geom := g.(type) {
	case orb.Polygon:
		return polygonAnchor(geom)

	case orb.MultiPolygon:
		if len(geom) == 0 {
			return orb.Point{}, false
		}
		if len(geom) == 1 {
			return polygonAnchor(geom[0])
		}

		type part struct {
			centroid orb.Point
			area     float64
		}
		parts := make([]part, 0, len(geom))
		for _, poly := range geom {
			area := math.Abs(geo.Area(poly))
			if area == 0 {
				continue
			}
			c, _ := planar.CentroidArea(poly)
			parts = append(parts, part{centroid: c, area: area})
		}
		if len(parts) == 0 {
			return orb.Point{}, false
		}
		if len(parts) == 1 {
			return parts[0].centroid, true
		}

		clustered := true
		for i := 0; i < len(parts) && clustered; i++ {
			for j := i + 1; j < len(parts); j++ {
				if haversineKM(parts[i].centroid, parts[j].centroid) > clusterKM {
					clustered = false
					break
				}
			}
		}

		if clustered {
			return geom.Bound().Center(), true
		}

		largest := parts[0]
		for _, p := range parts[1:] {
			if p.area > largest.area {
				largest = p
			}
		}
		return largest.centroid, true

	default:
		return orb.Point{}, false
	}
}

func polygonAnchor(poly orb.Polygon) (orb.Point, bool) {
	if math.Abs(geo.Area(poly)) == 0 {
		return orb.Point{}, false
	}
	c, _ := planar.CentroidArea(poly)
	return c, true
}
