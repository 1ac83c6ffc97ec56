package shape

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// earthRadiusM is the mean earth radius in meters, shared by the
	// projector and the great-circle distance used for anchor clustering.
	earthRadiusM = 6371008.8

	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi

	// metersPerDegree is the length of one degree of arc at the earth's
	// surface, used by the degraded degree-space fallback.
	metersPerDegree = earthRadiusM * degToRad

	// poleLatLimit marks where the tangent-plane math degenerates. A
	// reference closer to a pole than this switches the projector to the
	// degraded cosine-corrected mode.
	poleLatLimit = 89.999
)

// Projector converts between geographic coordinates and a local planar meter
// frame centered at a reference point, so Euclidean operations on projected
// coordinates correspond to physically meaningful operations on the surface.
// Naive degree-delta arithmetic distorts longitude scale away from the
// equator; this does not.
//
// The projection is azimuthal equidistant about the reference, exact on the
// sphere, which keeps the round trip well inside 1e-6 degrees for points
// within ~500 km of the reference.
type Projector struct {
	ref orb.Point

	sinLat0 float64
	cosLat0 float64

	// degraded is set when the reference sits on a pole, where the tangent
	// plane is undefined. Projection then falls back to cosine-corrected
	// degree space: per-axis degree deltas scaled to meters, longitude
	// corrected by cos(lat) of each projected point. Precision is reduced
	// (longitude scale is only locally correct), documented and accepted.
	degraded bool
}

// NewProjector builds a projector centered at ref (lon, lat).
func NewProjector(ref orb.Point) *Projector {
	lat0 := ref[1] * degToRad
	return &Projector{
		ref:      ref,
		sinLat0:  math.Sin(lat0),
		cosLat0:  math.Cos(lat0),
		degraded: math.Abs(ref[1]) >= poleLatLimit,
	}
}

// Reference returns the projection's geographic center.
func (pr *Projector) Reference() orb.Point { return pr.ref }

// Degraded reports whether the projector is running in the reduced-precision
// pole fallback mode.
func (pr *Projector) Degraded() bool { return pr.degraded }

// Project converts a geographic point to local planar meters, x east, y north.
func (pr *Projector) Project(p orb.Point) (x, y float64) {
	if pr.degraded {
		lat := clampLat(p[1])
		x = (p[0] - pr.ref[0]) * metersPerDegree * math.Cos(lat*degToRad)
		y = (p[1] - pr.ref[1]) * metersPerDegree
		return x, y
	}

	lat := p[1] * degToRad
	dLon := (p[0] - pr.ref[0]) * degToRad
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)

	cosC := pr.sinLat0*sinLat + pr.cosLat0*cosLat*math.Cos(dLon)
	if cosC > 1 {
		cosC = 1
	} else if cosC < -1 {
		cosC = -1
	}
	c := math.Acos(cosC)

	// k = c/sin(c) -> 1 as c -> 0.
	k := 1.0
	if sinC := math.Sin(c); sinC > 1e-12 {
		k = c / sinC
	}

	x = earthRadiusM * k * cosLat * math.Sin(dLon)
	y = earthRadiusM * k * (pr.cosLat0*sinLat - pr.sinLat0*cosLat*math.Cos(dLon))
	return x, y
}

// Unproject converts local planar meters back to a geographic point.
func (pr *Projector) Unproject(x, y float64) orb.Point {
	if pr.degraded {
		lat := pr.ref[1] + y/metersPerDegree
		cosLat := math.Cos(clampLat(lat) * degToRad)
		if cosLat < 1e-12 {
			cosLat = 1e-12
		}
		lon := pr.ref[0] + x/(metersPerDegree*cosLat)
		return orb.Point{lon, lat}
	}

	rho := math.Hypot(x, y)
	if rho < 1e-9 {
		return pr.ref
	}
	c := rho / earthRadiusM
	sinC, cosC := math.Sin(c), math.Cos(c)

	lat := math.Asin(cosC*pr.sinLat0 + y*sinC*pr.cosLat0/rho)
	lon := pr.ref[0]*degToRad + math.Atan2(x*sinC, rho*pr.cosLat0*cosC-y*pr.sinLat0*sinC)

	return orb.Point{lon * radToDeg, lat * radToDeg}
}

func clampLat(lat float64) float64 {
	if lat > poleLatLimit {
		return poleLatLimit
	}
	if lat < -poleLatLimit {
		return -poleLatLimit
	}
	return lat
}

// haversineKM is the great-circle distance between two lon/lat points in
// kilometers on the conventional 6371 km mean-radius sphere.
func haversineKM(a, b orb.Point) float64 {
	lat1 := a[1] * degToRad
	lat2 := b[1] * degToRad
	dLat := lat2 - lat1
	dLon := (b[0] - a[0]) * degToRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * 6371.0 * math.Asin(math.Min(1, math.Sqrt(h)))
}
