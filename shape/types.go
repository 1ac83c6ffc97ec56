package shape

import (
	"time"

	"github.com/paulmach/orb"
)

// Shape is a placeable geographic feature. Coordinates holds the authoritative
// source geometry as imported; CurrentCoordinates reflects cumulative placement
// (translation/drag commits) and shares ring/vertex topology with the source.
// Rotation is in degrees, normalized to [0, 360).
//
// The rotated geometry is not stored: it is memoized per (geometry revision,
// rotation) and recomputed on demand, see RotatedCoordinates.
type Shape struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name,omitempty"`
	Coordinates        orb.Geometry `json:"-"`
	CurrentCoordinates orb.Geometry `json:"-"`
	Rotation           float64      `json:"rotation"`

	// revision increments every time CurrentCoordinates is replaced. It keys
	// the rotated-geometry memo so a stale rotation can never be served.
	revision uint64

	rotatedMemo struct {
		valid    bool
		revision uint64
		rotation float64
		geom     orb.Geometry
	}
}

// ActiveCoordinates returns the geometry placement operations act on:
// CurrentCoordinates when a placement has been committed, otherwise the
// authoritative source geometry.
func (s *Shape) ActiveCoordinates() orb.Geometry {
	if s.CurrentCoordinates != nil {
		return s.CurrentCoordinates
	}
	return s.Coordinates
}

// SetCurrentCoordinates replaces the placed geometry and bumps the revision,
// invalidating any memoized rotation.
func (s *Shape) SetCurrentCoordinates(g orb.Geometry) {
	s.CurrentCoordinates = g
	s.revision++
}

// SetRotation stores a rotation angle normalized to [0, 360).
func (s *Shape) SetRotation(degrees float64) {
	s.Rotation = NormalizeAngle(degrees)
}

// RotatedCoordinates returns the active geometry rotated by the shape's
// current rotation about its area-weighted centroid. The result is memoized
// against (revision, rotation) so repeated render passes reuse it, and a
// change to either key recomputes it.
func (s *Shape) RotatedCoordinates() (orb.Geometry, error) {
	base := s.ActiveCoordinates()
	if base == nil {
		return nil, ErrInvalidGeometry
	}
	if s.Rotation == 0 {
		return base, nil
	}
	m := &s.rotatedMemo
	if m.valid && m.revision == s.revision && m.rotation == s.Rotation {
		return m.geom, nil
	}
	rotated, err := Rotate(base, s.Rotation, base)
	if err != nil {
		return nil, err
	}
	m.valid = true
	m.revision = s.revision
	m.rotation = s.Rotation
	m.geom = rotated
	return rotated, nil
}

// Viewport describes the visible map area in pixel and geographic space.
// It is supplied by the rendering collaborator and read-only to this package.
// ToPixel, when set, is the collaborator's geographic-to-pixel projection;
// when nil a linear interpolation over Bound is used, which is adequate for
// tests and previews.
type Viewport struct {
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Bound  orb.Bound `json:"bound"`

	ToPixel func(orb.Point) (x, y float64) `json:"-"`
}

// Pixel projects a geographic point to viewport pixel coordinates.
// Pixel y grows downward (screen convention).
func (v Viewport) Pixel(p orb.Point) (float64, float64) {
	if v.ToPixel != nil {
		return v.ToPixel(p)
	}
	spanX := v.Bound.Max[0] - v.Bound.Min[0]
	spanY := v.Bound.Max[1] - v.Bound.Min[1]
	if spanX == 0 || spanY == 0 {
		return 0, 0
	}
	x := (p[0] - v.Bound.Min[0]) / spanX * v.Width
	y := (v.Bound.Max[1] - p[1]) / spanY * v.Height
	return x, y
}

// Center returns the viewport's pixel-space center.
func (v Viewport) Center() (float64, float64) {
	return v.Width / 2, v.Height / 2
}

// Area returns the viewport area in square pixels.
func (v Viewport) Area() float64 {
	return v.Width * v.Height
}

// ExclusionZone is an axis-aligned pixel rectangle reserved for UI chrome.
// Portals are nudged out of these.
type ExclusionZone struct {
	MinX float64 `json:"minX" yaml:"minX"`
	MinY float64 `json:"minY" yaml:"minY"`
	MaxX float64 `json:"maxX" yaml:"maxX"`
	MaxY float64 `json:"maxY" yaml:"maxY"`
}

// ContainsX reports whether x lies within the zone's horizontal extent.
func (z ExclusionZone) ContainsX(x float64) bool {
	return x >= z.MinX && x <= z.MaxX
}

// ContainsY reports whether y lies within the zone's vertical extent.
func (z ExclusionZone) ContainsY(y float64) bool {
	return y >= z.MinY && y <= z.MaxY
}

// Edge identifies which viewport edge a portal sits on.
type Edge string

const (
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
	EdgeLeft   Edge = "left"
	EdgeRight  Edge = "right"
)

// Portal is an edge-of-viewport indicator pointing toward an off-screen shape.
type Portal struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Edge Edge    `json:"edge"`
}

// Placement is the committed pose of a shape, published after transform
// commits so external map clients can mirror placement state.
type Placement struct {
	ShapeID   string  `json:"shapeId"`
	AnchorLon float64 `json:"anchorLon"`
	AnchorLat float64 `json:"anchorLat"`
	Rotation  float64 `json:"rotation"`
	Timestamp int64   `json:"timestamp"`
}

// NewPlacement captures the current placement of a shape for publishing.
func NewPlacement(s *Shape) Placement {
	p := Placement{
		ShapeID:   s.ID,
		Rotation:  s.Rotation,
		Timestamp: time.Now().Unix(),
	}
	if anchor, ok := SelectAnchor(s.ActiveCoordinates(), DefaultClusterDistanceKM); ok {
		p.AnchorLon = anchor[0]
		p.AnchorLat = anchor[1]
	}
	return p
}
