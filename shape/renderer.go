package shape

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ShapeColor defines the colors for one shape's preview elements.
type ShapeColor struct {
	Outline color.RGBA
	Marker  color.RGBA
	Portal  color.RGBA
}

// DefaultPalette returns distinct colors cycled across shapes.
func DefaultPalette() []ShapeColor {
	return []ShapeColor{
		{ // Blue
			Outline: color.RGBA{0, 0, 139, 255},
			Marker:  color.RGBA{0, 0, 255, 255},
			Portal:  color.RGBA{100, 149, 237, 255},
		},
		{ // Red
			Outline: color.RGBA{139, 0, 0, 255},
			Marker:  color.RGBA{255, 0, 0, 255},
			Portal:  color.RGBA{255, 99, 71, 255},
		},
		{ // Green
			Outline: color.RGBA{0, 100, 0, 255},
			Marker:  color.RGBA{0, 160, 0, 255},
			Portal:  color.RGBA{144, 200, 144, 255},
		},
		{ // Gold
			Outline: color.RGBA{184, 134, 11, 255},
			Marker:  color.RGBA{218, 165, 32, 255},
			Portal:  color.RGBA{255, 215, 0, 255},
		},
	}
}

// Renderer draws a raster preview of shapes over a viewport: outlines,
// markers at anchor points, and edge portals for off-screen shapes. A
// debug/export surface, not the live map.
type Renderer struct {
	Viewport   Viewport
	Config     *Config
	Palette    []ShapeColor
	Background color.RGBA
}

// NewRenderer creates a preview renderer with default palette and a white
// background.
func NewRenderer(vp Viewport, cfg *Config) *Renderer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Renderer{
		Viewport:   vp,
		Config:     cfg,
		Palette:    DefaultPalette(),
		Background: color.RGBA{255, 255, 255, 255},
	}
}

// Render draws the given shapes into a new image sized to the viewport.
// A shape whose rotated geometry cannot be computed is skipped; one bad
// shape never blanks the whole preview.
func (r *Renderer) Render(shapes []*Shape) *image.RGBA {
	w, h := int(r.Viewport.Width), int(r.Viewport.Height)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, r.Background)
		}
	}

	for i, s := range shapes {
		geom, err := s.RotatedCoordinates()
		if err != nil {
			continue
		}
		sc := r.Palette[i%len(r.Palette)]
		r.drawGeometry(img, geom, sc.Outline)
		r.drawAnnotations(img, s, geom, sc)
	}
	return img
}

func (r *Renderer) drawGeometry(img *image.RGBA, g orb.Geometry, c color.RGBA) {
	eachRing(g, func(ring orb.Ring) {
		for i := 0; i+1 < len(ring); i++ {
			x1, y1 := r.Viewport.Pixel(ring[i])
			x2, y2 := r.Viewport.Pixel(ring[i+1])
			drawLine(img, int(x1), int(y1), int(x2), int(y2), c)
		}
	})
}

func (r *Renderer) drawAnnotations(img *image.RGBA, s *Shape, geom orb.Geometry, sc ShapeColor) {
	anchor, ok := SelectAnchor(geom, r.Config.Anchor.ClusterDistanceKM)
	if !ok {
		return
	}
	ax, ay := r.Viewport.Pixel(anchor)

	if portal, ok := PlacePortal(ax, ay, r.Viewport, r.Config.Portal.MarginPx, r.Config.Portal.Exclusions); ok {
		drawTriangle(img, int(portal.X), int(portal.Y), 8, sc.Portal)
		return
	}

	if MarkerWarranted(geom, r.Viewport, r.Config.Anchor.MarkerAreaThresholdPct) {
		drawCircle(img, int(ax), int(ay), 5, sc.Marker)
		label := s.Name
		if label == "" {
			label = s.ID
		}
		drawText(img, int(ax)+8, int(ay)+4, label, sc.Outline)
	}
}

// SavePNG renders the shapes and writes the image to a PNG file.
func (r *Renderer) SavePNG(path string, shapes []*Shape) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, r.Render(shapes)); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

func eachRing(g orb.Geometry, f func(orb.Ring)) {
	switch geom := g.(type) {
	case orb.Polygon:
		for _, ring := range geom {
			f(ring)
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, ring := range poly {
				f(ring)
			}
		}
	}
}

// drawLine draws a line using integer DDA stepping.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := x2 - x1
	dy := y2 - y1
	steps := int(math.Max(math.Abs(float64(dx)), math.Abs(float64(dy))))
	if steps == 0 {
		setPixel(img, x1, y1, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		setPixel(img, x1+int(t*float64(dx)+0.5), y1+int(t*float64(dy)+0.5), c)
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.Set(x, y, c)
	}
}

func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				setPixel(img, cx+x, cy+y, c)
			}
		}
	}
}

func drawTriangle(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	for y := 0; y <= size; y++ {
		half := y * size / (size + 1)
		for x := -half; x <= half; x++ {
			setPixel(img, cx+x, cy-size/2+y, c)
		}
	}
}

func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
