package shape

import (
	"io"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer renders shape previews as SVG for export. Same content as
// the raster Renderer (outlines, markers, portals) but resolution
// independent.
type VectorRenderer struct {
	Viewport    Viewport
	Config      *Config
	StrokeWidth float64
}

// NewVectorRenderer creates a vector renderer with default stroke settings.
func NewVectorRenderer(vp Viewport, cfg *Config) *VectorRenderer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &VectorRenderer{
		Viewport:    vp,
		Config:      cfg,
		StrokeWidth: 1.5,
	}
}

// canvasRenderer is the subset of canvas renderers used here; svg and
// rasterizer both implement it.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the shape preview as an SVG to the provided writer.
func (r *VectorRenderer) RenderToSVG(w io.Writer, shapes []*Shape) error {
	svgRenderer := svg.New(w, r.Viewport.Width, r.Viewport.Height, nil)
	r.renderToCanvas(svgRenderer, shapes)
	return svgRenderer.Close()
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, shapes []*Shape) {
	// White background.
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Viewport.Width, r.Viewport.Height), bgStyle, canvas.Identity)

	palette := DefaultPalette()

	for i, s := range shapes {
		geom, err := s.RotatedCoordinates()
		if err != nil {
			continue
		}
		sc := palette[i%len(palette)]

		outlineStyle := canvas.DefaultStyle
		outlineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		outlineStyle.Stroke = canvas.Paint{Color: sc.Outline}
		outlineStyle.StrokeWidth = r.StrokeWidth

		eachRing(geom, func(ring orb.Ring) {
			if len(ring) < 2 {
				return
			}
			cp := &canvas.Path{}
			for j, pt := range ring {
				x, y := r.canvasPoint(pt)
				if j == 0 {
					cp.MoveTo(x, y)
				} else {
					cp.LineTo(x, y)
				}
			}
			cp.Close()
			renderer.RenderPath(cp, outlineStyle, canvas.Identity)
		})

		r.renderAnnotations(renderer, geom, sc)
	}
}

func (r *VectorRenderer) renderAnnotations(renderer canvasRenderer, geom orb.Geometry, sc ShapeColor) {
	anchor, ok := SelectAnchor(geom, r.Config.Anchor.ClusterDistanceKM)
	if !ok {
		return
	}
	ax, ay := r.Viewport.Pixel(anchor)

	if portal, ok := PlacePortal(ax, ay, r.Viewport, r.Config.Portal.MarginPx, r.Config.Portal.Exclusions); ok {
		portalStyle := canvas.DefaultStyle
		portalStyle.Fill = canvas.Paint{Color: sc.Portal}
		x, y := portal.X, r.Viewport.Height-portal.Y
		cp := &canvas.Path{}
		cp.MoveTo(x, y+6)
		cp.LineTo(x-6, y-6)
		cp.LineTo(x+6, y-6)
		cp.Close()
		renderer.RenderPath(cp, portalStyle, canvas.Identity)
		return
	}

	if MarkerWarranted(geom, r.Viewport, r.Config.Anchor.MarkerAreaThresholdPct) {
		markerStyle := canvas.DefaultStyle
		markerStyle.Fill = canvas.Paint{Color: sc.Marker}
		x, y := ax, r.Viewport.Height-ay
		circle := canvas.Circle(5).Translate(x, y)
		renderer.RenderPath(circle, markerStyle, canvas.Identity)
	}
}

// canvasPoint converts a geographic point to canvas coordinates. Canvas y
// grows upward while viewport pixel y grows downward, so y flips here.
func (r *VectorRenderer) canvasPoint(p orb.Point) (float64, float64) {
	x, y := r.Viewport.Pixel(p)
	return x, r.Viewport.Height - y
}
