package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/kwv/geoshift/shape"
)

// viewportPayload is the wire form of a viewport: pixel size plus geographic
// bounds as [west, south, east, north].
type viewportPayload struct {
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Bound  [4]float64 `json:"bound"`
}

func (v viewportPayload) viewport() (shape.Viewport, error) {
	if v.Width <= 0 || v.Height <= 0 {
		return shape.Viewport{}, fmt.Errorf("viewport size must be positive")
	}
	if v.Bound[2] <= v.Bound[0] || v.Bound[3] <= v.Bound[1] {
		return shape.Viewport{}, fmt.Errorf("viewport bound is inverted or empty")
	}
	return shape.Viewport{
		Width:  v.Width,
		Height: v.Height,
		Bound: orb.Bound{
			Min: orb.Point{v.Bound[0], v.Bound[1]},
			Max: orb.Point{v.Bound[2], v.Bound[3]},
		},
	}, nil
}

// newHTTPServer creates an HTTP handler with all API endpoints.
func newHTTPServer(a *App) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Shapes    int       `json:"shapes"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Shapes:    a.Store.Len(),
		})
	})

	// Import a shape from inline GeoJSON or by place name.
	mux.HandleFunc("POST /api/shapes", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID       string          `json:"id"`
			Name     string          `json:"name"`
			Place    string          `json:"place"`
			Geometry json.RawMessage `json:"geometry"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "decoding request: %v", err)
			return
		}

		var geom orb.Geometry
		var err error
		switch {
		case len(req.Geometry) > 0:
			geom, err = shape.ParseGeometry(req.Geometry)
		case req.Place != "":
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
			defer cancel()
			geom, err = shape.FetchBoundary(ctx, req.Place, shape.WithEndpoint(a.Config.Overpass.URL))
			if req.Name == "" {
				req.Name = req.Place
			}
			if req.ID == "" {
				req.ID = req.Place
			}
		default:
			httpError(w, http.StatusBadRequest, "either geometry or place is required")
			return
		}
		if err != nil {
			httpError(w, statusFor(err), "importing shape: %v", err)
			return
		}

		geom, err = shape.SimplifyQuality(geom, a.Config.Simplify.Quality, a.Config.Simplify.Budgets)
		if err != nil {
			httpError(w, statusFor(err), "simplifying shape: %v", err)
			return
		}

		s, err := a.Store.Add(req.ID, req.Name, geom)
		if err != nil {
			status := http.StatusConflict
			if errors.Is(err, shape.ErrInvalidGeometry) {
				status = http.StatusBadRequest
			}
			httpError(w, status, "%v", err)
			return
		}
		log.Printf("[HTTP] imported shape %s (%d points)", s.ID, shape.CountPoints(geom))
		writeJSON(w, http.StatusCreated, s)
	})

	mux.HandleFunc("GET /api/shapes", func(w http.ResponseWriter, r *http.Request) {
		fc, errs := a.Store.Collection()
		for _, err := range errs {
			log.Printf("[HTTP] skipping shape in listing: %v", err)
		}
		writeJSON(w, http.StatusOK, fc)
	})

	mux.HandleFunc("DELETE /api/shapes/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !a.Store.Remove(id) {
			httpError(w, http.StatusNotFound, "shape %s not found", id)
			return
		}
		if a.Publisher != nil && a.Publisher.Enabled() {
			if err := a.Publisher.PublishRemoval(id); err != nil {
				log.Printf("Publishing removal of %s: %v", id, err)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/shapes/{id}/rotate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Angle float64 `json:"angle"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "decoding request: %v", err)
			return
		}
		s, err := a.Store.CommitRotation(r.PathValue("id"), req.Angle)
		if err != nil {
			httpError(w, statusFor(err), "%v", err)
			return
		}
		a.publishPlacement(s)
		writeJSON(w, http.StatusOK, s)
	})

	mux.HandleFunc("POST /api/shapes/{id}/place", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Lon float64 `json:"lon"`
			Lat float64 `json:"lat"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "decoding request: %v", err)
			return
		}
		s, err := a.Store.CommitPlacement(r.PathValue("id"), orb.Point{req.Lon, req.Lat})
		if err != nil {
			httpError(w, statusFor(err), "%v", err)
			return
		}
		a.publishPlacement(s)
		writeJSON(w, http.StatusOK, s)
	})

	mux.HandleFunc("POST /api/shapes/{id}/drag", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LatDelta float64 `json:"latDelta"`
			LngDelta float64 `json:"lngDelta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "decoding request: %v", err)
			return
		}
		// Drag commits are preview state; no placement publish until the
		// gesture ends with /place.
		s, err := a.Store.CommitDrag(r.PathValue("id"), req.LatDelta, req.LngDelta)
		if err != nil {
			httpError(w, statusFor(err), "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	})

	mux.HandleFunc("POST /api/shapes/{id}/anchor", func(w http.ResponseWriter, r *http.Request) {
		vp, ok := decodeViewport(w, r)
		if !ok {
			return
		}
		geom, err := a.Store.Rotated(r.PathValue("id"))
		if err != nil {
			httpError(w, statusFor(err), "%v", err)
			return
		}

		anchor, found := shape.SelectAnchor(geom, a.Config.Anchor.ClusterDistanceKM)
		if !found {
			// Zero-area shapes are treated as already visible.
			writeJSON(w, http.StatusOK, struct {
				Marker bool `json:"marker"`
			}{Marker: false})
			return
		}
		px, py := vp.Pixel(anchor)
		writeJSON(w, http.StatusOK, struct {
			Marker bool       `json:"marker"`
			Anchor [2]float64 `json:"anchor"`
			Pixel  [2]float64 `json:"pixel"`
		}{
			Marker: shape.MarkerWarranted(geom, vp, a.Config.Anchor.MarkerAreaThresholdPct),
			Anchor: [2]float64{anchor[0], anchor[1]},
			Pixel:  [2]float64{px, py},
		})
	})

	mux.HandleFunc("POST /api/shapes/{id}/portal", func(w http.ResponseWriter, r *http.Request) {
		vp, ok := decodeViewport(w, r)
		if !ok {
			return
		}
		geom, err := a.Store.Rotated(r.PathValue("id"))
		if err != nil {
			httpError(w, statusFor(err), "%v", err)
			return
		}

		var resp struct {
			Portal *shape.Portal `json:"portal"`
		}
		if anchor, found := shape.SelectAnchor(geom, a.Config.Anchor.ClusterDistanceKM); found {
			ax, ay := vp.Pixel(anchor)
			if p, placed := shape.PlacePortal(ax, ay, vp, a.Config.Portal.MarginPx, a.Config.Portal.Exclusions); placed {
				resp.Portal = &p
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /api/preview.svg", func(w http.ResponseWriter, r *http.Request) {
		vp, ok := decodeViewport(w, r)
		if !ok {
			return
		}
		renderer := shape.NewVectorRenderer(vp, a.Config)
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := renderer.RenderToSVG(w, a.Store.Snapshot()); err != nil {
			log.Printf("Error rendering SVG preview: %v", err)
		}
	})

	mux.HandleFunc("POST /api/preview.png", func(w http.ResponseWriter, r *http.Request) {
		vp, ok := decodeViewport(w, r)
		if !ok {
			return
		}
		renderer := shape.NewRenderer(vp, a.Config)
		img := renderer.Render(a.Store.Snapshot())
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding preview PNG: %v", err)
		}
	})

	return mux
}

func decodeViewport(w http.ResponseWriter, r *http.Request) (shape.Viewport, bool) {
	var payload viewportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpError(w, http.StatusBadRequest, "decoding viewport: %v", err)
		return shape.Viewport{}, false
	}
	vp, err := payload.viewport()
	if err != nil {
		httpError(w, http.StatusBadRequest, "%v", err)
		return shape.Viewport{}, false
	}
	return vp, true
}

// statusFor maps domain errors to HTTP status codes. Invalid geometry is the
// caller's fault; a missing shape is a 404; anything else is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shape.ErrInvalidGeometry):
		return http.StatusBadRequest
	case err != nil && strings.HasSuffix(err.Error(), "not found"):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func httpError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[HTTP] %d: %s", status, msg)
	http.Error(w, msg, status)
}
