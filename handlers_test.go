package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/kwv/geoshift/shape"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// testApp returns an App with default config and an empty store.
func testApp() *App {
	a := NewApp()
	a.Config = shape.DefaultConfig()
	return a
}

// unitSquare returns a closed 1x1 degree square centered at (lon, lat) as
// GeoJSON Polygon coordinates.
func unitSquare(lon, lat float64) string {
	return fmt.Sprintf(
		`{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}`,
		lon-0.5, lat-0.5, lon+0.5, lat-0.5, lon+0.5, lat+0.5, lon-0.5, lat+0.5, lon-0.5, lat-0.5)
}

// addSquare imports a unit square shape directly into the store.
func addSquare(t *testing.T, a *App, id string, lon, lat float64) {
	t.Helper()
	geom := orb.Polygon{orb.Ring{
		{lon - 0.5, lat - 0.5}, {lon + 0.5, lat - 0.5},
		{lon + 0.5, lat + 0.5}, {lon - 0.5, lat + 0.5},
		{lon - 0.5, lat - 0.5},
	}}
	if _, err := a.Store.Add(id, "", geom); err != nil {
		t.Fatalf("adding shape %s: %v", id, err)
	}
}

// viewportBody is a request body carrying an 800x600 viewport over
// lon 0..8, lat 40..46.
func viewportBody() *strings.Reader {
	return strings.NewReader(`{"width":800,"height":600,"bound":[0,40,8,46]}`)
}

func doRequest(a *App, method, path string, body *strings.Reader) *httptest.ResponseRecorder {
	handler := newHTTPServer(a)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// viewport payload
// ---------------------------------------------------------------------------

func TestViewportPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload viewportPayload
		wantErr bool
	}{
		{"valid", viewportPayload{Width: 800, Height: 600, Bound: [4]float64{0, 40, 8, 46}}, false},
		{"zero width", viewportPayload{Width: 0, Height: 600, Bound: [4]float64{0, 40, 8, 46}}, true},
		{"negative height", viewportPayload{Width: 800, Height: -1, Bound: [4]float64{0, 40, 8, 46}}, true},
		{"inverted bound", viewportPayload{Width: 800, Height: 600, Bound: [4]float64{8, 40, 0, 46}}, true},
		{"empty bound", viewportPayload{Width: 800, Height: 600, Bound: [4]float64{1, 40, 1, 46}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp, err := tt.payload.viewport()
			if (err != nil) != tt.wantErr {
				t.Fatalf("viewport() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (vp.Width != tt.payload.Width || vp.Bound.Min[0] != tt.payload.Bound[0]) {
				t.Errorf("viewport = %+v", vp)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// /health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	w := doRequest(a, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Status string `json:"status"`
		Shapes int    `json:"shapes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "ok" || body.Shapes != 1 {
		t.Errorf("body = %+v", body)
	}
}

// ---------------------------------------------------------------------------
// POST /api/shapes
// ---------------------------------------------------------------------------

func TestImportShapeInlineGeometry(t *testing.T) {
	a := testApp()
	body := strings.NewReader(`{"id":"hall","name":"Town Hall","geometry":` + unitSquare(4, 43) + `}`)

	w := doRequest(a, http.MethodPost, "/api/shapes", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	s, ok := a.Store.Get("hall")
	if !ok {
		t.Fatal("shape not stored")
	}
	if s.Name != "Town Hall" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestImportShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"no geometry or place", `{"id":"x"}`, http.StatusBadRequest},
		{"malformed json", `{"id":`, http.StatusBadRequest},
		{"point geometry", `{"id":"x","geometry":{"type":"Point","coordinates":[1,2]}}`, http.StatusBadRequest},
		{"open ring", `{"id":"x","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(testApp(), http.MethodPost, "/api/shapes", strings.NewReader(tt.body))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestImportShapeDuplicate(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	body := strings.NewReader(`{"id":"hall","geometry":` + unitSquare(4, 43) + `}`)
	w := doRequest(a, http.MethodPost, "/api/shapes", body)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestImportShapeByPlace(t *testing.T) {
	overpass := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[{"type":"relation","members":[
			{"type":"way","geometry":[{"lat":52,"lon":4},{"lat":52,"lon":4.1},{"lat":52.1,"lon":4.1}]},
			{"type":"way","geometry":[{"lat":52.1,"lon":4.1},{"lat":52.1,"lon":4},{"lat":52,"lon":4}]}
		]}]}`))
	}))
	defer overpass.Close()

	a := testApp()
	a.Config.Overpass.URL = overpass.URL

	w := doRequest(a, http.MethodPost, "/api/shapes", strings.NewReader(`{"place":"Delft"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	s, ok := a.Store.Get("Delft")
	if !ok {
		t.Fatal("place import did not default the id to the place name")
	}
	if s.Name != "Delft" {
		t.Errorf("name = %q, want Delft", s.Name)
	}
}

// ---------------------------------------------------------------------------
// GET /api/shapes and DELETE /api/shapes/{id}
// ---------------------------------------------------------------------------

func TestListShapes(t *testing.T) {
	a := testApp()
	addSquare(t, a, "b", 4, 43)
	addSquare(t, a, "a", 5, 43)

	w := doRequest(a, http.MethodGet, "/api/shapes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("decoding collection: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("collection = %+v", fc)
	}
	if fc.Features[0].ID != "a" || fc.Features[1].ID != "b" {
		t.Errorf("feature order = %v, %v", fc.Features[0].ID, fc.Features[1].ID)
	}
}

func TestDeleteShape(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	if w := doRequest(a, http.MethodDelete, "/api/shapes/hall", nil); w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := doRequest(a, http.MethodDelete, "/api/shapes/hall", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------------------------------------------------------------------------
// transform commits
// ---------------------------------------------------------------------------

func TestRotateShape(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	w := doRequest(a, http.MethodPost, "/api/shapes/hall/rotate", strings.NewReader(`{"angle":450}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var body struct {
		Rotation float64 `json:"rotation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Rotation != 90 {
		t.Errorf("rotation = %v, want normalized 90", body.Rotation)
	}
}

func TestRotateUnknownShape(t *testing.T) {
	w := doRequest(testApp(), http.MethodPost, "/api/shapes/ghost/rotate", strings.NewReader(`{"angle":90}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPlaceShape(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	w := doRequest(a, http.MethodPost, "/api/shapes/hall/place", strings.NewReader(`{"lon":6,"lat":44}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	s, _ := a.Store.Get("hall")
	c := shape.Centroid(s.ActiveCoordinates())
	if c[0] < 5.99 || c[0] > 6.01 || c[1] < 43.99 || c[1] > 44.01 {
		t.Errorf("centroid after place = %v, want near (6, 44)", c)
	}
}

func TestDragShape(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	w := doRequest(a, http.MethodPost, "/api/shapes/hall/drag", strings.NewReader(`{"latDelta":1,"lngDelta":1}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	s, _ := a.Store.Get("hall")
	c := shape.Centroid(s.ActiveCoordinates())
	if c[0] < 4.99 || c[0] > 5.01 || c[1] < 43.99 || c[1] > 44.01 {
		t.Errorf("centroid after drag = %v, want near (5, 44)", c)
	}
}

func TestDragRejectsNonFinite(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	// JSON has no NaN literal, so a malformed number exercises the decode
	// error path instead.
	w := doRequest(a, http.MethodPost, "/api/shapes/hall/drag", strings.NewReader(`{"latDelta":nan}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ---------------------------------------------------------------------------
// anchor and portal queries
// ---------------------------------------------------------------------------

func TestAnchorQuery(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	w := doRequest(a, http.MethodPost, "/api/shapes/hall/anchor", viewportBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var body struct {
		Marker bool       `json:"marker"`
		Anchor [2]float64 `json:"anchor"`
		Pixel  [2]float64 `json:"pixel"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	// 1 degree square over an 8x6 degree viewport covers ~2% of the screen,
	// under the 10% default threshold.
	if !body.Marker {
		t.Error("marker = false, want true for a small on-screen shape")
	}
	if body.Anchor != [2]float64{4, 43} {
		t.Errorf("anchor = %v, want [4 43]", body.Anchor)
	}
	if body.Pixel != [2]float64{400, 300} {
		t.Errorf("pixel = %v, want [400 300]", body.Pixel)
	}
}

func TestAnchorQueryErrors(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	if w := doRequest(a, http.MethodPost, "/api/shapes/ghost/anchor", viewportBody()); w.Code != http.StatusNotFound {
		t.Errorf("unknown shape status = %d, want 404", w.Code)
	}
	if w := doRequest(a, http.MethodPost, "/api/shapes/hall/anchor", strings.NewReader(`{"width":0}`)); w.Code != http.StatusBadRequest {
		t.Errorf("bad viewport status = %d, want 400", w.Code)
	}
}

func TestPortalQuery(t *testing.T) {
	a := testApp()
	addSquare(t, a, "visible", 4, 43)
	addSquare(t, a, "away", 20, 43)

	// On-screen shape: no portal.
	w := doRequest(a, http.MethodPost, "/api/shapes/visible/portal", viewportBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Portal *shape.Portal `json:"portal"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Portal != nil {
		t.Errorf("portal = %+v, want null for a visible shape", resp.Portal)
	}

	// Off-screen shape to the east: portal on the right edge.
	w = doRequest(a, http.MethodPost, "/api/shapes/away/portal", viewportBody())
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Portal == nil {
		t.Fatal("portal = null, want placement for an off-screen shape")
	}
	if resp.Portal.Edge != shape.EdgeRight {
		t.Errorf("portal edge = %v, want right", resp.Portal.Edge)
	}
}

// ---------------------------------------------------------------------------
// previews
// ---------------------------------------------------------------------------

func TestPreviewSVG(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	w := doRequest(a, http.MethodPost, "/api/preview.svg", viewportBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("<svg")) {
		t.Error("body does not contain <svg tag")
	}
}

func TestPreviewPNG(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	w := doRequest(a, http.MethodPost, "/api/preview.png", viewportBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("image size = %dx%d, want 800x600", b.Dx(), b.Dy())
	}
}

// ---------------------------------------------------------------------------
// placement publishing
// ---------------------------------------------------------------------------

func TestRotatePublishesPlacement(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	client := shape.NewMockClient()
	client.SetConnected(true)
	a.Publisher = shape.NewPublisher(client, "geoshift")

	w := doRequest(a, http.MethodPost, "/api/shapes/hall/rotate", strings.NewReader(`{"angle":45}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	msgs := client.PublishedMessages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].Topic != "geoshift/hall" {
		t.Errorf("topic = %q", msgs[0].Topic)
	}
	var pl shape.Placement
	if err := json.Unmarshal(msgs[0].Payload, &pl); err != nil {
		t.Fatal(err)
	}
	if pl.Rotation != 45 || pl.ShapeID != "hall" {
		t.Errorf("placement = %+v", pl)
	}
}

func TestDeletePublishesRemoval(t *testing.T) {
	a := testApp()
	addSquare(t, a, "hall", 4, 43)

	client := shape.NewMockClient()
	client.SetConnected(true)
	a.Publisher = shape.NewPublisher(client, "geoshift")

	if w := doRequest(a, http.MethodDelete, "/api/shapes/hall", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	msgs := client.PublishedMessages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].Topic != "geoshift/hall" || len(msgs[0].Payload) != 0 {
		t.Errorf("removal message = %+v, want empty retained payload", msgs[0])
	}
}

// ---------------------------------------------------------------------------
// statusFor
// ---------------------------------------------------------------------------

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid geometry", fmt.Errorf("shape x: %w", shape.ErrInvalidGeometry), http.StatusBadRequest},
		{"not found", fmt.Errorf("shape x not found"), http.StatusNotFound},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
