package shape

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Store holds the live shape records for the service. All geometry math in
// this package is pure; the store is the single place placement results get
// committed, and its per-store lock serializes commits so a drag-end commit
// and a rotation commit on the same shape cannot race.
type Store struct {
	mu     sync.RWMutex
	shapes map[string]*Shape
}

// NewStore creates an empty shape store.
func NewStore() *Store {
	return &Store{shapes: make(map[string]*Shape)}
}

// Add validates and stores a new shape built from authoritative geometry.
func (st *Store) Add(id, name string, geom orb.Geometry) (*Shape, error) {
	if id == "" {
		return nil, fmt.Errorf("shape id is required")
	}
	if err := ValidateGeometry(geom); err != nil {
		return nil, fmt.Errorf("shape %s: %w", id, err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.shapes[id]; exists {
		return nil, fmt.Errorf("shape %s already exists", id)
	}
	s := &Shape{ID: id, Name: name, Coordinates: geom}
	st.shapes[id] = s
	return s, nil
}

// Get returns a shape by id.
func (st *Store) Get(id string) (*Shape, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.shapes[id]
	return s, ok
}

// Remove deletes a shape. Returns false if it was not present.
func (st *Store) Remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.shapes[id]; !ok {
		return false
	}
	delete(st.shapes, id)
	return true
}

// List returns all shapes ordered by id.
func (st *Store) List() []*Shape {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Shape, 0, len(st.shapes))
	for _, s := range st.shapes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of stored shapes.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.shapes)
}

// Collection renders every stored shape as a GeoJSON FeatureCollection.
// Held under the write lock because building a feature may refresh a shape's
// rotated-geometry memo.
func (st *Store) Collection() (*geojson.FeatureCollection, []error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	shapes := make([]*Shape, 0, len(st.shapes))
	for _, s := range st.shapes {
		shapes = append(shapes, s)
	}
	sort.Slice(shapes, func(i, j int) bool { return shapes[i].ID < shapes[j].ID })
	return ShapeCollection(shapes)
}

// Snapshot returns detached render-ready copies of every shape, ordered by
// id. Rotated placement geometry is resolved under the write lock and carried
// as each copy's base geometry, so renderers can walk the result without
// holding the lock while commits land on the live records. A shape whose
// rotation fails to compute is omitted.
func (st *Store) Snapshot() []*Shape {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Shape, 0, len(st.shapes))
	for _, s := range st.shapes {
		geom, err := s.RotatedCoordinates()
		if err != nil {
			continue
		}
		out = append(out, &Shape{ID: s.ID, Name: s.Name, Coordinates: geom})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rotated returns a shape's rotated placement geometry under the write lock,
// for handlers that need a single shape's render geometry.
func (st *Store) Rotated(id string) (orb.Geometry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.shapes[id]
	if !ok {
		return nil, fmt.Errorf("shape %s not found", id)
	}
	return s.RotatedCoordinates()
}

// CommitRotation applies a rotation commit: the stored angle changes, the
// placed geometry does not. The rotated geometry is served lazily through
// Shape.RotatedCoordinates.
func (st *Store) CommitRotation(id string, degrees float64) (*Shape, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.shapes[id]
	if !ok {
		return nil, fmt.Errorf("shape %s not found", id)
	}
	s.SetRotation(degrees)
	return s, nil
}

// CommitPlacement moves a shape's centroid onto target through the
// authoritative projected translation and stores the result as the new
// current geometry.
func (st *Store) CommitPlacement(id string, target orb.Point) (*Shape, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.shapes[id]
	if !ok {
		return nil, fmt.Errorf("shape %s not found", id)
	}
	moved, err := TranslateTowardTarget(s.ActiveCoordinates(), target)
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", id, err)
	}
	s.SetCurrentCoordinates(moved)
	return s, nil
}

// CommitDrag applies the cheap drag approximation and stores the result.
// Callers use it for intermediate state only; a gesture end should follow
// with CommitPlacement for the authoritative pose.
func (st *Store) CommitDrag(id string, latDelta, lngDelta float64) (*Shape, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.shapes[id]
	if !ok {
		return nil, fmt.Errorf("shape %s not found", id)
	}
	moved, err := DragTransform(s.ActiveCoordinates(), latDelta, lngDelta)
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", id, err)
	}
	s.SetCurrentCoordinates(moved)
	return s, nil
}
