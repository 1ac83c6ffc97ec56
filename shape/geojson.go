package shape

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseGeometry decodes a GeoJSON document into polygon geometry. The payload
// may be a bare Geometry, a Feature, or a FeatureCollection (the first
// polygonal feature wins). Anything that is not a Polygon or MultiPolygon is
// rejected.
func ParseGeometry(data []byte) (orb.Geometry, error) {
	// Sniff the document type so the error for a malformed payload names
	// the actual problem instead of the last failed decode attempt.
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing GeoJSON: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parsing FeatureCollection: %w", err)
		}
		for _, f := range fc.Features {
			if g := polygonal(f.Geometry); g != nil {
				return g, nil
			}
		}
		return nil, fmt.Errorf("%w: no polygonal feature in collection", ErrInvalidGeometry)

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parsing Feature: %w", err)
		}
		// "geometry": null is legal GeoJSON and decodes to a nil geometry.
		if f.Geometry == nil {
			return nil, fmt.Errorf("%w: feature has no geometry", ErrInvalidGeometry)
		}
		if g := polygonal(f.Geometry); g != nil {
			return g, nil
		}
		return nil, fmt.Errorf("%w: feature geometry is %s, want Polygon or MultiPolygon",
			ErrInvalidGeometry, f.Geometry.GeoJSONType())

	case "Polygon", "MultiPolygon":
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parsing geometry: %w", err)
		}
		return geom.Geometry(), nil

	default:
		return nil, fmt.Errorf("%w: unsupported GeoJSON type %q", ErrInvalidGeometry, probe.Type)
	}
}

func polygonal(g orb.Geometry) orb.Geometry {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g
	}
	return nil
}

// ShapeFeature converts a shape into a GeoJSON feature carrying the rotated
// placement geometry plus id/name/rotation properties.
func ShapeFeature(s *Shape) (*geojson.Feature, error) {
	geom, err := s.RotatedCoordinates()
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", s.ID, err)
	}
	f := geojson.NewFeature(geom)
	f.ID = s.ID
	f.Properties["id"] = s.ID
	if s.Name != "" {
		f.Properties["name"] = s.Name
	}
	f.Properties["rotation"] = s.Rotation
	return f, nil
}

// ShapeCollection converts shapes into a FeatureCollection. A shape whose
// rotation fails to compute is skipped so one bad shape cannot take down the
// whole listing; the caller gets the per-shape errors.
func ShapeCollection(shapes []*Shape) (*geojson.FeatureCollection, []error) {
	fc := geojson.NewFeatureCollection()
	var errs []error
	for _, s := range shapes {
		f, err := ShapeFeature(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fc.Append(f)
	}
	return fc, errs
}
