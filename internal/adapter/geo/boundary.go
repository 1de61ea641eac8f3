// Package geo loads study-area polygons and tests station points against them.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Boundary is a study area made of one or more polygons. Points on an edge
// count as inside.
type Boundary struct {
	area orb.MultiPolygon
}

// NewBoundary wraps the given polygons.
func NewBoundary(polygons ...orb.Polygon) *Boundary {
	return &Boundary{area: orb.MultiPolygon(polygons)}
}

// Contains reports whether (x, y) = (longitude, latitude) is inside the area.
func (b *Boundary) Contains(x, y float64) bool {
	return planar.MultiPolygonContains(b.area, orb.Point{x, y})
}

// Polygons returns the number of polygons in the area.
func (b *Boundary) Polygons() int {
	return len(b.area)
}

// LoadGeoJSON reads a boundary from a GeoJSON file holding a FeatureCollection,
// a single Feature, or a bare Polygon/MultiPolygon geometry. Non-areal
// geometries are ignored; a file with no polygon at all is an error.
func LoadGeoJSON(path string) (*Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundary: %w", err)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON is LoadGeoJSON on an in-memory document.
func ParseGeoJSON(data []byte) (*Boundary, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse boundary: %w", err)
	}

	var geometries []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parse boundary feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parse boundary feature: %w", err)
		}
		geometries = append(geometries, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parse boundary geometry: %w", err)
		}
		geometries = append(geometries, g.Geometry())
	}

	b := &Boundary{}
	for _, g := range geometries {
		switch v := g.(type) {
		case orb.Polygon:
			b.area = append(b.area, v)
		case orb.MultiPolygon:
			b.area = append(b.area, v...)
		}
	}
	if len(b.area) == 0 {
		return nil, errors.New("boundary contains no polygon")
	}
	return b, nil
}
