package domain

import "fmt"

// MeasurementType describes one variable a station reports.
type MeasurementType struct {
	Unit        string `yaml:"unit" json:"unit"`
	Timestep    string `yaml:"timestep" json:"timestep"`
	Description string `yaml:"measurement_description" json:"measurement_description"`
}

// Station is the descriptive metadata of a selected station. It is built once
// during initialisation and treated as a value afterwards.
type Station struct {
	Name             string                     `yaml:"name" json:"name"`
	Identifier       string                     `yaml:"identifier" json:"identifier"`
	MeasurementTypes map[string]MeasurementType `yaml:"measurement_types" json:"measurement_types"`
}

// Boundary is the containment predicate for a study area. Points are given as
// (x, y) in the feed's coordinate order, i.e. (longitude, latitude).
type Boundary interface {
	Contains(x, y float64) bool
}

// SelectStations returns the identifiers of the stations whose coordinates
// lie inside the boundary. Only identifiers and coordinates are read. A
// non-numeric coordinate fails the whole selection so a bad upstream record
// cannot silently shrink the study area.
func SelectStations(doc *FeedDocument, boundary Boundary) (map[string]struct{}, error) {
	selected := make(map[string]struct{})
	for i, raw := range doc.Stations {
		h, err := raw.header()
		if err != nil {
			return nil, fmt.Errorf("%w: station entry %d: %w", ErrInvalidCoordinate, i, err)
		}
		x, err := h.X.Float()
		if err != nil {
			return nil, fmt.Errorf("%w: station %s xcoord: %w", ErrInvalidCoordinate, h.ID, err)
		}
		y, err := h.Y.Float()
		if err != nil {
			return nil, fmt.Errorf("%w: station %s ycoord: %w", ErrInvalidCoordinate, h.ID, err)
		}
		if boundary.Contains(x, y) {
			selected[string(h.ID)] = struct{}{}
		}
	}
	return selected, nil
}

// ExtractStations builds the metadata of the selected stations from the feed.
// Unselected entries are not decoded. Later entries of the same variable
// overwrite earlier ones.
func ExtractStations(doc *FeedDocument, ids map[string]struct{}) (map[string]Station, error) {
	out := make(map[string]Station, len(ids))
	for _, raw := range doc.Stations {
		id, err := raw.ID()
		if err != nil {
			return nil, err
		}
		if _, ok := ids[id]; !ok {
			continue
		}
		s, err := raw.Decode()
		if err != nil {
			return nil, err
		}
		types := make(map[string]MeasurementType, len(s.Composition))
		for _, c := range s.Composition {
			types[c.Variable] = MeasurementType{
				Unit:        c.Unit,
				Timestep:    c.Timestep,
				Description: c.Description,
			}
		}
		out[s.ID] = Station{
			Name:             s.Name,
			Identifier:       s.ID,
			MeasurementTypes: types,
		}
	}
	return out, nil
}
