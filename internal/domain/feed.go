package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FeedDocument is a Hydro-Québec open-data payload. Station entries stay
// undecoded until a caller needs them, so a drifted entry only fails itself.
// The payload bytes are kept for archiving.
type FeedDocument struct {
	Stations []RawStation `json:"Station"`

	raw []byte
}

// NewFeedDocument builds a document from decoded station entries.
func NewFeedDocument(entries ...StationEntry) (*FeedDocument, error) {
	doc := &FeedDocument{Stations: make([]RawStation, 0, len(entries))}
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("%w: encode station %s: %w", ErrSerialization, e.ID, err)
		}
		doc.Stations = append(doc.Stations, data)
	}
	return doc, nil
}

// Raw returns the payload as it was received, without a byte order mark.
// Documents built in memory are encoded on demand.
func (d *FeedDocument) Raw() ([]byte, error) {
	if d.raw != nil {
		return d.raw, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("%w: encode feed document: %w", ErrSerialization, err)
	}
	return data, nil
}

// RawStation is one undecoded element of the Station collection.
type RawStation []byte

// MarshalJSON returns the element verbatim.
func (r RawStation) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON keeps a copy of the element.
func (r *RawStation) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

type stationHeader struct {
	ID FlexString `json:"identifiant"`
	X  FlexString `json:"xcoord"`
	Y  FlexString `json:"ycoord"`
}

func (r RawStation) header() (stationHeader, error) {
	var h stationHeader
	if err := json.Unmarshal(r, &h); err != nil {
		return stationHeader{}, err
	}
	return h, nil
}

// ID returns the station identifier without decoding the rest of the entry.
func (r RawStation) ID() (string, error) {
	h, err := r.header()
	if err != nil {
		return "", fmt.Errorf("%w: station identifier: %w", ErrMalformedPayload, err)
	}
	return string(h.ID), nil
}

// Decode decodes the whole entry.
func (r RawStation) Decode() (StationEntry, error) {
	var e StationEntry
	if err := json.Unmarshal(r, &e); err != nil {
		id, _ := r.ID()
		return StationEntry{}, fmt.Errorf("%w: station %q: %w", ErrMalformedPayload, id, err)
	}
	return e, nil
}

// StationEntry is one station of the feed with its variable compositions.
type StationEntry struct {
	ID          string           `json:"identifiant"`
	Name        string           `json:"nom"`
	X           FlexString       `json:"xcoord"` // longitude
	Y           FlexString       `json:"ycoord"` // latitude
	Composition []VariableSeries `json:"Composition"`
}

// VariableSeries is one measured variable of a station and its readings.
type VariableSeries struct {
	Variable    string                `json:"type_point_donnee"`
	Unit        string                `json:"nom_unite_mesure"`
	Timestep    string                `json:"pas_temps"`
	Description string                `json:"type_mesure"`
	Readings    map[string]FlexString `json:"Donnees"`
}

// FlexString holds a scalar that the feed writes either as a JSON string or a
// JSON number. The literal text is preserved; null decodes to "".
type FlexString string

// UnmarshalJSON accepts a string, a number, or null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("flex value %s: %w", data, err)
		}
		*f = FlexString(n.String())
		return nil
	}
}

// Float parses the value as a float64.
func (f FlexString) Float() (float64, error) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, nil
}

// ParseFeedDocument decodes the envelope of a raw feed payload. Only the
// Station collection is checked; its elements are decoded on demand. A
// leading UTF-8 byte order mark is ignored.
func ParseFeedDocument(data []byte) (*FeedDocument, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var doc FeedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if doc.Stations == nil {
		return nil, fmt.Errorf("%w: missing Station collection", ErrMalformedPayload)
	}
	doc.raw = data
	return &doc, nil
}
