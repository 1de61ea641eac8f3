package domain

import (
	"fmt"
	"sort"
)

// Measurement is one normalized reading. Its identity is
// (StationID, Type, Unit, Timestamp).
type Measurement struct {
	StationID string  `json:"station_id"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
}

// Key returns the natural key of the measurement joined with '|'.
func (m Measurement) Key() string {
	return m.StationID + "|" + m.Type + "|" + m.Unit + "|" + m.Timestamp
}

// canonicalNames translates provider labels to internal names. Extending it is
// a code change on purpose.
var canonicalNames = map[string]string{
	"Débit":                         "streamflow",
	"Humidité relative.2 mètres":    "rel_hum",
	"Niveau":                        "level",
	"Précipitation":                 "precip_tot",
	"Température Maximum":           "temp_max",
	"Température Minimum":           "temp_min",
	"Épaisseur de neige":            "snow_depth",
	"Équivalent en eau de la neige": "swe",
}

// CanonicalName returns the internal name for a provider variable label.
func CanonicalName(variable string) (string, bool) {
	name, ok := canonicalNames[variable]
	return name, ok
}

// Normalize converts the readings of one variable into measurements. An
// unknown variable rejects the whole series; a non-numeric reading rejects
// only that reading. Valid readings are returned alongside the errors, sorted
// by timestamp.
func Normalize(readings map[string]FlexString, variable, unit, stationID string) ([]Measurement, []error) {
	name, ok := CanonicalName(variable)
	if !ok {
		return nil, []error{&RecordError{StationID: stationID, Variable: variable, Err: ErrUnknownVariable}}
	}

	timestamps := make([]string, 0, len(readings))
	for ts := range readings {
		timestamps = append(timestamps, ts)
	}
	sort.Strings(timestamps)

	out := make([]Measurement, 0, len(readings))
	var errs []error
	for _, ts := range timestamps {
		v, err := readings[ts].Float()
		if err != nil {
			errs = append(errs, &RecordError{
				StationID: stationID,
				Variable:  variable,
				Timestamp: ts,
				Err:       fmt.Errorf("%w: %w", ErrInvalidValue, err),
			})
			continue
		}
		out = append(out, Measurement{
			StationID: stationID,
			Type:      name,
			Value:     v,
			Unit:      unit,
			Timestamp: ts,
		})
	}
	return out, errs
}

// NormalizeStation normalizes every variable series of a station entry. One
// bad series or reading never hides the others.
func NormalizeStation(entry StationEntry) ([]Measurement, []error) {
	var (
		out  []Measurement
		errs []error
	)
	for _, series := range entry.Composition {
		ms, serr := Normalize(series.Readings, series.Variable, series.Unit, entry.ID)
		out = append(out, ms...)
		errs = append(errs, serr...)
	}
	return out, errs
}
