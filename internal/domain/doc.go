// Package domain models the Hydro-Québec hydrometric open-data feed and the
// measurements derived from it.
//
// # Data Source
//
// Hydro-Québec publishes a single JSON document listing every station of its
// hydrometric and meteorological network together with the most recent
// readings, at
// https://www.hydroquebec.com/data/documents-donnees/donnees-ouvertes/json/Donnees_VUE_STATIONS_ET_TARAGES.json.
// The document is regenerated upstream several times a day and has no version
// marker; drift in its shape surfaces as a normalization error, not as a
// schema validation failure. Only the envelope is decoded up front: each
// station entry is decoded on its own when it is needed, so one drifted entry
// never hides the others, and the payload bytes are archived as received.
//
// # Feed Conventions
//
// Document shape:
//
//	{"Station": [
//	  {"identifiant": "021601", "nom": "Romaine", "xcoord": "-63.5", "ycoord": "50.6",
//	   "Composition": [
//	     {"type_point_donnee": "Niveau", "nom_unite_mesure": "m", "pas_temps": "60",
//	      "type_mesure": "Niveau d'eau", "Donnees": {"2023-01-01T00:00": "10.5"}}]}]}
//
// Coordinates and readings arrive either as JSON strings or as JSON numbers
// depending on the station. Both are kept verbatim as text (see [FlexString])
// and parsed where they are used, so a non-numeric value is reported against
// the record that carries it.
//
// Timestamps are used verbatim as the feed writes them. They are never
// reparsed or converted to another time zone; the storage key compares them as
// opaque strings.
//
// # Canonical Variable Names
//
// Provider labels are French and contain accents and spaces. They are mapped
// to short canonical names through a closed table (see [CanonicalName]).
// A label missing from the table is a per-record error: the reading is
// rejected rather than stored under a guessed name.
//
//	Débit                          → streamflow
//	Humidité relative.2 mètres     → rel_hum
//	Niveau                         → level
//	Précipitation                  → precip_tot
//	Température Maximum            → temp_max
//	Température Minimum            → temp_min
//	Épaisseur de neige             → snow_depth
//	Équivalent en eau de la neige  → swe
//
// # Identity
//
// A measurement is identified by (station_id, type, unit, timestamp). Writing
// the same key twice replaces the stored value, so re-ingesting an overlapping
// feed window is idempotent.
package domain
