package archive

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T, ts time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(ts))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// sampleFeed carries fields the feed model does not decode: a top-level
// extraction date, a station type and rating-curve data.
const sampleFeed = `{"date_extraction":"2024-03-07 12:30","Station":[{"identifiant":"021601","nom":"Romaine",` +
	`"type_station":"Hydrométrique","xcoord":-63.2,"ycoord":"50.3",` +
	`"Tarage":[{"date_debut":"2020-01-01","coefficients":[12.5,0.75]}],` +
	`"Composition":[{"type_point_donnee":"Niveau","nom_unite_mesure":"m","pas_temps":"60",` +
	`"type_mesure":"Niveau d'eau","Donnees":{"2023-01-01T00:00":10.5,"2023-01-01T01:00":null}}]}]}`

func sampleDoc(t *testing.T) *domain.FeedDocument {
	t.Helper()
	doc, err := domain.ParseFeedDocument([]byte(sampleFeed))
	require.NoError(t, err)
	return doc
}

func rawOf(t *testing.T, doc *domain.FeedDocument) string {
	t.Helper()
	raw, err := doc.Raw()
	require.NoError(t, err)
	return string(raw)
}

func TestManager_FileName(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 7, 12, 40, 59, 0, time.Local))

	m := NewManager(t.TempDir(), "")
	assert.Equal(t, "hq_open_data_24-03-07--12-40.json.zst", m.FileName())

	m = NewManager(t.TempDir(), "custom")
	assert.Equal(t, "custom_24-03-07--12-40.json.zst", m.FileName())
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 7, 12, 40, 0, 0, time.Local))
	m := NewManager(filepath.Join(t.TempDir(), "nested", "archive"), "")

	path, err := m.Snapshot(sampleDoc(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.Dir(), "hq_open_data_24-03-07--12-40.json.zst"), path)

	got, err := Restore(path)
	require.NoError(t, err)
	assert.Equal(t, sampleFeed, rawOf(t, got), "payload restored byte for byte")

	var want, restored map[string]any
	require.NoError(t, json.Unmarshal([]byte(sampleFeed), &want))
	require.NoError(t, json.Unmarshal([]byte(rawOf(t, got)), &restored))
	if diff := cmp.Diff(want, restored); diff != "" {
		t.Fatalf("restored document mismatch (-want +got):\n%s", diff)
	}

	romaine, err := got.Stations[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, domain.FlexString("10.5"), romaine.Composition[0].Readings["2023-01-01T00:00"])
}

func TestSnapshotRestore_InMemoryDocument(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 7, 12, 40, 0, 0, time.Local))
	doc, err := domain.NewFeedDocument(domain.StationEntry{ID: "021601", Name: "Romaine", X: "-63.2", Y: "50.3"})
	require.NoError(t, err)

	path, err := NewManager(t.TempDir(), "").Snapshot(doc)
	require.NoError(t, err)

	got, err := Restore(path)
	require.NoError(t, err)
	assert.JSONEq(t, rawOf(t, doc), rawOf(t, got))
}

func TestSnapshot_SameMinuteDoesNotOverwrite(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 7, 12, 40, 0, 0, time.Local))
	m := NewManager(t.TempDir(), "")

	first, err := m.Snapshot(sampleDoc(t))
	require.NoError(t, err)
	before, err := os.ReadFile(first)
	require.NoError(t, err)

	_, err = m.Snapshot(&domain.FeedDocument{Stations: []domain.RawStation{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))

	after, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, before, after, "first archive untouched")
}

func TestSnapshot_NilDocument(t *testing.T) {
	_, err := NewManager(t.TempDir(), "").Snapshot(nil)
	require.Error(t, err)
}

func TestRestore_PlainJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hq_open_data_24-03-07--12-40.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Station":[{"identifiant":"1","nom":"A","xcoord":"1","ycoord":"2","Composition":[]}]}`), 0o600))

	doc, err := Restore(path)
	require.NoError(t, err)
	require.Len(t, doc.Stations, 1)
	station, err := doc.Stations[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "A", station.Name)
}

func TestRestore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json.zst")
	require.NoError(t, os.WriteFile(path, []byte("definitely not zstd"), 0o600))

	_, err := Restore(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestManager_List(t *testing.T) {
	m := NewManager(t.TempDir(), "")

	for _, ts := range []time.Time{
		time.Date(2024, 3, 8, 12, 40, 0, 0, time.Local),
		time.Date(2024, 3, 7, 12, 40, 0, 0, time.Local),
	} {
		domain.SetClock(clockwork.NewFakeClockAt(ts))
		_, err := m.Snapshot(sampleDoc(t))
		require.NoError(t, err)
	}
	domain.SetClock(nil)
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), nil, 0o600))

	paths, err := m.List()
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "hq_open_data_24-03-07--12-40.json.zst", filepath.Base(paths[0]))
	assert.Equal(t, "hq_open_data_24-03-08--12-40.json.zst", filepath.Base(paths[1]))
}
