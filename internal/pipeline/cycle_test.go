package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/hydro-ingest/internal/adapter/archive"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/geo"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/hydroquebec"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/metadata"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/sqlite"
	"github.com/couchcryptid/hydro-ingest/internal/domain"
	"github.com/couchcryptid/hydro-ingest/internal/observability"
	"github.com/couchcryptid/hydro-ingest/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCycle_RealAdapters runs setup, two daily cycles and a replay against the
// SQLite store, the YAML side file and the archive directory.
func TestCycle_RealAdapters(t *testing.T) {
	feed, err := os.ReadFile(filepath.Join("..", "domain", "testdata", "feed_sample.json"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(feed)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 7, 12, 40, 0, 0, time.Local))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	dir := t.TempDir()
	logger := discardLogger()
	store := sqlite.NewStore(filepath.Join(dir, "hq_open_data.db"), logger)
	archives := archive.NewManager(filepath.Join(dir, "archive"), "")
	orch := pipeline.New(pipeline.Stages{
		Fetcher:  hydroquebec.NewClient(srv.URL, 5*time.Second, logger),
		Archiver: archives,
		Metadata: metadata.File{Path: filepath.Join(dir, "station_metadata.yaml")},
		Store:    store,
	}, pipeline.Settings{MaxAttempts: 3, RetryInterval: 0, Clock: clock}, logger, observability.NewMetricsForTesting())

	ctx := context.Background()
	area := geo.NewBoundary(orb.Polygon{orb.Ring{{-70, 49.5}, {-60, 49.5}, {-60, 52}, {-70, 52}, {-70, 49.5}}})

	stations, err := orch.Initialize(ctx, area)
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	require.NoError(t, orch.RunCycle(ctx))
	n, err := store.CountMeasurements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "three Romaine readings and one snow depth")

	romaine, err := store.Measurements(ctx, "021601")
	require.NoError(t, err)
	require.Len(t, romaine, 3)
	assert.Equal(t, "level", romaine[1].Type)

	// Next day: identical feed, no duplicate rows.
	clock.Advance(24 * time.Hour)
	require.NoError(t, orch.RunCycle(ctx))
	n, err = store.CountMeasurements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	paths, err := archives.List()
	require.NoError(t, err)
	require.Len(t, paths, 2, "one snapshot per cycle")

	doc, err := archive.Restore(paths[0])
	require.NoError(t, err)
	require.NoError(t, orch.Ingest(ctx, doc))
	n, err = store.CountMeasurements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "replay is idempotent")

	names, err := store.StationNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"021601": "Romaine", "023402": "Rivière-aux-Outardes"}, names)
}
