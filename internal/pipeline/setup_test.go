package pipeline_test

import (
	"context"
	"testing"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box is an edge-inclusive rectangle.
type box struct{ minX, minY, maxX, maxY float64 }

func (b box) Contains(x, y float64) bool {
	return x >= b.minX && x <= b.maxX && y >= b.minY && y <= b.maxY
}

var coteNord = box{minX: -70, minY: 49.5, maxX: -60, maxY: 52}

func TestInitialize(t *testing.T) {
	h := newHarness(t, 1, 0, success(testDoc()))
	h.metadata = &mockMetadata{}
	h.build(1, 0)

	stations, err := h.orch.Initialize(context.Background(), coteNord)
	require.NoError(t, err)

	assert.Len(t, stations, 2)
	assert.Equal(t, stations, h.metadata.saved)
	assert.Equal(t, "m", stations["021601"].MeasurementTypes["Niveau"].Unit)
	assert.Equal(t, 1, h.store.schemaCreated)
	require.Len(t, h.store.stations, 2)
	assert.Equal(t, "021601", h.store.stations[0].Identifier)
	assert.Equal(t, "023402", h.store.stations[1].Identifier)
	assert.Empty(t, h.archiver.docs, "setup does not archive")
}

func TestInitialize_FetchFailure(t *testing.T) {
	h := newHarness(t, 5, 0, unreachable())

	_, err := h.orch.Initialize(context.Background(), coteNord)
	require.ErrorIs(t, err, domain.ErrNetworkUnreachable)
	assert.Equal(t, 1, h.fetcher.Calls(), "setup does not retry")
	assert.Zero(t, h.notifier.Count())
}

func TestInitialize_InvalidCoordinate(t *testing.T) {
	entries := testEntries()
	entries[2].Y = "north"
	h := newHarness(t, 1, 0, success(docOf(entries...)))
	h.metadata = &mockMetadata{}
	h.build(1, 0)

	_, err := h.orch.Initialize(context.Background(), coteNord)
	require.ErrorIs(t, err, domain.ErrInvalidCoordinate)
	assert.Nil(t, h.metadata.saved, "nothing written")
	assert.Zero(t, h.store.schemaCreated)
}

func TestInitialize_MetadataSaveFailure(t *testing.T) {
	h := newHarness(t, 1, 0, success(testDoc()))
	h.metadata = &mockMetadata{saveErr: domain.ErrSerialization}
	h.build(1, 0)

	_, err := h.orch.Initialize(context.Background(), coteNord)
	require.ErrorIs(t, err, domain.ErrSerialization)
	assert.Zero(t, h.store.schemaCreated)
}

func TestInitialize_IgnoresDriftOutsideBoundary(t *testing.T) {
	doc := testDoc()
	doc.Stations = append(doc.Stations,
		domain.RawStation(`{"identifiant":"8001","xcoord":"-75","ycoord":"45","Composition":[{"Donnees":[]}]}`))
	h := newHarness(t, 1, 0, success(doc))
	h.metadata = &mockMetadata{}
	h.build(1, 0)

	stations, err := h.orch.Initialize(context.Background(), coteNord)
	require.NoError(t, err)
	assert.Len(t, stations, 2)
}
