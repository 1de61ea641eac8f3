package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
)

// Initialize performs the one-time setup: fetch the feed once, select the
// stations inside the boundary, write the metadata side file, create the
// schema and insert the selected stations. Re-running it refreshes the
// metadata file; existing station rows keep their names.
func (o *Orchestrator) Initialize(ctx context.Context, boundary domain.Boundary) (map[string]domain.Station, error) {
	if !o.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer o.running.Unlock()
	defer o.setState(StateIdle)

	o.setState(StateFetching)
	doc, outcome, err := o.stages.Fetcher.Fetch(ctx)
	o.metrics.FetchAttempts.WithLabelValues(outcome.String()).Inc()
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: fetch returned no document", domain.ErrNetworkUnreachable)
	}

	ids, err := domain.SelectStations(doc, boundary)
	if err != nil {
		return nil, err
	}
	stations, err := domain.ExtractStations(doc, ids)
	if err != nil {
		return nil, err
	}
	o.logger.Info("stations selected", "feed_stations", len(doc.Stations), "selected", len(stations))

	if err := o.stages.Metadata.Save(stations); err != nil {
		return nil, fmt.Errorf("save station metadata: %w", err)
	}
	if err := o.stages.Store.CreateSchema(ctx); err != nil {
		return nil, err
	}

	rows := make([]domain.Station, 0, len(stations))
	for _, s := range stations {
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Identifier < rows[j].Identifier })
	if err := o.stages.Store.UpsertStations(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert stations: %w", err)
	}

	return stations, nil
}
