package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
	"github.com/couchcryptid/hydro-ingest/internal/observability"
)

// Fetcher retrieves one copy of the feed. It never retries.
type Fetcher interface {
	Fetch(ctx context.Context) (*domain.FeedDocument, domain.Outcome, error)
}

// Archiver keeps a raw copy of a fetched document.
type Archiver interface {
	Snapshot(doc *domain.FeedDocument) (string, error)
}

// MetadataStore reads and writes the selected-station side file.
type MetadataStore interface {
	Save(stations map[string]domain.Station) error
	Load() (map[string]domain.Station, error)
}

// Store is the relational measurement store.
type Store interface {
	CreateSchema(ctx context.Context) error
	UpsertStations(ctx context.Context, stations []domain.Station) error
	UpsertMeasurements(ctx context.Context, batch []domain.Measurement) error
}

// Publisher forwards a committed station batch downstream.
type Publisher interface {
	Publish(ctx context.Context, batch []domain.Measurement) error
}

// Notifier delivers the escalation alert.
type Notifier interface {
	Notify(ctx context.Context, reason error) error
}

// Stages groups the collaborators of an Orchestrator. Publisher may be nil.
type Stages struct {
	Fetcher   Fetcher
	Archiver  Archiver
	Metadata  MetadataStore
	Store     Store
	Publisher Publisher
	Notifier  Notifier
}

// Settings controls the retry loop. A nil Clock means real time.
type Settings struct {
	MaxAttempts   int
	RetryInterval time.Duration
	Clock         clockwork.Clock
}

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress")

// Orchestrator drives fetch, archive, normalize and persist for one cycle at
// a time.
type Orchestrator struct {
	stages   Stages
	settings Settings
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	running sync.Mutex
	state   atomic.Int32
	ready   atomic.Bool

	mu          sync.Mutex
	lastSuccess time.Time
	lastError   string
}

// New creates an Orchestrator.
func New(stages Stages, settings Settings, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	clock := settings.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		stages:   stages,
		settings: settings,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// CheckReadiness returns nil once a cycle has completed successfully.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("no successful ingestion cycle yet")
	}
	return nil
}

// Status is a point-in-time view of the orchestrator for the health server.
type Status struct {
	State       string     `json:"state"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Status reports the current state and the outcome of the last cycle.
func (o *Orchestrator) Status() any {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{State: o.State().String(), LastError: o.lastError}
	if !o.lastSuccess.IsZero() {
		t := o.lastSuccess
		st.LastSuccess = &t
	}
	return st
}

func (o *Orchestrator) recordResult(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.lastError = err.Error()
		return
	}
	o.lastError = ""
	o.lastSuccess = o.clock.Now()
	o.ready.Store(true)
	o.metrics.LastSuccessfulRun.Set(float64(o.lastSuccess.Unix()))
}

// RunCycle performs one full ingestion cycle. It returns domain.ErrEscalated
// when the retry ceiling was reached, in which case nothing is archived or
// persisted. Per-station failures are logged and do not fail the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (err error) {
	if !o.running.TryLock() {
		return ErrCycleInProgress
	}
	defer o.running.Unlock()

	start := o.clock.Now()
	defer func() {
		o.metrics.CycleDuration.Observe(o.clock.Since(start).Seconds())
		o.recordResult(err)
		o.setState(StateIdle)
	}()

	doc, attempts, err := o.fetchWithRetry(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrEscalated) {
			o.escalate(ctx, err)
		}
		return err
	}
	o.logger.Info("feed retrieved", "attempts", attempts, "stations", len(doc.Stations))

	o.archive(doc)

	return o.ingest(ctx, doc)
}

// Ingest normalizes and persists an already retrieved document. It is the
// replay path for archived snapshots: nothing is fetched or archived.
func (o *Orchestrator) Ingest(ctx context.Context, doc *domain.FeedDocument) error {
	if !o.running.TryLock() {
		return ErrCycleInProgress
	}
	defer o.running.Unlock()
	defer o.setState(StateIdle)

	return o.ingest(ctx, doc)
}

// fetchWithRetry calls the fetcher until it succeeds or MaxAttempts attempts
// have been made, waiting RetryInterval between attempts. No wait follows the
// final attempt.
func (o *Orchestrator) fetchWithRetry(ctx context.Context) (*domain.FeedDocument, int, error) {
	var lastErr error
	for attempt := 1; attempt <= o.settings.MaxAttempts; attempt++ {
		o.setState(StateFetching)

		doc, outcome, err := o.stages.Fetcher.Fetch(ctx)
		o.metrics.FetchAttempts.WithLabelValues(outcome.String()).Inc()
		if outcome == domain.OutcomeSuccess && doc != nil {
			return doc, attempt, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: fetch returned no document", domain.ErrNetworkUnreachable)
		}
		lastErr = err
		o.logger.Warn("feed retrieval failed",
			"attempt", attempt,
			"max_attempts", o.settings.MaxAttempts,
			"outcome", outcome.String(),
			"error", err,
		)

		if attempt == o.settings.MaxAttempts {
			break
		}
		o.setState(StateRetrying)
		if err := o.wait(ctx); err != nil {
			return nil, attempt, err
		}
	}
	return nil, o.settings.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", domain.ErrEscalated, o.settings.MaxAttempts, lastErr)
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if o.settings.RetryInterval <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.clock.After(o.settings.RetryInterval):
		return nil
	}
}

func (o *Orchestrator) escalate(ctx context.Context, reason error) {
	o.setState(StateEscalated)
	o.metrics.Escalations.Inc()
	o.logger.Error("retry ceiling reached, cycle abandoned", "attempts", o.settings.MaxAttempts, "error", reason)

	if o.stages.Notifier == nil {
		return
	}
	if err := o.stages.Notifier.Notify(ctx, reason); err != nil {
		o.logger.Error("escalation alert failed", "error", err)
	}
}

// archive snapshots the document. A failed snapshot is logged and the cycle
// continues so the data still reaches the store.
func (o *Orchestrator) archive(doc *domain.FeedDocument) {
	o.setState(StateArchiving)
	path, err := o.stages.Archiver.Snapshot(doc)
	if err != nil {
		o.metrics.Snapshots.WithLabelValues("failed").Inc()
		o.logger.Error("archive snapshot failed", "error", err)
		return
	}
	o.metrics.Snapshots.WithLabelValues("written").Inc()
	o.logger.Info("feed archived", "path", path)
}

func (o *Orchestrator) ingest(ctx context.Context, doc *domain.FeedDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", domain.ErrMalformedPayload)
	}
	selected, err := o.stages.Metadata.Load()
	if err != nil {
		return fmt.Errorf("load station metadata: %w", err)
	}

	var persisted, failed, rejected int
	seen := make(map[string]bool, len(selected))
	for i, raw := range doc.Stations {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("ingestion interrupted", "remaining_entries", len(doc.Stations)-i, "error", err)
			return err
		}

		id, err := raw.ID()
		if err != nil {
			o.logger.Warn("unidentifiable station entry skipped", "index", i, "error", err)
			continue
		}
		if _, ok := selected[id]; !ok {
			continue
		}
		seen[id] = true

		n, nerr, err := o.processStation(ctx, raw)
		rejected += nerr
		if err != nil {
			failed++
			o.metrics.StationFailures.Inc()
			o.logger.Error("station ingestion failed", "station_id", id, "error", err)
			continue
		}
		persisted += n
	}

	for id := range selected {
		if !seen[id] {
			o.logger.Warn("selected station missing from feed", "station_id", id)
		}
	}

	o.logger.Info("ingestion cycle complete",
		"stations", len(seen),
		"measurements", persisted,
		"rejected", rejected,
		"failed_stations", failed,
	)
	return ctx.Err()
}

// processStation decodes, normalizes and persists one station. It returns the
// number of measurements written and the number of rejected readings.
func (o *Orchestrator) processStation(ctx context.Context, raw domain.RawStation) (int, int, error) {
	o.setState(StateNormalizing)
	entry, err := raw.Decode()
	if err != nil {
		return 0, 0, err
	}
	batch, errs := domain.NormalizeStation(entry)
	for _, err := range errs {
		o.metrics.NormalizeErrors.Inc()
		o.logger.Warn("reading rejected", "station_id", entry.ID, "error", err)
	}
	if len(batch) == 0 {
		return 0, len(errs), nil
	}

	o.setState(StatePersisting)
	if err := o.stages.Store.UpsertMeasurements(ctx, batch); err != nil {
		return 0, len(errs), err
	}
	o.metrics.MeasurementsPersisted.Add(float64(len(batch)))

	if o.stages.Publisher != nil {
		if err := o.stages.Publisher.Publish(ctx, batch); err != nil {
			o.metrics.PublishErrors.Inc()
			o.logger.Warn("measurement publish failed", "station_id", entry.ID, "error", err)
		}
	}
	return len(batch), len(errs), nil
}
