package pipeline

import (
	"context"
	"time"
)

// RunDaily runs one cycle per day at the given offset from local midnight
// until the context is cancelled. Cycles run on this goroutine, so a slow
// cycle delays the next one instead of overlapping it.
func (o *Orchestrator) RunDaily(ctx context.Context, at time.Duration) error {
	o.metrics.PipelineRunning.Set(1)
	defer o.metrics.PipelineRunning.Set(0)

	for {
		now := o.clock.Now()
		next := NextRun(now, at)
		o.logger.Info("next ingestion cycle scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			o.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-o.clock.After(next.Sub(now)):
		}

		if err := o.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				o.logger.Info("scheduler stopping", "reason", ctx.Err())
				return nil
			}
			o.logger.Error("ingestion cycle failed", "error", err)
		}
	}
}

// NextRun returns the first instant strictly after now that falls at the
// given offset from local midnight.
func NextRun(now time.Time, at time.Duration) time.Time {
	y, m, d := now.Date()
	next := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(at)
	if !next.After(now) {
		next = time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Add(at)
	}
	return next
}
