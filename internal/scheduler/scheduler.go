package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one unit of scheduled work, typically a pipeline run.
type Job func(ctx context.Context) error

// Scheduler owns the main loop: it runs the job once immediately, then again
// every interval after the previous run finished. Runs never overlap.
type Scheduler struct {
	job      Job
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that runs job at the given interval.
func NewScheduler(job Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		job:      job,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the loop. A failing run is logged and the loop continues.
// It returns nil when ctx is cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "interval", s.interval.String())

	for run := 1; ; run++ {
		s.runOnce(ctx, run)

		next := time.Now().Add(s.interval)
		s.logger.Info("next run scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("shutting down scheduler")
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, run int) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed",
			"run", run,
			"duration", time.Since(start),
			"error", err,
		)
	}
}
