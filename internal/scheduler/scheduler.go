// Package scheduler runs a job on a fixed wall-clock interval. A tick that
// would overlap one still in progress is skipped, and stopping waits for
// the in-flight run to finish.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/signal-monitor/internal/metrics"
)

// DefaultInterval is the monitor cadence when none is configured.
const DefaultInterval = 15 * time.Second

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler fires Job every interval, first immediately.
type Scheduler struct {
	interval time.Duration
	job      Job

	running sync.Mutex
	wg      sync.WaitGroup
}

// New creates a scheduler. A non-positive interval uses DefaultInterval.
func New(interval time.Duration, job Job) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, job: job}
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run blocks until ctx is cancelled, then waits for any in-flight job.
// The job runs with a context that is not cancelled by ctx, so a started
// tick always completes.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	jobCtx := context.WithoutCancel(ctx)
	slog.Info("scheduler started", "interval", s.interval.String())

	s.Trigger(jobCtx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping, waiting for in-flight tick")
			s.wg.Wait()
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Trigger(jobCtx)
		}
	}
}

// Trigger starts the job in the background unless one is already running.
// It reports whether a run was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.TryLock() {
		metrics.TicksTotal.WithLabelValues("overlap").Inc()
		slog.Warn("previous tick still running, skipping")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("scheduled job panicked", "panic", r)
			}
		}()
		if err := s.job(ctx); err != nil {
			slog.Error("scheduled job failed", "err", err)
		}
	}()
	return true
}

// Wait blocks until no job is running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
