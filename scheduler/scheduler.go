// Package scheduler runs the monitor cycle on a cron expression or a fixed
// interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNoSchedule is returned by Start when neither a cron expression nor an
// interval is configured.
var ErrNoSchedule = errors.New("no schedule configured")

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler triggers a Job. Runs never overlap: a tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	expr     string
	interval time.Duration
	job      Job
	logger   *slog.Logger

	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
}

// New returns a scheduler for job. expr wins over interval when both are set.
func New(expr string, interval time.Duration, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		expr:     expr,
		interval: interval,
		job:      job,
		logger:   logger,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

// Start registers the schedule and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	switch {
	case s.expr != "":
		if _, err := s.cron.AddFunc(s.expr, func() { s.RunOnce(ctx) }); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.logger.Info("starting scheduler", slog.String("cron", s.expr))
		s.cron.Start()
	case s.interval > 0:
		s.logger.Info("starting scheduler", slog.Duration("interval", s.interval))
		s.ticker = time.NewTicker(s.interval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.RunOnce(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	default:
		return ErrNoSchedule
	}
	return nil
}

// RunOnce runs the job now unless a run is already in progress. It reports
// whether the job ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous run still in progress, skipping")
		return false
	}
	defer s.running.Store(false)

	if ctx.Err() != nil {
		return false
	}
	s.runs.Add(1)
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
		return true
	}
	s.logger.Info("scheduled run finished", slog.Duration("elapsed", time.Since(start)))
	return true
}

// Runs returns how many times the job has been started.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Skipped returns how many ticks were dropped because of an overlapping run.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

// Stop halts the schedule and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.wg.Wait()
	})
}
