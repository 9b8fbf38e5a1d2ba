// Package schedule implements the schedule command, which repeats the crawl
// on a cron spec until interrupted.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// RunFunc performs one crawl.
type RunFunc func(ctx context.Context) error

// Scheduler fires RunFunc on a cron spec. A tick that arrives while a run
// is still in progress is skipped.
type Scheduler struct {
	spec    string
	run     RunFunc
	running atomic.Bool
	skipped atomic.Int64
	logger  logger.Logger
}

// New creates a Scheduler for spec, a standard five-field cron expression
// or a descriptor such as @daily.
func New(spec string, run RunFunc, log logger.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		spec:   spec,
		run:    run,
		logger: log.With(logger.Component("scheduler")),
	}, nil
}

// Run starts the cron loop and blocks until ctx is cancelled and any run in
// progress has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule crawl: %w", err)
	}

	c.Start()
	s.logger.Info("Scheduler started", logger.String("cron", s.spec))
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

// Skipped is the number of ticks dropped because a run was in progress.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("Previous crawl still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if err := s.run(ctx); err != nil {
		s.logger.Error("Scheduled crawl failed", logger.Err(err))
	}
}
