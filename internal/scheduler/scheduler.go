package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one periodic pipeline run
type Job func(ctx context.Context)

// Scheduler triggers Job on a cron schedule. At most one Job runs at a time:
// a tick that fires while the previous run is still in progress is skipped.
type Scheduler struct {
	Cron   *cron.Cron
	Job    Job
	Logger logrus.FieldLogger

	ctx     context.Context
	entryID cron.EntryID
	running atomic.Bool
}

// NewScheduler registers job under the standard five-field cron spec
func NewScheduler(ctx context.Context, spec string, job Job, logger logrus.FieldLogger) (*Scheduler, error) {
	s := &Scheduler{
		Cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.PrintfLogger(logger)))),
		Job:    job,
		Logger: logger,
		ctx:    ctx,
	}

	id, err := s.Cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("register schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.WithField("next_run", s.Next().Format(time.RFC3339)).Info("scheduler started")
}

// Stop stops the scheduler and returns a context done once the running job has finished
func (s *Scheduler) Stop() context.Context {
	ctx := s.Cron.Stop()
	s.Logger.Info("scheduler stopped")
	return ctx
}

// Next returns the time of the next scheduled run, zero before Start
func (s *Scheduler) Next() time.Time {
	return s.Cron.Entry(s.entryID).Next
}

// Running reports whether a job is in progress
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Trigger runs the job now unless one is already in progress.
// It reports whether the job ran.
func (s *Scheduler) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	defer s.running.Store(false)

	if err := s.ctx.Err(); err != nil {
		return false
	}
	s.Job(s.ctx)
	return true
}

func (s *Scheduler) tick() {
	if !s.Trigger() {
		s.Logger.Warn("previous run still in progress, skipping scheduled run")
	}
}
