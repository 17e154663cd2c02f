// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one scheduled run. ctx is cancelled when the run exceeds the
// job timeout.
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	timeout time.Duration
	fn      JobFunc
	running sync.Mutex
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*job
	logger *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:   c,
		jobs:   make(map[string]*job),
		logger: logger,
	}
}

// Add registers fn under name on a 5-field cron spec. A run still in progress
// when the next one is due causes that next run to be skipped.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, fn JobFunc) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, timeout: timeout, fn: fn}
	if _, err := s.cron.AddFunc(spec, func() { s.run(j) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", spec, name, err)
	}
	s.jobs[name] = j
	return nil
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers a registered job in the background (for testing/admin).
func (s *Scheduler) RunNow(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	go s.run(j)
	return nil
}

func (s *Scheduler) run(j *job) {
	if !j.running.TryLock() {
		s.logger.Warn("job still running, skipping", slog.String("job", j.name))
		return
	}
	defer j.running.Unlock()

	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := j.fn(ctx); err != nil {
		s.logger.Error("scheduled job failed",
			slog.String("job", j.name),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Debug("scheduled job completed",
		slog.String("job", j.name),
		slog.Duration("duration", time.Since(start)),
	)
}
