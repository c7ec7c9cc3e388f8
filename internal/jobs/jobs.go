// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"storefront.org/internal/obs"
)

// Task performs one maintenance pass and reports how many records it
// touched.
type Task func(ctx context.Context) (int, error)

// Scheduler owns a cron runner and the tasks registered on it.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu    sync.Mutex
	tasks map[string]Task
}

// NewScheduler creates a scheduler. Each run gets timeout to finish.
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		tasks:   make(map[string]Task),
	}
}

// Add schedules task under name. An empty spec disables the task.
func (s *Scheduler) Add(name, spec string, task Task) error {
	if spec == "" {
		obs.Logger().WithField("job", name).Info("job disabled")
		return nil
	}
	s.mu.Lock()
	if _, ok := s.tasks[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("jobs: %s already registered", name)
	}
	s.tasks[name] = task
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.Run(context.Background(), name) }); err != nil {
		s.mu.Lock()
		delete(s.tasks, name)
		s.mu.Unlock()
		return fmt.Errorf("jobs: schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Run executes the named task immediately.
func (s *Scheduler) Run(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("jobs: unknown job %s", name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	n, err := task(ctx)
	entry := obs.Logger().WithFields(logrus.Fields{
		"job":         name,
		"affected":    n,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("job failed")
		return n, err
	}
	entry.Info("job completed")
	return n, nil
}

// Start begins running scheduled tasks in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running tasks or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
