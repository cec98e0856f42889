// Package scheduler runs named tasks on fixed intervals with an explicit
// start/stop lifecycle.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TaskFunc is one scheduled run of a task. Errors are logged, never fatal.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
}

// Scheduler owns a set of repeating tasks. Each task runs on its own ticker;
// a run is synchronous, so ticks that fire while a run is still in progress
// are dropped rather than executed concurrently.
type Scheduler struct {
	tasks   []task
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a task to run every interval. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// Start launches all registered tasks. It returns immediately; tasks stop
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	for _, t := range s.tasks {
		s.wg.Add(1)

		go func(t task) {
			defer s.wg.Done()
			s.runLoop(ctx, t)
		}(t)
	}
}

// Stop cancels all tasks and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, t task) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduled task stopped", slog.String("task", t.name))
			return
		case <-ticker.C:
			if err := t.fn(ctx); err != nil {
				slog.Error("scheduled task run failed",
					slog.String("task", t.name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
