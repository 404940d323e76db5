// Package task provides the server's background scheduler: one-shot,
// delayed, and repeating jobs with cancellation and a clean shutdown.
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a cancellable handle for a scheduled job.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the task. Repeating tasks stop after the current run; a
// delayed task that has not fired yet never will.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task has fully stopped.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Scheduler runs submitted jobs on their own goroutines and waits for all
// of them on Stop. Panics in jobs are contained and logged.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.Logger
}

func NewScheduler(log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel, log: log}
}

// Submit runs fn immediately on its own goroutine.
func (s *Scheduler) Submit(fn func(ctx context.Context)) *Task {
	return s.spawn(func(ctx context.Context) {
		s.run(ctx, fn)
	})
}

// After runs fn once after the delay, unless cancelled or stopped first.
func (s *Scheduler) After(delay time.Duration, fn func(ctx context.Context)) *Task {
	return s.spawn(func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.run(ctx, fn)
		case <-ctx.Done():
		}
	})
}

// Every runs fn on a fixed interval until cancelled or stopped.
func (s *Scheduler) Every(interval time.Duration, fn func(ctx context.Context)) *Task {
	return s.spawn(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx, fn)
			case <-ctx.Done():
				return
			}
		}
	})
}

func (s *Scheduler) spawn(body func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(s.ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		defer cancel()
		body(ctx)
	}()
	return t
}

func (s *Scheduler) run(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("scheduled task panic recovered", zap.Any("panic", rec))
		}
	}()
	fn(ctx)
}

// Stop cancels every outstanding task and blocks until all of them have
// returned.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
