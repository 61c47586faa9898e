// Package worker runs the background loops: the timeline updater, the
// status refresher and the stream listener, under one supervisor with shared
// cancellation.
package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Worker is a named background loop. Run must perform work and block on the
// context between cycles, returning promptly once the context is cancelled.
// An in-flight cycle is allowed to finish; cancellation is only observed at
// the sleep boundaries.
type Worker interface {
	Name() string
	Run(ctx context.Context)
}

// Supervisor launches a set of workers on a shared cancellable context and
// joins them on shutdown.
type Supervisor struct {
	logger  *slog.Logger
	workers []Worker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Register adds a worker. Must be called before Start.
func (s *Supervisor) Register(w Worker) {
	s.workers = append(s.workers, w)
}

// Start launches every registered worker as its own goroutine. A panic in a
// worker is recovered and logged and terminates that worker's loop; the
// remaining workers keep running.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("starting workers", "count", len(s.workers))
	for _, w := range s.workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("worker panicked, stopping its loop", "worker", w.Name(), "panic", r)
				}
			}()

			s.logger.Info("worker started", "worker", w.Name())
			w.Run(ctx)
			s.logger.Info("worker stopped", "worker", w.Name())
		}()
	}
}

// Stop signals every worker to shut down.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until every worker has observed cancellation and returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
