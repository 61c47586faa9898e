package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// loopWorker counts cycles and honors cancellation at the sleep boundary,
// like the real workers.
type loopWorker struct {
	name      string
	interval  time.Duration
	cycles    atomic.Int64
	cycleTime time.Duration
}

func (w *loopWorker) Name() string { return w.name }

func (w *loopWorker) Run(ctx context.Context) {
	for {
		time.Sleep(w.cycleTime)
		w.cycles.Add(1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

type panicWorker struct{}

func (panicWorker) Name() string        { return "panicker" }
func (panicWorker) Run(context.Context) { panic("broken worker") }

func TestSupervisorStopWaitsForInFlightCycle(t *testing.T) {
	w := &loopWorker{name: "slow", interval: time.Hour, cycleTime: 100 * time.Millisecond}

	s := NewSupervisor(testLogger())
	s.Register(w)
	s.Start(context.Background())

	// Stop while the first cycle is still running.
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}

	// The in-flight cycle completed; no further cycle started.
	require.EqualValues(t, 1, w.cycles.Load())
}

func TestSupervisorRunsWorkersIndependently(t *testing.T) {
	a := &loopWorker{name: "a", interval: time.Hour}
	b := &loopWorker{name: "b", interval: time.Hour}

	s := NewSupervisor(testLogger())
	s.Register(a)
	s.Register(b)
	s.Start(context.Background())

	// Both run their first cycle immediately, without waiting for a tick.
	assert.Eventually(t, func() bool {
		return a.cycles.Load() >= 1 && b.cycles.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Wait()
}

func TestSupervisorContainsPanics(t *testing.T) {
	healthy := &loopWorker{name: "healthy", interval: 10 * time.Millisecond}

	s := NewSupervisor(testLogger())
	s.Register(panicWorker{})
	s.Register(healthy)
	s.Start(context.Background())

	// The panicking worker dies; the healthy one keeps cycling.
	assert.Eventually(t, func() bool {
		return healthy.cycles.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Wait()
}
