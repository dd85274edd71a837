package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner repeatedly drives a WorkerLoop and sleeps according to the
// outcome of each tick: poll_interval_ms after work, idle_backoff_ms when
// nothing was claimed, error_backoff_ms when the tick raised.
type Runner struct {
	Loop *WorkerLoop

	PollInterval  time.Duration
	IdleBackoff   time.Duration
	ErrorBackoff  time.Duration
	Logger        *slog.Logger

	ticksTotal      atomic.Int64
	claimsTotal     atomic.Int64
	idleTicksTotal  atomic.Int64
	errorsTotal     atomic.Int64

	ready atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Counters is a point-in-time snapshot of the Runner's process-wide
// metrics, the only mutable state shared across goroutines besides the
// Store itself.
type Counters struct {
	TicksTotal     int64
	ClaimsTotal    int64
	IdleTicksTotal int64
	ErrorsTotal    int64

	WorkerLoopEnabled bool
	WorkerLoopReady   bool
}

// Start begins the run loop in a background goroutine. The Runner is
// always "enabled"; "ready" flips true after the first completed tick.
func (r *Runner) Start(ctx context.Context) {
	r.stopCh = make(chan struct{})
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop signals the run loop to exit and waits for it to finish. Safe to
// call multiple times.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		if r.stopCh != nil {
			close(r.stopCh)
		}
	})
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()
	log := r.logger()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		didWork, err := r.Loop.RunOnce(ctx)
		r.ticksTotal.Add(1)
		r.ready.Store(true)

		switch {
		case err != nil:
			r.errorsTotal.Add(1)
			log.Error("worker tick failed", "stage", r.Loop.Stage, "error", err)
			r.sleep(r.ErrorBackoff)
		case didWork:
			r.claimsTotal.Add(1)
			r.sleep(r.PollInterval)
		default:
			r.idleTicksTotal.Add(1)
			r.sleep(r.IdleBackoff)
		}
	}
}

func (r *Runner) sleep(d time.Duration) {
	select {
	case <-r.stopCh:
	case <-time.After(d):
	}
}

// Snapshot returns the current counters and readiness bits.
func (r *Runner) Snapshot() Counters {
	return Counters{
		TicksTotal:        r.ticksTotal.Load(),
		ClaimsTotal:       r.claimsTotal.Load(),
		IdleTicksTotal:    r.idleTicksTotal.Load(),
		ErrorsTotal:       r.errorsTotal.Load(),
		WorkerLoopEnabled: true,
		WorkerLoopReady:   r.ready.Load(),
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
