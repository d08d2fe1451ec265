package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// PollInterval is how often the dispatcher looks for new PENDING runs.
const PollInterval = 500 * time.Millisecond

// Pool is the Worker Pool dispatcher: it polls the Run Store and
// submits up to maxWorkers runs to bounded-parallel execution slots.
// The semaphore mirrors the bounded-parallel idiom the rest of the
// retrieved stack reaches for (golang.org/x/sync) instead of a
// hand-rolled channel-based limiter.
type Pool struct {
	engine     *Engine
	maxWorkers int64
	sem        *semaphore.Weighted
	ticker     *time.Ticker
	stopCh     chan struct{}
	running    atomic.Bool
}

// NewPool builds a Pool with maxWorkers concurrent execution slots.
func NewPool(engine *Engine, maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Pool{
		engine:     engine,
		maxWorkers: int64(maxWorkers),
		sem:        semaphore.NewWeighted(int64(maxWorkers)),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the dispatch loop in a new goroutine.
func (p *Pool) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.ticker = time.NewTicker(PollInterval)
	go p.run()
	slog.Info("worker pool started", "max_workers", p.maxWorkers)
}

// Stop halts the dispatch loop. In-flight executions are not
// cancelled; Stop waits for them to run to completion for a graceful
// shutdown.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.ticker.Stop()
	// Holding every slot waits out in-flight runs and keeps any
	// further submission from starting.
	_ = p.sem.Acquire(context.Background(), p.maxWorkers)
	slog.Info("worker pool stopped")
}

func (p *Pool) run() {
	for {
		select {
		case <-p.ticker.C:
			p.Tick(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// Tick selects up to maxWorkers PENDING runs ordered by scheduled_at
// and submits each to an execution slot. The dispatcher never blocks
// on a full pool: a run that cannot acquire a slot this tick stays
// PENDING and is retried on the next tick. A panic inside one tick is
// logged and does not stop the loop.
func (p *Pool) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in worker pool tick", "panic", r)
		}
	}()
	runs, err := p.engine.Store.ListPendingRuns(ctx, int(p.maxWorkers))
	if err != nil {
		slog.Error("listing pending runs", "error", err)
		return
	}
	if p.engine.Obs != nil {
		p.engine.Obs.SetPendingRuns(len(runs))
	}

	for _, run := range runs {
		if !p.sem.TryAcquire(1) {
			break
		}
		go func(runID int64) {
			defer p.sem.Release(1)
			p.engine.Execute(ctx, runID)
		}(run.ID)
	}
}
