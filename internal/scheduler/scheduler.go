// Package scheduler is the Trigger Evaluator: on a fixed tick it walks
// every enabled Trigger, decides whether it fires, and enqueues a Run.
// The loop runs under an atomic flag so Start/Stop are idempotent.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"github.com/ivybound/taskrunner/internal/calendar"
	"github.com/ivybound/taskrunner/internal/store"
)

// TickInterval is how often the evaluator walks triggers. Sub-second
// precision is out of scope, so a one-second tick is fine.
const TickInterval = 1 * time.Second

// Scheduler evaluates Triggers and enqueues Runs when they fire.
type Scheduler struct {
	store   *store.Store
	clock   calendar.Clock
	oracle  calendar.Oracle
	ticker  *time.Ticker
	stopCh  chan struct{}
	running atomic.Bool
}

// New builds a Scheduler. oracle may be nil, in which case every
// holiday-gated Trigger fires unconditionally (calendar.Allow treats a
// nil oracle as always-allowed).
func New(st *store.Store, clock calendar.Clock, oracle calendar.Oracle) *Scheduler {
	return &Scheduler{
		store:  st,
		clock:  clock,
		oracle: oracle,
		stopCh: make(chan struct{}),
	}
}

// Start begins the evaluation loop in a new goroutine.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.ticker = time.NewTicker(TickInterval)
	go s.run()
	slog.Info("trigger evaluator started", "interval", TickInterval)
}

// Stop halts the evaluation loop. Safe to call more than once.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.ticker.Stop()
	slog.Info("trigger evaluator stopped")
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.Tick(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Tick evaluates every enabled trigger once. Exported so tests can
// drive it synchronously. A panic inside one tick is logged and does
// not stop the loop.
func (s *Scheduler) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in trigger evaluator tick", "panic", r)
		}
	}()
	now := s.clock.Now()

	triggers, err := s.store.ListEnabledTriggers(ctx)
	if err != nil {
		slog.Error("listing enabled triggers", "error", err)
		return
	}

	for _, tr := range triggers {
		if !s.shouldFire(ctx, tr, now) {
			continue
		}
		if _, err := s.store.EnqueueRun(ctx, tr.TaskID, &tr.ID, now); err != nil {
			slog.Error("enqueuing run", "task_id", tr.TaskID, "trigger_id", tr.ID, "error", err)
			continue
		}
		slog.Info("run enqueued", "task_id", tr.TaskID, "trigger_id", tr.ID, "kind", tr.Kind)
	}
}

func (s *Scheduler) shouldFire(ctx context.Context, tr *store.Trigger, now time.Time) bool {
	if !calendar.Allow(calendar.HolidayPolicy(tr.HolidayPolicy), s.oracle, now) {
		return false
	}

	switch tr.Kind {
	case store.TriggerInterval:
		return s.shouldFireInterval(ctx, tr, now)
	case store.TriggerCron:
		return s.shouldFireCron(tr, now)
	case store.TriggerDeadline:
		return s.shouldFireDeadline(ctx, tr, now)
	default:
		slog.Warn("unknown trigger kind", "trigger_id", tr.ID, "kind", tr.Kind)
		return false
	}
}

// shouldFireInterval fires when no run has been scheduled for this
// trigger's task within the last IntervalSec. It looks at the task's most
// recent run rather than keeping in-memory last-fire state, so a
// process restart never causes a double-fire or a missed interval.
func (s *Scheduler) shouldFireInterval(ctx context.Context, tr *store.Trigger, now time.Time) bool {
	runs, err := s.store.ListRunsByTask(ctx, tr.TaskID, 1)
	if err != nil {
		slog.Error("listing last run for interval trigger", "trigger_id", tr.ID, "error", err)
		return false
	}
	if len(runs) == 0 {
		return true
	}
	last := runs[0]
	return now.Sub(last.ScheduledAt) >= time.Duration(tr.IntervalSec)*time.Second
}

// shouldFireCron parses the trigger's 5-field cron expression and
// fires once the current minute is due. A malformed expression is
// logged and never fires; the trigger itself stays enabled.
func (s *Scheduler) shouldFireCron(tr *store.Trigger, now time.Time) bool {
	sched, err := cron.ParseStandard(tr.CronExpr)
	if err != nil {
		slog.Error("invalid cron expression", "trigger_id", tr.ID, "expr", tr.CronExpr, "error", err)
		return false
	}
	// The tick interval is shorter than a minute, so fire when the
	// schedule's next activation after the previous tick falls inside
	// this tick window.
	windowStart := now.Add(-TickInterval)
	next := sched.Next(windowStart)
	return !next.After(now)
}

// shouldFireDeadline fires inside the window
// [deadline - StartBeforeDays, deadline] once every IntervalHours,
// counted from the window start, and
// never again once the deadline itself has passed: crossing the
// deadline disables the trigger outright so it drops out of the next
// reload's enabled set.
func (s *Scheduler) shouldFireDeadline(ctx context.Context, tr *store.Trigger, now time.Time) bool {
	if tr.DeadlineAt == nil {
		return false
	}
	deadline := *tr.DeadlineAt
	if now.After(deadline) {
		if err := s.store.DisableTrigger(ctx, tr.ID); err != nil {
			slog.Error("disabling past-deadline trigger", "trigger_id", tr.ID, "error", err)
		}
		return false
	}
	windowStart := deadline.AddDate(0, 0, -tr.StartBeforeDays)
	if now.Before(windowStart) {
		return false
	}
	intervalHours := tr.IntervalHours
	if intervalHours <= 0 {
		intervalHours = 1
	}
	elapsed := now.Sub(windowStart)
	// Fire on the first tick of each interval-hours boundary.
	return elapsed%(time.Duration(intervalHours)*time.Hour) < TickInterval
}
