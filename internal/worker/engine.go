// Package worker is the Worker Pool dispatcher and the Execution
// Engine: the twelve-step per-run lifecycle from claim through
// terminal state, log capture, metrics, and alerting.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ivybound/taskrunner/internal/alertengine"
	"github.com/ivybound/taskrunner/internal/catalogue"
	"github.com/ivybound/taskrunner/internal/logrotate"
	"github.com/ivybound/taskrunner/internal/metricswriter"
	"github.com/ivybound/taskrunner/internal/monitorparse"
	"github.com/ivybound/taskrunner/internal/obsmetrics"
	"github.com/ivybound/taskrunner/internal/store"
	"github.com/ivybound/taskrunner/internal/supervisor"
)

// Engine executes one Run end to end.
type Engine struct {
	Store          *store.Store
	Catalogue      *catalogue.Catalogue
	Rotator        *logrotate.Rotator
	Metrics        *metricswriter.Writer
	Alerts         *alertengine.Engine
	Obs            *obsmetrics.Exporter // optional; nil disables metrics export
	DefaultTimeout time.Duration
	TermGrace      time.Duration
	ZombieAfter    time.Duration
}

// Execute runs the full lifecycle for runID, which must already be
// PENDING. It never returns an error: every failure path is captured
// as a terminal Run state instead of propagating an exception.
func (e *Engine) Execute(ctx context.Context, runID int64) {
	defer e.recoverInternalError(ctx, runID)

	now := time.Now().UTC()
	ok, err := e.Store.ClaimRun(ctx, runID, now)
	if err != nil {
		slog.Error("claiming run", "run_id", runID, "error", err)
		return
	}
	if !ok {
		// Another worker, or an admin mutation, already took this row.
		return
	}

	if e.ZombieAfter > 0 {
		if n, err := e.Store.SweepZombies(ctx, e.ZombieAfter, now); err != nil {
			slog.Error("sweeping zombie runs", "error", err)
		} else if n > 0 {
			slog.Warn("reclaimed zombie runs", "count", n)
			if e.Obs != nil {
				e.Obs.AddZombiesReclaimed(n)
			}
		}
	}

	run, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		slog.Error("reloading claimed run", "run_id", runID, "error", err)
		return
	}

	task, err := e.Store.GetTask(ctx, run.TaskID)
	if err != nil || !task.Enabled {
		e.finishSkipped(ctx, run)
		return
	}

	others, err := e.Store.CountOtherRunning(ctx, task.ID, run.ID)
	if err != nil {
		slog.Error("checking reentrancy mutex", "task_id", task.ID, "error", err)
		return
	}
	if others > 0 {
		e.fail(ctx, run, task, 99, "Task is already RUNNING (non-reentrant).", store.AlertReentry)
		return
	}

	argv, shellCmd, ok := e.resolveCommand(ctx, run, task)
	if !ok {
		return
	}

	timeout := e.DefaultTimeout
	if task.DefaultTimeoutSec > 0 {
		timeout = time.Duration(task.DefaultTimeoutSec) * time.Second
	}

	res, launchErr := supervisor.Run(ctx, supervisor.Input{
		Shell:        shellCmd != "",
		Command:      shellCmd,
		Argv:         argv,
		TimeoutSec:   timeout,
		TermGraceSec: e.TermGrace,
	})
	if launchErr != nil {
		e.fail(ctx, run, task, 98, fmt.Sprintf("Internal error: %s", launchErr), store.AlertInternal)
		return
	}

	status := classify(res)
	e.finish(ctx, run, task, status, res)
}

func classify(res supervisor.Result) store.RunStatus {
	switch {
	case res.TimedOut:
		return store.RunTimeout
	case res.ExitCode == 0:
		return store.RunSuccess
	default:
		return store.RunFailed
	}
}

// resolveCommand materialises either a catalogue job's argv or the
// task's raw shell command template. ok is false when the run has
// already been finished (job_missing path).
func (e *Engine) resolveCommand(ctx context.Context, run *store.Run, task *store.Task) (argv []string, shellCmd string, ok bool) {
	if task.JobID == "" {
		return nil, task.CommandTemplate, true
	}
	job, found := e.Catalogue.Lookup(task.JobID)
	if !found {
		e.fail(ctx, run, task, 97, fmt.Sprintf("Job not found: %s", task.JobID), store.AlertJobMissing)
		return nil, "", false
	}
	return catalogue.ResolveArgv(job, task.Name, nil), "", true
}

func (e *Engine) finish(ctx context.Context, run *store.Run, task *store.Task, status store.RunStatus, res supervisor.Result) {
	finishedAt := time.Now().UTC()
	exitCode := res.ExitCode

	var stdoutPath, stderrPath *string
	if e.shouldCaptureLogs(task, status) {
		if op, ep, err := e.Rotator.AppendRun(task.Name, run.ID, res.Stdout, res.Stderr); err != nil {
			slog.Error("appending run logs", "run_id", run.ID, "error", err)
		} else {
			stdoutPath, stderrPath = &op, &ep
		}
	}

	if task.Type == store.TaskTypeMonitor {
		pairs := monitorparse.Parse(res.Stdout)
		if err := e.Metrics.Append(task.ID, task.Name, pairs); err != nil {
			slog.Error("appending monitor metrics", "task_id", task.ID, "error", err)
		}
	}

	if err := e.Store.FinishRun(ctx, run.ID, status, finishedAt, &exitCode, stdoutPath, stderrPath, nil); err != nil {
		slog.Error("persisting finished run", "run_id", run.ID, "error", err)
		return
	}
	if e.Obs != nil && run.StartedAt != nil {
		e.Obs.ObserveRun(task.Name, status, finishedAt.Sub(*run.StartedAt).Seconds())
	}

	if task.Type == store.TaskTypeMonitor && status == store.RunSuccess {
		if err := e.Store.DeleteRun(ctx, run.ID); err != nil {
			slog.Error("deleting completed monitor run", "run_id", run.ID, "error", err)
		}
	}

	if status == store.RunFailed || status == store.RunTimeout {
		e.Alerts.Raise(ctx, task.ID, store.AlertExecFailed, fmt.Sprintf("run %d for task %s exited with status %s (exit_code=%d)", run.ID, task.Name, status, res.ExitCode))
	}
}

// shouldCaptureLogs: non-monitor tasks always capture; monitor tasks
// capture unless the run is a clean SUCCESS.
func (e *Engine) shouldCaptureLogs(task *store.Task, status store.RunStatus) bool {
	if task.Type != store.TaskTypeMonitor {
		return true
	}
	return status != store.RunSuccess
}

func (e *Engine) finishSkipped(ctx context.Context, run *store.Run) {
	finishedAt := time.Now().UTC()
	if err := e.Store.FinishRun(ctx, run.ID, store.RunSkipped, finishedAt, nil, nil, nil, nil); err != nil {
		slog.Error("persisting skipped run", "run_id", run.ID, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, run *store.Run, task *store.Task, exitCode int, message string, kind store.AlertKind) {
	finishedAt := time.Now().UTC()
	code := exitCode
	if err := e.Store.FinishRun(ctx, run.ID, store.RunFailed, finishedAt, &code, nil, nil, &message); err != nil {
		slog.Error("persisting failed run", "run_id", run.ID, "error", err)
		return
	}
	e.Alerts.Raise(ctx, task.ID, kind, message)
}

// recoverInternalError is the single outer recovery point: any panic
// escaping the lifecycle above is captured here and the run is
// transitioned to FAILED with the internal_error taxonomy.
func (e *Engine) recoverInternalError(ctx context.Context, runID int64) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error("recovered panic in execution engine", "run_id", runID, "panic", r)
	message := fmt.Sprintf("Internal error: %v", r)
	run, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		return
	}
	finishedAt := time.Now().UTC()
	code := 98
	_ = e.Store.FinishRun(ctx, run.ID, store.RunFailed, finishedAt, &code, nil, nil, &message)
	e.Alerts.Raise(ctx, run.TaskID, store.AlertInternal, message)
}
