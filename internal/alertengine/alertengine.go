// Package alertengine applies the per-(task, kind) suppression window,
// records every attempt durably, and fires the external push
// notifier as a detached, fire-and-forget process.
package alertengine

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/time/rate"

	"github.com/ivybound/taskrunner/internal/obsmetrics"
	"github.com/ivybound/taskrunner/internal/store"
)

// PushConfig configures the external notifier invocation contract:
// `<script> <message> -t <title> -g <group> -l <level>`.
type PushConfig struct {
	Script string
	Title  string
	Group  string
	Level  string
}

// Engine gates alerts through a suppression window and hands
// non-suppressed ones to the push notifier.
type Engine struct {
	store       *store.Store
	suppressSec int
	push        PushConfig
	// limiter caps how often this process will attempt to spawn the
	// notifier regardless of suppression state, so a flapping task
	// cannot fork-bomb the host via repeated failed spawns.
	limiter *rate.Limiter
	// obs is optional; nil disables alert metrics export.
	obs *obsmetrics.Exporter
}

// New builds an Engine. suppressSec <= 0 disables suppression (every
// attempt is delivered).
func New(st *store.Store, suppressSec int, push PushConfig) *Engine {
	return &Engine{
		store:       st,
		suppressSec: suppressSec,
		push:        push,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// WithObs attaches a Prometheus exporter for alert metrics and returns
// the same Engine for chaining at construction time.
func (e *Engine) WithObs(obs *obsmetrics.Exporter) *Engine {
	e.obs = obs
	return e
}

// Raise records an alert attempt for (taskID, kind) and, unless inside
// the suppression window, asynchronously invokes the push notifier.
func (e *Engine) Raise(ctx context.Context, taskID int64, kind store.AlertKind, message string) {
	now := time.Now()
	suppressed := e.isSuppressed(ctx, taskID, kind, now)

	if err := e.store.InsertAlert(ctx, &store.Alert{TaskID: taskID, Kind: kind, Message: message, Suppressed: suppressed}); err != nil {
		slog.Error("recording alert", "task_id", taskID, "kind", kind, "error", err)
	}
	if err := e.store.UpsertAlertState(ctx, taskID, kind, now); err != nil {
		slog.Error("updating alert state", "task_id", taskID, "kind", kind, "error", err)
	}
	if e.obs != nil {
		e.obs.ObserveAlert(kind, suppressed)
	}

	if suppressed {
		return
	}
	e.notify(message)
}

func (e *Engine) isSuppressed(ctx context.Context, taskID int64, kind store.AlertKind, now time.Time) bool {
	if e.suppressSec <= 0 {
		return false
	}
	state, err := e.store.GetAlertState(ctx, taskID, kind)
	if err != nil {
		if store.IsNotFound(err) {
			return false
		}
		slog.Error("reading alert state", "task_id", taskID, "kind", kind, "error", err)
		return false
	}
	return now.Sub(state.LastSentAt) < time.Duration(e.suppressSec)*time.Second
}

// notify spawns the configured push script detached from this
// process, with stdio redirected to the null device. Spawn failures
// are swallowed: the Alert row already written is the audit trail.
func (e *Engine) notify(message string) {
	if e.push.Script == "" {
		return
	}
	if !e.limiter.Allow() {
		slog.Warn("alert notifier spawn rate-limited, dropping", "correlation_id", shortuuid.New())
		return
	}

	correlationID := shortuuid.New()
	cmd := exec.Command(e.push.Script, message, "-t", e.push.Title, "-g", e.push.Group, "-l", e.push.Level)
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		slog.Error("opening null device for notifier", "correlation_id", correlationID, "error", err)
		return
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	detachProcess(cmd)

	if err := cmd.Start(); err != nil {
		slog.Warn("failed to spawn alert notifier", "correlation_id", correlationID, "script", e.push.Script, "error", err)
		devnull.Close()
		return
	}
	slog.Info("alert notifier spawned", "correlation_id", correlationID, "script", e.push.Script)
	go func() {
		_ = cmd.Wait()
		devnull.Close()
	}()
}
