package store

import (
	"context"
	"time"
)

// Driver is implemented once, by sqlstore.SQLStore, which the sqlite and
// postgres backends share. Store is a thin facade over it.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateTask(ctx context.Context, t *Task) (*Task, error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	GetTaskByName(ctx context.Context, name string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id int64) error

	CreateTrigger(ctx context.Context, tr *Trigger) (*Trigger, error)
	GetTrigger(ctx context.Context, id int64) (*Trigger, error)
	ListEnabledTriggers(ctx context.Context) ([]*Trigger, error)
	UpdateTrigger(ctx context.Context, tr *Trigger) error
	DisableTrigger(ctx context.Context, id int64) error
	DeleteTrigger(ctx context.Context, id int64) error

	EnqueueRun(ctx context.Context, taskID int64, triggerID *int64, scheduledAt time.Time) (*Run, error)
	ListPendingRuns(ctx context.Context, limit int) ([]*Run, error)
	GetRun(ctx context.Context, id int64) (*Run, error)
	ListRunsByTask(ctx context.Context, taskID int64, limit int) ([]*Run, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*Run, error)

	// ClaimRun performs the atomic PENDING->RUNNING transition. ok is
	// false when another worker (or an admin mutation) already took
	// the row, and is never an error condition.
	ClaimRun(ctx context.Context, id int64, startedAt time.Time) (ok bool, err error)

	// SweepZombies moves stale RUNNING rows to FAILED and returns how
	// many were reclaimed.
	SweepZombies(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error)

	// CountOtherRunning counts RUNNING rows for taskID excluding
	// excludeRunID, for the reentrancy mutex check.
	CountOtherRunning(ctx context.Context, taskID, excludeRunID int64) (int, error)

	FinishRun(ctx context.Context, id int64, status RunStatus, finishedAt time.Time, exitCode *int, stdoutPath, stderrPath, errMessage *string) error
	DeleteRun(ctx context.Context, id int64) error

	GetAlertState(ctx context.Context, taskID int64, kind AlertKind) (*AlertState, error)
	UpsertAlertState(ctx context.Context, taskID int64, kind AlertKind, lastSentAt time.Time) error
	InsertAlert(ctx context.Context, a *Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]*Alert, error)
}

// notFoundError is returned by single-row lookups that found nothing.
type notFoundError struct{ what string }

func (e *notFoundError) Error() string { return e.what + " not found" }

// NewNotFoundError builds the sentinel used by every Driver
// implementation so callers can check with IsNotFound.
func NewNotFoundError(what string) error { return &notFoundError{what: what} }

// IsNotFound reports whether err is (or wraps) a not-found sentinel.
func IsNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	if ok {
		return true
	}
	type causer interface{ Cause() error }
	for {
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
		if _, ok := err.(*notFoundError); ok {
			return true
		}
	}
}
