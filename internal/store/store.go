package store

import (
	"context"
	"time"
)

// Store provides database access to all orchestrator records. It holds
// no state of its own beyond the driver: a pure facade.
type Store struct {
	driver Driver
}

// New wraps driver in a Store facade.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) Migrate(ctx context.Context) error { return s.driver.Migrate(ctx) }
func (s *Store) Close() error                      { return s.driver.Close() }

func (s *Store) CreateTask(ctx context.Context, t *Task) (*Task, error) { return s.driver.CreateTask(ctx, t) }
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error)   { return s.driver.GetTask(ctx, id) }
func (s *Store) GetTaskByName(ctx context.Context, name string) (*Task, error) {
	return s.driver.GetTaskByName(ctx, name)
}
func (s *Store) ListTasks(ctx context.Context) ([]*Task, error) { return s.driver.ListTasks(ctx) }
func (s *Store) UpdateTask(ctx context.Context, t *Task) error  { return s.driver.UpdateTask(ctx, t) }
func (s *Store) DeleteTask(ctx context.Context, id int64) error { return s.driver.DeleteTask(ctx, id) }

func (s *Store) CreateTrigger(ctx context.Context, tr *Trigger) (*Trigger, error) {
	return s.driver.CreateTrigger(ctx, tr)
}
func (s *Store) GetTrigger(ctx context.Context, id int64) (*Trigger, error) {
	return s.driver.GetTrigger(ctx, id)
}
func (s *Store) ListEnabledTriggers(ctx context.Context) ([]*Trigger, error) {
	return s.driver.ListEnabledTriggers(ctx)
}
func (s *Store) UpdateTrigger(ctx context.Context, tr *Trigger) error {
	return s.driver.UpdateTrigger(ctx, tr)
}
func (s *Store) DisableTrigger(ctx context.Context, id int64) error {
	return s.driver.DisableTrigger(ctx, id)
}
func (s *Store) DeleteTrigger(ctx context.Context, id int64) error {
	return s.driver.DeleteTrigger(ctx, id)
}

func (s *Store) EnqueueRun(ctx context.Context, taskID int64, triggerID *int64, scheduledAt time.Time) (*Run, error) {
	return s.driver.EnqueueRun(ctx, taskID, triggerID, scheduledAt)
}
func (s *Store) ListPendingRuns(ctx context.Context, limit int) ([]*Run, error) {
	return s.driver.ListPendingRuns(ctx, limit)
}
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) { return s.driver.GetRun(ctx, id) }
func (s *Store) ListRunsByTask(ctx context.Context, taskID int64, limit int) ([]*Run, error) {
	return s.driver.ListRunsByTask(ctx, taskID, limit)
}
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	return s.driver.ListRecentRuns(ctx, limit)
}

func (s *Store) ClaimRun(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	return s.driver.ClaimRun(ctx, id, startedAt)
}
func (s *Store) SweepZombies(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	return s.driver.SweepZombies(ctx, olderThan, now)
}
func (s *Store) CountOtherRunning(ctx context.Context, taskID, excludeRunID int64) (int, error) {
	return s.driver.CountOtherRunning(ctx, taskID, excludeRunID)
}
func (s *Store) FinishRun(ctx context.Context, id int64, status RunStatus, finishedAt time.Time, exitCode *int, stdoutPath, stderrPath, errMessage *string) error {
	return s.driver.FinishRun(ctx, id, status, finishedAt, exitCode, stdoutPath, stderrPath, errMessage)
}
func (s *Store) DeleteRun(ctx context.Context, id int64) error { return s.driver.DeleteRun(ctx, id) }

func (s *Store) GetAlertState(ctx context.Context, taskID int64, kind AlertKind) (*AlertState, error) {
	return s.driver.GetAlertState(ctx, taskID, kind)
}
func (s *Store) UpsertAlertState(ctx context.Context, taskID int64, kind AlertKind, lastSentAt time.Time) error {
	return s.driver.UpsertAlertState(ctx, taskID, kind, lastSentAt)
}
func (s *Store) InsertAlert(ctx context.Context, a *Alert) error { return s.driver.InsertAlert(ctx, a) }
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]*Alert, error) {
	return s.driver.ListRecentAlerts(ctx, limit)
}
