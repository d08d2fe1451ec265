package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ivybound/taskrunner/internal/store"
)

// SQLStore implements store.Driver against any database/sql driver
// that speaks one of the two Dialects above.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an already-opened, already-configured *sql.DB.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ph(n int) string { return s.dialect.Placeholder(n) }

const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

// Migrate creates every table used by the orchestrator if it does not
// already exist. The legacy `metrics` table is created but never
// written to: the per-task CSV is the only write path.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tasks (
			id %s,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			job_id TEXT NOT NULL DEFAULT '',
			command_template TEXT NOT NULL DEFAULT '',
			default_timeout_sec INTEGER NOT NULL DEFAULT 300,
			enabled INTEGER NOT NULL DEFAULT 1,
			remark TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`, s.dialect.AutoIncrementPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS triggers (
			id %s,
			task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			interval_sec INTEGER NOT NULL DEFAULT 0,
			cron_expr TEXT NOT NULL DEFAULT '',
			deadline_at TEXT,
			start_before_days INTEGER NOT NULL DEFAULT 0,
			interval_hours INTEGER NOT NULL DEFAULT 1,
			holiday_policy TEXT NOT NULL DEFAULT 'NONE',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`, s.dialect.AutoIncrementPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS runs (
			id %s,
			task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			trigger_id INTEGER REFERENCES triggers(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			scheduled_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			exit_code INTEGER,
			stdout_path TEXT,
			stderr_path TEXT,
			error_message TEXT
		)`, s.dialect.AutoIncrementPK()),
		`CREATE INDEX IF NOT EXISTS idx_runs_status_scheduled ON runs(status, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_task_status ON runs(task_id, status)`,

		`CREATE TABLE IF NOT EXISTS alert_state (
			task_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			last_sent_at TEXT NOT NULL,
			PRIMARY KEY (task_id, kind)
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS alerts (
			id %s,
			task_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			suppressed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`, s.dialect.AutoIncrementPK()),
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,

		// Legacy single-row-per-metric table. Kept for schema parity
		// with a future migration tool; never written by this daemon.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS metrics (
			id %s,
			task_id INTEGER NOT NULL,
			task_name TEXT NOT NULL,
			key TEXT NOT NULL,
			value REAL NOT NULL,
			recorded_at TEXT NOT NULL
		)`, s.dialect.AutoIncrementPK()),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "running migration statement: %s", stmt)
		}
	}
	return nil
}

// --- Tasks ---

func (s *SQLStore) CreateTask(ctx context.Context, t *store.Task) (*store.Task, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	query := fmt.Sprintf(`INSERT INTO tasks (name, type, job_id, command_template, default_timeout_sec, enabled, remark, created_at, updated_at)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))
	res, err := s.db.ExecContext(ctx, query, t.Name, string(t.Type), t.JobID, t.CommandTemplate,
		t.DefaultTimeoutSec, boolToInt(t.Enabled), t.Remark, fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "inserting task")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return s.GetTaskByName(ctx, t.Name)
	}
	t.ID = id
	return t, nil
}

func (s *SQLStore) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	query := fmt.Sprintf(`SELECT id, name, type, job_id, command_template, default_timeout_sec, enabled, remark, created_at, updated_at
		FROM tasks WHERE id = %s`, s.ph(1))
	return s.scanTask(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) GetTaskByName(ctx context.Context, name string) (*store.Task, error) {
	query := fmt.Sprintf(`SELECT id, name, type, job_id, command_template, default_timeout_sec, enabled, remark, created_at, updated_at
		FROM tasks WHERE name = %s`, s.ph(1))
	return s.scanTask(s.db.QueryRowContext(ctx, query, name))
}

func (s *SQLStore) scanTask(row *sql.Row) (*store.Task, error) {
	var t store.Task
	var typ string
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Name, &typ, &t.JobID, &t.CommandTemplate, &t.DefaultTimeoutSec, &enabled, &t.Remark, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewNotFoundError("task")
		}
		return nil, errors.Wrap(err, "scanning task")
	}
	t.Type = store.TaskType(typ)
	t.Enabled = enabled != 0
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	return &t, nil
}

func (s *SQLStore) ListTasks(ctx context.Context) ([]*store.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, job_id, command_template, default_timeout_sec, enabled, remark, created_at, updated_at FROM tasks ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}
	defer rows.Close()

	var out []*store.Task
	for rows.Next() {
		var t store.Task
		var typ string
		var enabled int
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Name, &typ, &t.JobID, &t.CommandTemplate, &t.DefaultTimeoutSec, &enabled, &t.Remark, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning task row")
		}
		t.Type = store.TaskType(typ)
		t.Enabled = enabled != 0
		t.CreatedAt, _ = parseTime(createdAt)
		t.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateTask(ctx context.Context, t *store.Task) error {
	t.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE tasks SET name=%s, type=%s, job_id=%s, command_template=%s, default_timeout_sec=%s, enabled=%s, remark=%s, updated_at=%s WHERE id=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))
	_, err := s.db.ExecContext(ctx, query, t.Name, string(t.Type), t.JobID, t.CommandTemplate,
		t.DefaultTimeoutSec, boolToInt(t.Enabled), t.Remark, fmtTime(t.UpdatedAt), t.ID)
	return errors.Wrap(err, "updating task")
}

func (s *SQLStore) DeleteTask(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM tasks WHERE id=%s`, s.ph(1))
	_, err := s.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "deleting task")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Triggers ---

func (s *SQLStore) CreateTrigger(ctx context.Context, tr *store.Trigger) (*store.Trigger, error) {
	now := time.Now().UTC()
	tr.CreatedAt, tr.UpdatedAt = now, now
	query := fmt.Sprintf(`INSERT INTO triggers (task_id, kind, interval_sec, cron_expr, deadline_at, start_before_days, interval_hours, holiday_policy, enabled, created_at, updated_at)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11))
	res, err := s.db.ExecContext(ctx, query, tr.TaskID, string(tr.Kind), tr.IntervalSec, tr.CronExpr,
		nullableTime(tr.DeadlineAt), tr.StartBeforeDays, tr.IntervalHours, tr.HolidayPolicy, boolToInt(tr.Enabled),
		fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "inserting trigger")
	}
	id, err := res.LastInsertId()
	if err == nil {
		tr.ID = id
	}
	return tr, nil
}

func (s *SQLStore) GetTrigger(ctx context.Context, id int64) (*store.Trigger, error) {
	query := fmt.Sprintf(`SELECT id, task_id, kind, interval_sec, cron_expr, deadline_at, start_before_days, interval_hours, holiday_policy, enabled, created_at, updated_at
		FROM triggers WHERE id = %s`, s.ph(1))
	return s.scanTrigger(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) scanTrigger(row *sql.Row) (*store.Trigger, error) {
	var tr store.Trigger
	var kind string
	var enabled int
	var deadlineAt sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&tr.ID, &tr.TaskID, &kind, &tr.IntervalSec, &tr.CronExpr, &deadlineAt,
		&tr.StartBeforeDays, &tr.IntervalHours, &tr.HolidayPolicy, &enabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewNotFoundError("trigger")
		}
		return nil, errors.Wrap(err, "scanning trigger")
	}
	tr.Kind = store.TriggerKind(kind)
	tr.Enabled = enabled != 0
	if deadlineAt.Valid {
		if t, err := parseTime(deadlineAt.String); err == nil {
			tr.DeadlineAt = &t
		}
	}
	tr.CreatedAt, _ = parseTime(createdAt)
	tr.UpdatedAt, _ = parseTime(updatedAt)
	return &tr, nil
}

func (s *SQLStore) ListEnabledTriggers(ctx context.Context) ([]*store.Trigger, error) {
	query := `SELECT t.id, t.task_id, t.kind, t.interval_sec, t.cron_expr, t.deadline_at, t.start_before_days, t.interval_hours, t.holiday_policy, t.enabled, t.created_at, t.updated_at
		FROM triggers t JOIN tasks k ON k.id = t.task_id
		WHERE t.enabled = 1 AND k.enabled = 1`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "listing enabled triggers")
	}
	defer rows.Close()

	var out []*store.Trigger
	for rows.Next() {
		var tr store.Trigger
		var kind string
		var enabled int
		var deadlineAt sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&tr.ID, &tr.TaskID, &kind, &tr.IntervalSec, &tr.CronExpr, &deadlineAt,
			&tr.StartBeforeDays, &tr.IntervalHours, &tr.HolidayPolicy, &enabled, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning trigger row")
		}
		tr.Kind = store.TriggerKind(kind)
		tr.Enabled = enabled != 0
		if deadlineAt.Valid {
			if t, err := parseTime(deadlineAt.String); err == nil {
				tr.DeadlineAt = &t
			}
		}
		tr.CreatedAt, _ = parseTime(createdAt)
		tr.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, &tr)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateTrigger(ctx context.Context, tr *store.Trigger) error {
	tr.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE triggers SET task_id=%s, kind=%s, interval_sec=%s, cron_expr=%s, deadline_at=%s, start_before_days=%s, interval_hours=%s, holiday_policy=%s, enabled=%s, updated_at=%s WHERE id=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11))
	_, err := s.db.ExecContext(ctx, query, tr.TaskID, string(tr.Kind), tr.IntervalSec, tr.CronExpr,
		nullableTime(tr.DeadlineAt), tr.StartBeforeDays, tr.IntervalHours, tr.HolidayPolicy, boolToInt(tr.Enabled),
		fmtTime(tr.UpdatedAt), tr.ID)
	return errors.Wrap(err, "updating trigger")
}

func (s *SQLStore) DisableTrigger(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`UPDATE triggers SET enabled=0, updated_at=%s WHERE id=%s`, s.ph(1), s.ph(2))
	_, err := s.db.ExecContext(ctx, query, fmtTime(time.Now().UTC()), id)
	return errors.Wrap(err, "disabling trigger")
}

func (s *SQLStore) DeleteTrigger(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM triggers WHERE id=%s`, s.ph(1))
	_, err := s.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "deleting trigger")
}

// --- Runs ---

func (s *SQLStore) EnqueueRun(ctx context.Context, taskID int64, triggerID *int64, scheduledAt time.Time) (*store.Run, error) {
	query := fmt.Sprintf(`INSERT INTO runs (task_id, trigger_id, status, scheduled_at) VALUES (%s,%s,%s,%s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	var triggerArg interface{}
	if triggerID != nil {
		triggerArg = *triggerID
	}
	res, err := s.db.ExecContext(ctx, query, taskID, triggerArg, string(store.RunPending), fmtTime(scheduledAt))
	if err != nil {
		return nil, errors.Wrap(err, "enqueuing run")
	}
	id, _ := res.LastInsertId()
	return &store.Run{ID: id, TaskID: taskID, TriggerID: triggerID, Status: store.RunPending, ScheduledAt: scheduledAt}, nil
}

func (s *SQLStore) ListPendingRuns(ctx context.Context, limit int) ([]*store.Run, error) {
	query := fmt.Sprintf(`SELECT id, task_id, trigger_id, status, scheduled_at, started_at, finished_at, exit_code, stdout_path, stderr_path, error_message
		FROM runs WHERE status = %s ORDER BY scheduled_at ASC LIMIT %s`, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, query, string(store.RunPending), limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing pending runs")
	}
	defer rows.Close()
	return s.scanRuns(rows)
}

func (s *SQLStore) ListRunsByTask(ctx context.Context, taskID int64, limit int) ([]*store.Run, error) {
	query := fmt.Sprintf(`SELECT id, task_id, trigger_id, status, scheduled_at, started_at, finished_at, exit_code, stdout_path, stderr_path, error_message
		FROM runs WHERE task_id = %s ORDER BY scheduled_at DESC LIMIT %s`, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, query, taskID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing runs by task")
	}
	defer rows.Close()
	return s.scanRuns(rows)
}

func (s *SQLStore) ListRecentRuns(ctx context.Context, limit int) ([]*store.Run, error) {
	query := fmt.Sprintf(`SELECT id, task_id, trigger_id, status, scheduled_at, started_at, finished_at, exit_code, stdout_path, stderr_path, error_message
		FROM runs ORDER BY scheduled_at DESC LIMIT %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing recent runs")
	}
	defer rows.Close()
	return s.scanRuns(rows)
}

func (s *SQLStore) scanRuns(rows *sql.Rows) ([]*store.Run, error) {
	var out []*store.Run
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for a shared scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunRow(row rowScanner) (*store.Run, error) {
	var r store.Run
	var status string
	var triggerID sql.NullInt64
	var scheduledAt string
	var startedAt, finishedAt sql.NullString
	var exitCode sql.NullInt64
	var stdoutPath, stderrPath, errMessage sql.NullString

	if err := row.Scan(&r.ID, &r.TaskID, &triggerID, &status, &scheduledAt, &startedAt, &finishedAt,
		&exitCode, &stdoutPath, &stderrPath, &errMessage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewNotFoundError("run")
		}
		return nil, errors.Wrap(err, "scanning run")
	}
	r.Status = store.RunStatus(status)
	if triggerID.Valid {
		v := triggerID.Int64
		r.TriggerID = &v
	}
	r.ScheduledAt, _ = parseTime(scheduledAt)
	if startedAt.Valid {
		if t, err := parseTime(startedAt.String); err == nil {
			r.StartedAt = &t
		}
	}
	if finishedAt.Valid {
		if t, err := parseTime(finishedAt.String); err == nil {
			r.FinishedAt = &t
		}
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		r.ExitCode = &v
	}
	if stdoutPath.Valid {
		v := stdoutPath.String
		r.StdoutPath = &v
	}
	if stderrPath.Valid {
		v := stderrPath.String
		r.StderrPath = &v
	}
	if errMessage.Valid {
		v := errMessage.String
		r.ErrorMessage = &v
	}
	return &r, nil
}

func (s *SQLStore) GetRun(ctx context.Context, id int64) (*store.Run, error) {
	query := fmt.Sprintf(`SELECT id, task_id, trigger_id, status, scheduled_at, started_at, finished_at, exit_code, stdout_path, stderr_path, error_message
		FROM runs WHERE id = %s`, s.ph(1))
	return scanRunRow(s.db.QueryRowContext(ctx, query, id))
}

// ClaimRun is the atomic compare-and-swap at the heart of exactly-once
// dispatch: the UPDATE's WHERE clause is the claim itself, not a prior
// SELECT.
func (s *SQLStore) ClaimRun(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	query := fmt.Sprintf(`UPDATE runs SET status=%s, started_at=%s WHERE id=%s AND status=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	res, err := s.db.ExecContext(ctx, query, string(store.RunRunning), fmtTime(startedAt), id, string(store.RunPending))
	if err != nil {
		return false, errors.Wrap(err, "claiming run")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "reading claim result")
	}
	return n == 1, nil
}

func (s *SQLStore) SweepZombies(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-olderThan)
	query := fmt.Sprintf(`UPDATE runs SET status=%s, finished_at=%s, error_message=%s WHERE status=%s AND started_at < %s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	res, err := s.db.ExecContext(ctx, query, string(store.RunFailed), fmtTime(now), "Zombie run auto-failed",
		string(store.RunRunning), fmtTime(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "sweeping zombie runs")
	}
	return res.RowsAffected()
}

func (s *SQLStore) CountOtherRunning(ctx context.Context, taskID, excludeRunID int64) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM runs WHERE task_id=%s AND status=%s AND id != %s`,
		s.ph(1), s.ph(2), s.ph(3))
	var n int
	err := s.db.QueryRowContext(ctx, query, taskID, string(store.RunRunning), excludeRunID).Scan(&n)
	return n, errors.Wrap(err, "counting other running runs")
}

func (s *SQLStore) FinishRun(ctx context.Context, id int64, status store.RunStatus, finishedAt time.Time, exitCode *int, stdoutPath, stderrPath, errMessage *string) error {
	query := fmt.Sprintf(`UPDATE runs SET status=%s, finished_at=%s, exit_code=%s, stdout_path=%s, stderr_path=%s, error_message=%s WHERE id=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7))
	var exitArg, stdoutArg, stderrArg, errArg interface{}
	if exitCode != nil {
		exitArg = *exitCode
	}
	if stdoutPath != nil {
		stdoutArg = *stdoutPath
	}
	if stderrPath != nil {
		stderrArg = *stderrPath
	}
	if errMessage != nil {
		errArg = *errMessage
	}
	_, err := s.db.ExecContext(ctx, query, string(status), fmtTime(finishedAt), exitArg, stdoutArg, stderrArg, errArg, id)
	return errors.Wrap(err, "finishing run")
}

func (s *SQLStore) DeleteRun(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM runs WHERE id=%s`, s.ph(1))
	_, err := s.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "deleting run")
}

// --- Alerts ---

func (s *SQLStore) GetAlertState(ctx context.Context, taskID int64, kind store.AlertKind) (*store.AlertState, error) {
	query := fmt.Sprintf(`SELECT task_id, kind, last_sent_at FROM alert_state WHERE task_id=%s AND kind=%s`, s.ph(1), s.ph(2))
	var as store.AlertState
	var k, lastSentAt string
	err := s.db.QueryRowContext(ctx, query, taskID, string(kind)).Scan(&as.TaskID, &k, &lastSentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewNotFoundError("alert_state")
		}
		return nil, errors.Wrap(err, "getting alert state")
	}
	as.Kind = store.AlertKind(k)
	as.LastSentAt, _ = parseTime(lastSentAt)
	return &as, nil
}

func (s *SQLStore) UpsertAlertState(ctx context.Context, taskID int64, kind store.AlertKind, lastSentAt time.Time) error {
	_, err := s.GetAlertState(ctx, taskID, kind)
	if err != nil && store.IsNotFound(err) {
		query := fmt.Sprintf(`INSERT INTO alert_state (task_id, kind, last_sent_at) VALUES (%s,%s,%s)`, s.ph(1), s.ph(2), s.ph(3))
		_, insErr := s.db.ExecContext(ctx, query, taskID, string(kind), fmtTime(lastSentAt))
		return errors.Wrap(insErr, "inserting alert state")
	}
	query := fmt.Sprintf(`UPDATE alert_state SET last_sent_at=%s WHERE task_id=%s AND kind=%s`, s.ph(1), s.ph(2), s.ph(3))
	_, updErr := s.db.ExecContext(ctx, query, fmtTime(lastSentAt), taskID, string(kind))
	return errors.Wrap(updErr, "updating alert state")
}

func (s *SQLStore) InsertAlert(ctx context.Context, a *store.Alert) error {
	a.CreatedAt = time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO alerts (task_id, kind, message, suppressed, created_at) VALUES (%s,%s,%s,%s,%s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	res, err := s.db.ExecContext(ctx, query, a.TaskID, string(a.Kind), a.Message, boolToInt(a.Suppressed), fmtTime(a.CreatedAt))
	if err != nil {
		return errors.Wrap(err, "inserting alert")
	}
	id, _ := res.LastInsertId()
	a.ID = id
	return nil
}

func (s *SQLStore) ListRecentAlerts(ctx context.Context, limit int) ([]*store.Alert, error) {
	query := fmt.Sprintf(`SELECT id, task_id, kind, message, suppressed, created_at FROM alerts ORDER BY created_at DESC LIMIT %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing recent alerts")
	}
	defer rows.Close()

	var out []*store.Alert
	for rows.Next() {
		var a store.Alert
		var kind, createdAt string
		var suppressed int
		if err := rows.Scan(&a.ID, &a.TaskID, &kind, &a.Message, &suppressed, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scanning alert row")
		}
		a.Kind = store.AlertKind(kind)
		a.Suppressed = suppressed != 0
		a.CreatedAt, _ = parseTime(createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}
