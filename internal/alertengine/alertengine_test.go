package alertengine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ivybound/taskrunner/internal/alertengine"
	"github.com/ivybound/taskrunner/internal/store"
	"github.com/ivybound/taskrunner/internal/store/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	drv, err := sqlite.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, drv.Migrate(context.Background()))
	t.Cleanup(func() { drv.Close() })
	return store.New(drv)
}

func TestRaise_FirstAttemptIsNeverSuppressed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	task, err := st.CreateTask(ctx, &store.Task{Name: "t1", Type: store.TaskTypeSchedule, CommandTemplate: "true", Enabled: true})
	require.NoError(t, err)

	eng := alertengine.New(st, 1800, alertengine.PushConfig{})
	eng.Raise(ctx, task.ID, store.AlertExecFailed, "boom")

	alerts, err := st.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.False(t, alerts[0].Suppressed)
}

func TestRaise_WithinWindowIsSuppressed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	task, err := st.CreateTask(ctx, &store.Task{Name: "t2", Type: store.TaskTypeSchedule, CommandTemplate: "true", Enabled: true})
	require.NoError(t, err)

	eng := alertengine.New(st, 1800, alertengine.PushConfig{})
	eng.Raise(ctx, task.ID, store.AlertExecFailed, "first")
	eng.Raise(ctx, task.ID, store.AlertExecFailed, "second")

	alerts, err := st.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	var sawSuppressed bool
	for _, a := range alerts {
		if a.Message == "second" {
			sawSuppressed = a.Suppressed
		}
	}
	require.True(t, sawSuppressed)
}

func TestRaise_SuppressionDisabledWhenWindowIsZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	task, err := st.CreateTask(ctx, &store.Task{Name: "t3", Type: store.TaskTypeSchedule, CommandTemplate: "true", Enabled: true})
	require.NoError(t, err)

	eng := alertengine.New(st, 0, alertengine.PushConfig{})
	eng.Raise(ctx, task.ID, store.AlertExecFailed, "a")
	eng.Raise(ctx, task.ID, store.AlertExecFailed, "b")

	alerts, err := st.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	for _, a := range alerts {
		require.False(t, a.Suppressed)
	}
}

func TestRaise_OutsideWindowIsNotSuppressed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	task, err := st.CreateTask(ctx, &store.Task{Name: "t4", Type: store.TaskTypeSchedule, CommandTemplate: "true", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, st.UpsertAlertState(ctx, task.ID, store.AlertExecFailed, time.Now().Add(-time.Hour)))

	eng := alertengine.New(st, 60, alertengine.PushConfig{})
	eng.Raise(ctx, task.ID, store.AlertExecFailed, "stale window elapsed")

	alerts, err := st.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.False(t, alerts[0].Suppressed)
}
