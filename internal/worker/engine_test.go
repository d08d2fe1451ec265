package worker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ivybound/taskrunner/internal/alertengine"
	"github.com/ivybound/taskrunner/internal/catalogue"
	"github.com/ivybound/taskrunner/internal/logrotate"
	"github.com/ivybound/taskrunner/internal/metricswriter"
	"github.com/ivybound/taskrunner/internal/store"
	"github.com/ivybound/taskrunner/internal/store/sqlite"
	"github.com/ivybound/taskrunner/internal/worker"
)

func newTestEngine(t *testing.T) (*worker.Engine, *store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	drv, err := sqlite.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, drv.Migrate(context.Background()))
	t.Cleanup(func() { drv.Close() })
	st := store.New(drv)

	dir := t.TempDir()
	return &worker.Engine{
		Store:          st,
		Catalogue:      catalogue.New(),
		Rotator:        logrotate.New(dir+"/logs", 7, time.UTC),
		Metrics:        metricswriter.New(dir+"/metrics", 30, time.UTC),
		Alerts:         alertengine.New(st, 1800, alertengine.PushConfig{}),
		DefaultTimeout: 5 * time.Second,
		TermGrace:      time.Second,
		ZombieAfter:    time.Hour,
	}, st
}

func TestExecute_SuccessfulShellCommand(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, &store.Task{Name: "s1", Type: store.TaskTypeSchedule, CommandTemplate: "echo hi; exit 0", DefaultTimeoutSec: 5, Enabled: true})
	require.NoError(t, err)
	run, err := st.EnqueueRun(ctx, task.ID, nil, time.Now())
	require.NoError(t, err)

	eng.Execute(ctx, run.ID)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, got.Status)
	require.NotNil(t, got.ExitCode)
	require.Zero(t, *got.ExitCode)
}

func TestExecute_MonitorRunDeletedOnSuccess(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, &store.Task{Name: "m1", Type: store.TaskTypeMonitor, CommandTemplate: "printf 'OUT=cpu=23.5\\ttemp=67.2\\n'; exit 0", DefaultTimeoutSec: 5, Enabled: true})
	require.NoError(t, err)
	run, err := st.EnqueueRun(ctx, task.ID, nil, time.Now())
	require.NoError(t, err)

	eng.Execute(ctx, run.ID)

	_, err = st.GetRun(ctx, run.ID)
	require.True(t, store.IsNotFound(err), "successful monitor run must be deleted")
}

func TestExecute_MissingJobFailsWithExitCode97(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, &store.Task{Name: "ghost-task", Type: store.TaskTypeSchedule, JobID: "ghost", DefaultTimeoutSec: 5, Enabled: true})
	require.NoError(t, err)
	run, err := st.EnqueueRun(ctx, task.ID, nil, time.Now())
	require.NoError(t, err)

	eng.Execute(ctx, run.ID)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunFailed, got.Status)
	require.Equal(t, 97, *got.ExitCode)
	require.Contains(t, *got.ErrorMessage, "ghost")
}

func TestExecute_ReentrancyFailsSecondRunWithExitCode99(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, &store.Task{Name: "reentrant", Type: store.TaskTypeSchedule, CommandTemplate: "sleep 2", DefaultTimeoutSec: 5, Enabled: true})
	require.NoError(t, err)

	runA, err := st.EnqueueRun(ctx, task.ID, nil, time.Now())
	require.NoError(t, err)
	runB, err := st.EnqueueRun(ctx, task.ID, nil, time.Now())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); eng.Execute(ctx, runA.ID) }()
	go func() {
		defer wg.Done()
		time.Sleep(200 * time.Millisecond)
		eng.Execute(ctx, runB.ID)
	}()
	wg.Wait()

	b, err := st.GetRun(ctx, runB.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunFailed, b.Status)
	require.Equal(t, 99, *b.ExitCode)
}

func TestExecute_DisabledTaskSkipsRun(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, &store.Task{Name: "disabled", Type: store.TaskTypeSchedule, CommandTemplate: "true", DefaultTimeoutSec: 5, Enabled: false})
	require.NoError(t, err)
	run, err := st.EnqueueRun(ctx, task.ID, nil, time.Now())
	require.NoError(t, err)

	eng.Execute(ctx, run.ID)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunSkipped, got.Status)
}
