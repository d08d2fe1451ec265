package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivybound/taskrunner/internal/store"
	"github.com/ivybound/taskrunner/internal/store/sqlite"
	"github.com/ivybound/taskrunner/server"
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

func TestHealthz(t *testing.T) {
	st := newTestStore(t)
	srv := server.New(st, nil, "127.0.0.1:0", "", "http://127.0.0.1")

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestListTasks_RendersRemarkHTML(t *testing.T) {
	st := newTestStore(t)
	_, err := st.CreateTask(context.Background(), &store.Task{
		Name: "nightly-backup", Type: store.TaskTypeSchedule, CommandTemplate: "true",
		DefaultTimeoutSec: 60, Enabled: true, Remark: "runs **nightly**",
	})
	require.NoError(t, err)

	srv := server.New(st, nil, "127.0.0.1:0", "", "http://127.0.0.1")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", http.NoBody)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var tasks []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	require.Contains(t, tasks[0]["remark_html"], "<strong>nightly</strong>")
}

func TestAlertsFeed_ServesAtomXML(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.InsertAlert(context.Background(), &store.Alert{TaskID: 1, Kind: store.AlertExecFailed, Message: "boom"}))

	srv := server.New(st, nil, "127.0.0.1:0", "", "http://127.0.0.1")
	req := httptest.NewRequest(http.MethodGet, "/feed/alerts.atom", http.NoBody)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "boom")
}
