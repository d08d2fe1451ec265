package metricswriter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ivybound/taskrunner/internal/monitorparse"
)

func TestAppend_WritesRowsForEachPair(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 30, time.UTC)

	require.NoError(t, w.Append(7, "cpu-monitor", []monitorparse.Pair{
		{Key: "cpu", Value: 23.5},
		{Key: "temp", Value: 67.2},
	}))

	data, err := os.ReadFile(filepath.Join(dir, "task_7.csv"))
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(data), "\n"))
	require.Contains(t, string(data), "cpu,23.5")
	require.Contains(t, string(data), "temp,67.2")
}

func TestAppend_NoPairsIsNoop(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 30, time.UTC)
	require.NoError(t, w.Append(1, "t", nil))
	_, err := os.Stat(filepath.Join(dir, "task_1.csv"))
	require.True(t, os.IsNotExist(err))
}

func TestAppend_PrunesRowsOlderThanRetention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task_3.csv")
	old := time.Now().UTC().AddDate(0, 0, -60).Format(time.RFC3339)
	require.NoError(t, os.WriteFile(path, []byte(old+",3,t,cpu,1\n"), 0o644))

	w := New(dir, 30, time.UTC)
	require.NoError(t, w.Append(3, "t", []monitorparse.Pair{{Key: "cpu", Value: 2}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "cpu,1")
	require.Contains(t, string(data), "cpu,2")
}

func TestAppend_RetentionDisabledSkipsPruning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task_4.csv")
	old := time.Now().UTC().AddDate(0, 0, -600).Format(time.RFC3339)
	require.NoError(t, os.WriteFile(path, []byte(old+",4,t,cpu,1\n"), 0o644))

	w := New(dir, 0, time.UTC)
	require.NoError(t, w.Append(4, "t", []monitorparse.Pair{{Key: "cpu", Value: 2}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "cpu,1")
}
