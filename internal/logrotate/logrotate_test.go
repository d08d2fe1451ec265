package logrotate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendRun_WritesHeaderAndBody(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 7, time.UTC)

	_, _, err := r.AppendRun("nightly", 42, "hello\n", "oops\n")
	require.NoError(t, err)

	date := time.Now().UTC().Format("20060102")
	out, err := os.ReadFile(filepath.Join(dir, "run_"+date+".out.log"))
	require.NoError(t, err)
	require.Contains(t, string(out), "task=nightly run=42")
	require.Contains(t, string(out), "hello")

	errLog, err := os.ReadFile(filepath.Join(dir, "run_"+date+".err.log"))
	require.NoError(t, err)
	require.Contains(t, string(errLog), "oops")
}

func TestAppendRun_AddsMissingTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 7, time.UTC)
	_, _, err := r.AppendRun("t", 1, "no newline", "")
	require.NoError(t, err)

	date := time.Now().UTC().Format("20060102")
	out, err := os.ReadFile(filepath.Join(dir, "run_"+date+".out.log"))
	require.NoError(t, err)
	require.Contains(t, string(out), "no newline\n")
}

func TestGC_RemovesFilesOlderThanBackupDays(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "run_20000101.out.log")
	require.NoError(t, os.WriteFile(old, []byte("stale"), 0o644))
	ignored := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(ignored, []byte("keep me"), 0o644))

	r := New(dir, 1, time.UTC)
	_, _, err := r.AppendRun("t", 2, "x\n", "")
	require.NoError(t, err)

	_, err = os.Stat(old)
	require.True(t, os.IsNotExist(err), "stale run log must be garbage collected")

	_, err = os.Stat(ignored)
	require.NoError(t, err, "non-matching file names are left alone")
}

func TestNew_ClampsBackupDaysToMinimumOne(t *testing.T) {
	r := New(t.TempDir(), 0, time.UTC)
	require.Equal(t, 1, r.backupDays)
}

func TestAppLogWriter_RotatesPastMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	w := NewAppLogWriter(path, 10, 2)

	_, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Write([]byte("more"))
	require.NoError(t, err)

	_, err = os.Stat(path + ".1")
	require.NoError(t, err, "exceeding maxBytes rotates the active file")
}
