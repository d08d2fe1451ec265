// Package logrotate manages the two kinds of on-disk logs the
// orchestrator produces: daily per-run command output, and the
// application's own size-rotated operational log.
package logrotate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Rotator appends per-run stdout/stderr to daily files and garbage
// collects files older than a retention window.
type Rotator struct {
	dir           string
	backupDays    int
	loc           *time.Location
}

// New builds a Rotator rooted at dir. backupDays is clamped to a
// minimum of 1 so a misconfiguration never deletes every log on the
// next append.
func New(dir string, backupDays int, loc *time.Location) *Rotator {
	if backupDays < 1 {
		backupDays = 1
	}
	return &Rotator{dir: dir, backupDays: backupDays, loc: loc}
}

// AppendRun writes stdout/stderr for one run to today's rolling files,
// prefixed with a header line, then garbage-collects stale files. It
// returns the paths the content was appended to, for the caller to
// persist on the Run row.
func (r *Rotator) AppendRun(taskName string, runID int64, stdout, stderr string) (stdoutPath, stderrPath string, err error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "creating log dir")
	}
	now := time.Now().In(r.loc)
	date := now.Format("20060102")
	header := fmt.Sprintf("[%s] task=%s run=%d\n", now.Format(time.RFC3339), taskName, runID)

	stdoutPath = filepath.Join(r.dir, fmt.Sprintf("run_%s.out.log", date))
	stderrPath = filepath.Join(r.dir, fmt.Sprintf("run_%s.err.log", date))

	if err := r.appendOne(stdoutPath, header, stdout); err != nil {
		return "", "", err
	}
	if err := r.appendOne(stderrPath, header, stderr); err != nil {
		return "", "", err
	}

	r.gc(now)
	return stdoutPath, stderrPath, nil
}

func (r *Rotator) appendOne(path, header, body string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening log file %s", path)
	}
	defer f.Close()

	if _, err := f.WriteString(header); err != nil {
		return errors.Wrap(err, "writing log header")
	}
	if _, err := f.WriteString(body); err != nil {
		return errors.Wrap(err, "writing log body")
	}
	if !strings.HasSuffix(body, "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return errors.Wrap(err, "writing trailing newline")
		}
	}
	return nil
}

var runLogName = regexp.MustCompile(`^run_(\d{8})\.(out|err)\.log$`)

// gc removes any run_*.log file whose embedded date is older than the
// retention window. Names that don't match the pattern are left alone.
func (r *Rotator) gc(now time.Time) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -r.backupDays)
	for _, e := range entries {
		m := runLogName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		fileDate, err := time.ParseInLocation("20060102", m[1], r.loc)
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			full := filepath.Join(r.dir, e.Name())
			size := describeSize(full)
			if err := os.Remove(full); err != nil {
				slog.Warn("removing expired run log", "path", full, "size", size, "error", err)
				continue
			}
			slog.Info("removed expired run log", "path", full, "size", size)
		}
	}
}

// AppLogWriter is a size-rotated writer for the application's own
// operational log, rolling app.log -> app.log.1 -> app.log.2 ... up to
// backupCount, once the active file has reached maxBytes.
type AppLogWriter struct {
	path       string
	maxBytes   int64
	backupCount int
}

// NewAppLogWriter builds a writer for path; each Write opens (or
// creates) the file for appending.
func NewAppLogWriter(path string, maxBytes int64, backupCount int) *AppLogWriter {
	return &AppLogWriter{path: path, maxBytes: maxBytes, backupCount: backupCount}
}

func (w *AppLogWriter) Write(p []byte) (int, error) {
	if err := w.rotateIfNeeded(); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "opening app log")
	}
	defer f.Close()
	return f.Write(p)
}

func (w *AppLogWriter) rotateIfNeeded() error {
	if w.maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stating app log")
	}
	if info.Size() < w.maxBytes {
		return nil
	}

	slog.Info("rotating application log", "path", w.path, "size", humanize.Bytes(uint64(info.Size())))

	for i := w.backupCount - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", w.path, i)
		dst := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	if w.backupCount > 0 {
		_ = os.Rename(w.path, w.path+".1")
	}
	return nil
}

// describeSize renders a humanized byte count for a file on disk, used
// in run-log GC messages. A file that can no longer be stat'd (already
// gone, permission change) logs as "0 B" rather than failing the GC
// pass over it.
func describeSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "0 B"
	}
	return humanize.Bytes(uint64(info.Size()))
}
