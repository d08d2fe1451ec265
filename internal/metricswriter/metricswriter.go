// Package metricswriter appends parsed monitor metrics to a per-task
// CSV file and prunes rows past a retention window.
package metricswriter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/ivybound/taskrunner/internal/monitorparse"
)

// Writer appends metric rows to task_<id>.csv files under dir.
type Writer struct {
	dir             string
	retentionDays   int
	loc             *time.Location
}

// New builds a Writer rooted at dir. retentionDays <= 0 disables
// pruning entirely: rows accumulate forever.
func New(dir string, retentionDays int, loc *time.Location) *Writer {
	return &Writer{dir: dir, retentionDays: retentionDays, loc: loc}
}

// Append writes one row per pair and then prunes the file. Pruning
// failures are logged by the caller via the returned error but never
// fail the run that produced the metrics (callers should log-and-swallow).
func (w *Writer) Append(taskID int64, taskName string, pairs []monitorparse.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating metrics dir")
	}
	path := w.path(taskID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening metrics csv %s", path)
	}
	now := time.Now().In(w.loc).Format(time.RFC3339)
	wr := csv.NewWriter(f)
	for _, p := range pairs {
		if err := wr.Write([]string{now, strconv.FormatInt(taskID, 10), taskName, p.Key, strconv.FormatFloat(p.Value, 'f', -1, 64)}); err != nil {
			f.Close()
			return errors.Wrap(err, "writing metrics row")
		}
	}
	wr.Flush()
	if err := wr.Error(); err != nil {
		f.Close()
		return errors.Wrap(err, "flushing metrics csv")
	}
	f.Close()

	if w.retentionDays > 0 {
		if err := w.prune(path); err != nil {
			return errors.Wrap(err, "pruning metrics csv")
		}
	}
	return nil
}

func (w *Writer) path(taskID int64) string {
	return filepath.Join(w.dir, "task_"+strconv.FormatInt(taskID, 10)+".csv")
}

// prune rewrites the file keeping only rows newer than the retention
// cutoff. Best-effort: any read/parse error aborts without touching
// the original file.
func (w *Writer) prune(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	rows, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		return err
	}

	cutoff := time.Now().In(w.loc).AddDate(0, 0, -w.retentionDays)
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil || !ts.Before(cutoff) {
			kept = append(kept, row)
		}
	}
	if len(kept) == len(rows) {
		return nil
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	wr := csv.NewWriter(out)
	for _, row := range kept {
		if err := wr.Write(row); err != nil {
			out.Close()
			return err
		}
	}
	wr.Flush()
	if err := wr.Error(); err != nil {
		out.Close()
		return err
	}
	out.Close()
	return os.Rename(tmp, path)
}
