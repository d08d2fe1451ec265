// Package catalogue is the read-only in-memory registry of named argv
// templates loaded from JOBS_FILE, with a whole-snapshot-swap reload
// discipline: a failed reload never corrupts the previously loaded
// catalogue.
package catalogue

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Job is one entry in the catalogue file.
type Job struct {
	ID    string   `json:"id"`
	Cmd   []string `json:"cmd"`
	Label string   `json:"label,omitempty"`
	Style string   `json:"style,omitempty"`
}

// rawFile matches either a bare JSON list or {"jobs": [...]}.
type rawFile struct {
	Jobs []json.RawMessage `json:"jobs"`
}

// Catalogue is a point-in-time snapshot of the job registry plus the
// last diagnostic string surfaced to the UI.
type Catalogue struct {
	mu         sync.RWMutex
	jobs       map[string]Job
	diagnostic string
	fingerprint [32]byte
}

// New returns an empty catalogue; call Reload to populate it.
func New() *Catalogue {
	return &Catalogue{jobs: map[string]Job{}}
}

// Diagnostic returns the most recent parse diagnostic (empty string
// when the last reload succeeded cleanly).
func (c *Catalogue) Diagnostic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.diagnostic
}

// Lookup returns the job for id, if present.
func (c *Catalogue) Lookup(id string) (Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[id]
	return j, ok
}

// Reload parses path and, on success, atomically replaces the whole
// snapshot. On parse failure the previous snapshot is preserved and the
// diagnostic string is updated to describe the failure; the process
// never crashes over a malformed catalogue file.
//
// If the file's content fingerprint matches the last successful load,
// parsing is skipped entirely — this only elides redundant identical
// swaps and never changes observable reload semantics.
func (c *Catalogue) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		c.setDiagnostic(errors.Wrapf(err, "reading jobs file %s", path).Error())
		return err
	}

	sum := blake2b.Sum256(data)
	c.mu.RLock()
	unchanged := c.fingerprint == sum
	c.mu.RUnlock()
	if unchanged {
		return nil
	}

	jobs, diag, err := parse(data)
	if err != nil {
		c.setDiagnostic(err.Error())
		return err
	}

	c.mu.Lock()
	c.jobs = jobs
	c.diagnostic = diag
	c.fingerprint = sum
	c.mu.Unlock()

	slog.Info("job catalogue reloaded", "jobs", len(jobs), "fingerprint", hex.EncodeToString(sum[:8]))
	return nil
}

func (c *Catalogue) setDiagnostic(msg string) {
	c.mu.Lock()
	c.diagnostic = msg
	c.mu.Unlock()
	slog.Warn("job catalogue reload failed, keeping previous snapshot", "error", msg)
}

// parse accepts either a bare JSON array of jobs or an object with a
// "jobs" key. Entries lacking an id or with a non-array cmd are
// silently discarded (never surfaced as fatal).
func parse(data []byte) (map[string]Job, string, error) {
	var list []json.RawMessage

	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, "", errors.Wrap(err, "parsing jobs file as list")
		}
	case strings.HasPrefix(trimmed, "{"):
		var f rawFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, "", errors.Wrap(err, "parsing jobs file as object")
		}
		list = f.Jobs
	default:
		return nil, "", errors.New("jobs file must be a JSON list or object")
	}

	jobs := make(map[string]Job, len(list))
	discarded := 0
	for _, raw := range list {
		var j Job
		if err := json.Unmarshal(raw, &j); err != nil {
			discarded++
			continue
		}
		if j.ID == "" {
			discarded++
			continue
		}
		jobs[j.ID] = j
	}

	diag := ""
	if discarded > 0 {
		diag = errors.Errorf("discarded %d malformed job entries", discarded).Error()
	}
	return jobs, diag, nil
}

// ResolveArgv materialises a job's argv for a given task name and extra
// positional args, substituting its [token]/{token} placeholders.
func ResolveArgv(j Job, taskName string, extraArgs []string) []string {
	replacer := strings.NewReplacer(
		"[label]", j.Label, "{label}", j.Label,
		"[style]", j.Style, "{style}", j.Style,
		"[task_name]", taskName, "{task_name}", taskName,
	)
	argv := make([]string, 0, len(j.Cmd)+len(extraArgs))
	for _, tok := range j.Cmd {
		argv = append(argv, replacer.Replace(tok))
	}
	argv = append(argv, extraArgs...)
	return argv
}
