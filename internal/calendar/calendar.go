// Package calendar provides monotonic/wall clock access in a configured
// local timezone and a pluggable Chinese workday/holiday oracle used by
// the trigger evaluator's holiday_policy gating.
package calendar

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Clock returns the local and UTC views of "now" used throughout the
// daemon. Tests substitute a fixed clock; production uses RealClock.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// RealClock wraps time.Now in a fixed *time.Location.
type RealClock struct {
	loc *time.Location
}

// NewRealClock loads the named IANA zone, falling back to UTC with a
// logged warning if it cannot be loaded (never fails startup over a bad
// timezone string).
func NewRealClock(tz string) *RealClock {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("failed to load timezone, falling back to UTC", "timezone", tz, "error", err)
		loc = time.UTC
	}
	return &RealClock{loc: loc}
}

func (c *RealClock) Now() time.Time       { return time.Now().In(c.loc) }
func (c *RealClock) Location() *time.Location { return c.loc }

// HolidayPolicy enumerates the gating rules a Trigger may apply.
type HolidayPolicy string

const (
	PolicyNone            HolidayPolicy = "NONE"
	PolicyCNWorkdayOnly    HolidayPolicy = "CN_WORKDAY_ONLY"
	PolicySkipCNHoliday    HolidayPolicy = "SKIP_CN_HOLIDAY"
	PolicySkipCNWorkday    HolidayPolicy = "SKIP_CN_WORKDAY"
)

// Oracle answers whether a given local calendar date is a Chinese
// workday. Implementations must never panic; Allow degrades to true
// when the oracle genuinely cannot decide.
type Oracle interface {
	IsWorkday(date time.Time) bool
}

// WeekendOracle treats Saturday/Sunday as the only non-workdays. It is
// always available and is the base fallback for every other oracle.
type WeekendOracle struct{}

func (WeekendOracle) IsWorkday(date time.Time) bool {
	wd := date.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// overrideEntry is one exception date in the overrides file.
type overrideEntry struct {
	Date string `json:"date"` // YYYY-MM-DD, local calendar date
	Type string `json:"type"` // "work" or "holiday"
}

// OverrideOracle layers a static JSON list of shifted workdays/holidays
// (the kind of list Chinese scheduler tools publish yearly for statutory
// holiday shifts) on top of a base oracle. An unparsable or missing
// file degrades to the base oracle rather than failing.
type OverrideOracle struct {
	mu    sync.RWMutex
	base  Oracle
	work  map[string]bool
	holi  map[string]bool
	valid bool
}

// NewOverrideOracle loads path once at construction time. The returned
// oracle is safe for concurrent use; call Reload to re-read the file.
func NewOverrideOracle(base Oracle, path string) *OverrideOracle {
	o := &OverrideOracle{base: base}
	if path != "" {
		if err := o.Reload(path); err != nil {
			slog.Warn("holiday overrides unavailable, using base oracle", "path", path, "error", err)
		}
	}
	return o
}

// Reload re-reads and re-parses the override file, swapping the whole
// snapshot atomically on success. A failed reload leaves the previous
// snapshot (or the unloaded base-only state) untouched.
func (o *OverrideOracle) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading holiday overrides %s", path)
	}
	var entries []overrideEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Wrapf(err, "parsing holiday overrides %s", path)
	}
	work := make(map[string]bool)
	holi := make(map[string]bool)
	for _, e := range entries {
		switch e.Type {
		case "work":
			work[e.Date] = true
		case "holiday":
			holi[e.Date] = true
		}
	}
	o.mu.Lock()
	o.work, o.holi, o.valid = work, holi, true
	o.mu.Unlock()
	return nil
}

func (o *OverrideOracle) IsWorkday(date time.Time) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.valid {
		key := date.Format("2006-01-02")
		if o.work[key] {
			return true
		}
		if o.holi[key] {
			return false
		}
	}
	return o.base.IsWorkday(date)
}

// Allow evaluates a HolidayPolicy against an oracle for the given local
// date. A nil oracle means "unavailable": default to allowed.
func Allow(policy HolidayPolicy, oracle Oracle, localDate time.Time) bool {
	if oracle == nil {
		return true
	}
	switch policy {
	case PolicyNone, "":
		return true
	case PolicyCNWorkdayOnly, PolicySkipCNHoliday:
		// Workday and holiday are complements under the binary oracle,
		// so both policies reduce to the same check.
		return oracle.IsWorkday(localDate)
	case PolicySkipCNWorkday:
		return !oracle.IsWorkday(localDate)
	default:
		return true
	}
}
