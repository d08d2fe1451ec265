package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekendOracle(t *testing.T) {
	o := WeekendOracle{}
	sat := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) // Saturday
	mon := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC) // Monday

	assert.False(t, o.IsWorkday(sat))
	assert.True(t, o.IsWorkday(mon))
}

func TestAllow_AllPolicies(t *testing.T) {
	o := WeekendOracle{}
	sat := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mon := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		policy HolidayPolicy
		date   time.Time
		want   bool
	}{
		{PolicyNone, sat, true},
		{PolicyNone, mon, true},
		{PolicyCNWorkdayOnly, sat, false},
		{PolicyCNWorkdayOnly, mon, true},
		{PolicySkipCNHoliday, sat, false},
		{PolicySkipCNHoliday, mon, true},
		{PolicySkipCNWorkday, sat, true},
		{PolicySkipCNWorkday, mon, false},
	}
	for _, tc := range cases {
		got := Allow(tc.policy, o, tc.date)
		assert.Equal(t, tc.want, got, "policy=%s date=%s", tc.policy, tc.date)
	}
}

func TestAllow_NilOracleDefaultsToAllowed(t *testing.T) {
	assert.True(t, Allow(PolicyCNWorkdayOnly, nil, time.Now()))
}

func TestOverrideOracle_ShiftedWorkday(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"date":"2026-08-01","type":"work"},
		{"date":"2026-08-03","type":"holiday"}
	]`), 0o600))

	o := NewOverrideOracle(WeekendOracle{}, path)

	sat := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mon := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	tue := time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC)

	assert.True(t, o.IsWorkday(sat), "shifted workday should be a workday")
	assert.False(t, o.IsWorkday(mon), "shifted holiday should not be a workday")
	assert.True(t, o.IsWorkday(tue), "unlisted weekday falls back to base oracle")
}

func TestOverrideOracle_MissingFileDegradesToBase(t *testing.T) {
	o := NewOverrideOracle(WeekendOracle{}, filepath.Join(t.TempDir(), "missing.json"))
	mon := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	assert.True(t, o.IsWorkday(mon))
}

func TestNewRealClock_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	c := NewRealClock("Not/A_Real_Zone")
	assert.Equal(t, time.UTC, c.Location())
}
