package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SuccessfulShellCommand(t *testing.T) {
	res, err := Run(context.Background(), Input{
		Shell:      true,
		Command:    "echo hi; exit 0",
		TimeoutSec: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "hi")
	assert.False(t, res.TimedOut)
}

func TestRun_NonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), Input{
		Shell:      true,
		Command:    "exit 7",
		TimeoutSec: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestRun_ArgvWithoutShell(t *testing.T) {
	res, err := Run(context.Background(), Input{
		Argv:       []string{"printf", "%s", "hello"},
		TimeoutSec: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
}

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("slow: exercises real TERM/KILL grace period")
	}
	start := time.Now()
	res, err := Run(context.Background(), Input{
		Shell:        true,
		Command:      "trap '' TERM; sleep 30",
		TimeoutSec:   1 * time.Second,
		TermGraceSec: 1 * time.Second,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Contains(t, []int{124, 137}, res.ExitCode)
	assert.Less(t, elapsed, 10*time.Second, "supervisor must not wait for the full sleep")
}

func TestRun_TimeoutGracefulTermExit(t *testing.T) {
	if testing.Short() {
		t.Skip("slow: exercises real TERM grace period")
	}
	res, err := Run(context.Background(), Input{
		Shell:        true,
		Command:      "sleep 30",
		TimeoutSec:   1 * time.Second,
		TermGraceSec: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Contains(t, []int{124, 137}, res.ExitCode)
}

func TestRun_LaunchErrorOnEmptyArgv(t *testing.T) {
	_, err := Run(context.Background(), Input{TimeoutSec: time.Second})
	require.Error(t, err)
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
}
