// Package supervisor launches a single user job as a child process,
// captures its output, and enforces a TERM -> grace -> KILL timeout
// policy against the whole process group.
package supervisor

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultTermGrace is used when a caller does not specify one.
const DefaultTermGrace = 5 * time.Second

// Input describes one execution request.
type Input struct {
	// Shell, when true, runs Command through a POSIX shell ("sh -c").
	// When false, Argv is executed directly with no shell.
	Shell   bool
	Command string
	Argv    []string

	TimeoutSec   time.Duration
	TermGraceSec time.Duration
}

// Result is the outcome of one execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// LaunchError distinguishes a failure to start the child (an internal
// error) from a normal or timed-out exit.
type LaunchError struct {
	cause error
}

func (e *LaunchError) Error() string { return "failed to launch child process: " + e.cause.Error() }
func (e *LaunchError) Unwrap() error { return e.cause }

// Run executes Input to completion (or to its timeout) and returns the
// captured result. ctx cancellation is treated the same as a timeout:
// the process group is signalled and reaped the same way.
func Run(ctx context.Context, in Input) (Result, error) {
	execID := uuid.NewString()
	grace := in.TermGraceSec
	if grace <= 0 {
		grace = DefaultTermGrace
	}

	var cmd *exec.Cmd
	if in.Shell {
		cmd = exec.CommandContext(ctx, shellPath, shellFlag, in.Command)
	} else {
		if len(in.Argv) == 0 {
			return Result{}, &LaunchError{cause: errors.New("empty argv")}
		}
		cmd = exec.CommandContext(ctx, in.Argv[0], in.Argv[1:]...)
	}
	cmd.Cancel = nil // we drive timeout ourselves so we can distinguish TERM from KILL
	newProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, &LaunchError{cause: err}
	}

	slog.Debug("supervisor launched child", "exec_id", execID, "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if in.TimeoutSec > 0 {
		timer := time.NewTimer(in.TimeoutSec)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-done:
		return classify(cmd, err, stdout.String(), stderr.String(), false), nil

	case <-timeoutCh:
		return timeoutResult(execID, cmd, done, grace, &stdout, &stderr), nil

	case <-ctx.Done():
		return timeoutResult(execID, cmd, done, grace, &stdout, &stderr), nil
	}
}

func timeoutResult(execID string, cmd *exec.Cmd, done chan error, grace time.Duration, stdout, stderr *bytes.Buffer) Result {
	pid := cmd.Process.Pid
	slog.Warn("supervisor timeout, sending TERM to process group", "exec_id", execID, "pid", pid)
	signalGroup(pid, false)

	select {
	case waitErr := <-done:
		res := classify(cmd, waitErr, stdout.String(), stderr.String(), true)
		if cmd.ProcessState == nil || cmd.ProcessState.ExitCode() < 0 {
			res.ExitCode = 124
		}
		return res
	case <-time.After(grace):
	}

	slog.Warn("supervisor grace expired, sending KILL to process group", "exec_id", execID, "pid", pid)
	signalGroup(pid, true)
	waitErr := <-done // reap
	res := classify(cmd, waitErr, stdout.String(), stderr.String(), true)
	if cmd.ProcessState == nil || cmd.ProcessState.ExitCode() < 0 {
		res.ExitCode = 137
	}
	return res
}

func classify(cmd *exec.Cmd, waitErr error, stdout, stderr string, timedOut bool) Result {
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	} else if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	return Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr, TimedOut: timedOut}
}
