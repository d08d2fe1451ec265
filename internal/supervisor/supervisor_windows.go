//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

const (
	shellPath = "cmd"
	shellFlag = "/C"
)

// newProcessGroup is a no-op on Windows: there is no process-group
// signalling primitive available here, so termination is best-effort
// against the immediate child only.
func newProcessGroup(cmd *exec.Cmd) {}

// signalGroup best-effort terminates the immediate child only; no tree
// kill is attempted off-POSIX.
func signalGroup(pid int, kill bool) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Kill() //nolint:errcheck // best-effort on non-POSIX hosts
}
