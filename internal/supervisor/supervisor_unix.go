//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

const (
	shellPath = "/bin/sh"
	shellFlag = "-c"
)

// newProcessGroup isolates the child into its own process group so the
// whole tree can be signalled at once.
func newProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends SIGTERM (or SIGKILL) to the negative pid, i.e. the
// whole process group rooted at pid.
func signalGroup(pid int, kill bool) {
	sig := syscall.SIGTERM
	if kill {
		sig = syscall.SIGKILL
	}
	_ = syscall.Kill(-pid, sig) //nolint:errcheck // best-effort signal; exit status is observed via Wait
}
