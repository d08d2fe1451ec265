//go:build !windows

package alertengine

import (
	"os/exec"
	"syscall"
)

// detachProcess puts the notifier in its own session so it survives
// this process exiting.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
