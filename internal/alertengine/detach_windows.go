//go:build windows

package alertengine

import "os/exec"

// detachProcess is a no-op on Windows; there is no portable equivalent
// of setsid available without CGO.
func detachProcess(cmd *exec.Cmd) {}
