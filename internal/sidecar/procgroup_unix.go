//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sidecar

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the engine in its own process group so a forced kill
// also reaches any helpers it forked.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	// Best effort on the group; the direct kill below reports the real result.
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	return cmd.Process.Kill()
}
