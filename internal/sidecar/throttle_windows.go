//go:build windows

package sidecar

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// windowsThrottler works entirely through creation flags.
type windowsThrottler struct {
	opts ThrottleOptions
}

func newPlatformThrottler(opts ThrottleOptions) Throttler {
	return &windowsThrottler{opts: opts}
}

func (t *windowsThrottler) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NO_WINDOW
	if t.opts.Niceness > 0 {
		cmd.SysProcAttr.CreationFlags |= windows.BELOW_NORMAL_PRIORITY_CLASS
	}
}

func (t *windowsThrottler) Apply(int) error { return nil }
