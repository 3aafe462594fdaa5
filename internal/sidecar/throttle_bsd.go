//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package sidecar

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// bsdThrottler only lowers CPU priority; there is no portable I/O class.
type bsdThrottler struct {
	opts ThrottleOptions
}

func newPlatformThrottler(opts ThrottleOptions) Throttler {
	return &bsdThrottler{opts: opts}
}

func (t *bsdThrottler) Prepare(*exec.Cmd) {}

func (t *bsdThrottler) Apply(pid int) error {
	if t.opts.Niceness <= 0 {
		return nil
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, t.opts.Niceness); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}
	return nil
}
