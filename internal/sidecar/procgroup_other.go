//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package sidecar

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
