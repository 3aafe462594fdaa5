package sidecar

import "os/exec"

// Throttler deprioritizes the engine so it does not starve foreground work.
// Both steps are advisory: Apply errors are logged, never fatal.
type Throttler interface {
	// Prepare adjusts the command before it is started.
	Prepare(cmd *exec.Cmd)
	// Apply adjusts the running process.
	Apply(pid int) error
}

// NoopThrottler leaves the engine at normal priority.
type NoopThrottler struct{}

// Prepare implements Throttler.
func (NoopThrottler) Prepare(*exec.Cmd) {}

// Apply implements Throttler.
func (NoopThrottler) Apply(int) error { return nil }

// ThrottleOptions configures the platform throttler.
type ThrottleOptions struct {
	Niceness int  // CPU niceness to apply, 0 disables
	IdleIO   bool // request the idle I/O scheduling class where supported
}

// NewThrottler returns the throttler for the current platform. On Windows it
// also hides the engine's console window, regardless of opts.
func NewThrottler(opts ThrottleOptions) Throttler {
	return newPlatformThrottler(opts)
}
