package sidecar

import "time"

// State is a phase of the job state machine.
type State string

// Active states.
const (
	StateIdle       State = "idle"
	StateSpawning   State = "spawning"
	StateRunning    State = "running"
	StateCancelling State = "cancelling"
)

// Terminal states. A job passes through one of these before the supervisor
// returns to StateIdle.
const (
	StateCompleted         State = "completed"
	StateCancelledGraceful State = "cancelled_graceful"
	StateCancelledForced   State = "cancelled_forced"
	StateTimedOut          State = "timed_out"
	StateCrashed           State = "crashed"
	StateLaunchFailed      State = "launch_failed"
)

// Terminal reports whether s ends a job.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelledGraceful, StateCancelledForced,
		StateTimedOut, StateCrashed, StateLaunchFailed:
		return true
	}
	return false
}

// Status is a snapshot of the supervisor.
type Status struct {
	State     State
	JobID     string
	PID       int
	StartedAt time.Time
	Waiting   int // callers blocked on the single-flight guard

	LastJobID   string
	LastState   State
	LastOutcome Outcome
	LastError   string
	LastEndedAt time.Time
}
