package sidecar

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/ocrnode/internal/ipc"
)

// Sentinel outcomes of a job that did not run to completion.
var (
	ErrCancelled      = errors.New("job cancelled")
	ErrTimedOut       = errors.New("job timed out")
	ErrInvalidRequest = errors.New("invalid request")
)

// LaunchError means the engine could not be located or started.
// The job slot is never occupied when it is returned.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch engine %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// IOError is a failure writing the request to the engine or reading its output.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("engine i/o failed (%s): %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Outcome is the tagged kind of a finished Run.
type Outcome string

// Outcome kinds.
const (
	OutcomeSuccess        Outcome = "success"
	OutcomeWorkerError    Outcome = "worker_error"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeProtocolError  Outcome = "protocol_error"
	OutcomeLaunchFailed   Outcome = "launch_failed"
	OutcomeIOError        Outcome = "io_error"
	OutcomeInvalidRequest Outcome = "invalid_request"
)

// Classify maps an error returned by Supervisor.Run to its Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var (
		workerErr   *ipc.WorkerError
		protocolErr *ipc.ProtocolError
		launchErr   *LaunchError
	)
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimedOut
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalidRequest
	case errors.As(err, &workerErr):
		return OutcomeWorkerError
	case errors.As(err, &protocolErr):
		return OutcomeProtocolError
	case errors.As(err, &launchErr):
		return OutcomeLaunchFailed
	default:
		return OutcomeIOError
	}
}
