package sidecar

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/smazurov/ocrnode/internal/ipc"
)

// resolve turns an exited engine into the job's result. Precedence:
// cancel exit code, kill by the cancellation path, stderr on failure,
// structured stdout.
func resolve(h *JobHandle) ([]ipc.Box, error) {
	state := h.cmd.ProcessState
	if state == nil {
		return nil, &IOError{Op: "wait", Err: h.waitErr}
	}

	code := state.ExitCode()
	if code == ipc.ExitCancelled {
		return nil, ErrCancelled
	}
	if h.forced.Load() && !state.Success() {
		return nil, ErrCancelled
	}

	if !state.Success() {
		if msg := strings.TrimSpace(h.stderr.String()); msg != "" {
			return nil, &ipc.WorkerError{Message: msg, ExitCode: code}
		}
		_, err := decodeStdout(h)
		var workerErr *ipc.WorkerError
		if errors.As(err, &workerErr) {
			workerErr.ExitCode = code
			return nil, workerErr
		}
		return nil, &ipc.WorkerError{Message: exitMessage(state.String(), code), ExitCode: code}
	}

	// Output readers failed; ErrWaitDelay only means a helper held the pipes.
	if h.waitErr != nil && !errors.Is(h.waitErr, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if !errors.As(h.waitErr, &exitErr) {
			return nil, &IOError{Op: "read output", Err: h.waitErr}
		}
	}
	return decodeStdout(h)
}

func decodeStdout(h *JobHandle) ([]ipc.Box, error) {
	if h.stdout.Truncated() {
		perr := ipc.NewProtocolError(fmt.Sprintf("output exceeds %d bytes", maxStdoutBytes), h.stdout.Bytes())
		perr.Size = h.stdout.Total()
		return nil, perr
	}
	return ipc.DecodeOutput(h.stdout.Bytes())
}

func exitMessage(state string, code int) string {
	if code < 0 {
		return "worker " + state
	}
	return fmt.Sprintf("worker exited with code %d", code)
}
