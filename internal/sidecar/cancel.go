package sidecar

import (
	"context"
	"time"
)

// DefaultGrace is how long an engine gets to honor the cancel token.
const DefaultGrace = 500 * time.Millisecond

// terminate runs the cancellation path on h: cancel token, grace period,
// then kill. It returns once the engine has exited. graceful is false when
// the kill was needed.
func terminate(h *JobHandle, grace time.Duration) (graceful bool) {
	if h.exited() {
		return true
	}

	h.requestCancel()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		h.logger.Info("Engine stopped after cancel request")
		return true
	case <-timer.C:
	}

	h.logger.Warn("Engine ignored cancel request, killing", "grace", grace)
	h.kill()
	<-h.done
	return false
}

// Cancel stops the running job, if any, from a path independent of Run.
// It reports whether a job was targeted; with no job it is a no-op. A cancel
// that arrives while a job is being spawned waits for the spawn: an engine
// that never started is not started at all, one that did is cancelled as soon
// as it is running, and a launch failure reports false. A job the timeout
// guard or another Cancel is already stopping reports true without a second
// cancellation. If ctx ends first, termination continues in the background
// and ctx.Err() is returned.
func (s *Supervisor) Cancel(ctx context.Context) (bool, error) {
	s.mu.Lock()
	h := s.slot.Take()
	if h == nil {
		state, jobID, sw := s.state, s.jobID, s.spawn
		first := !s.cancelPending
		if state == StateSpawning && sw != nil {
			s.cancelPending = true
			sw.abort(ErrCancelled)
		}
		s.mu.Unlock()

		switch {
		case state == StateCancelling:
			return true, nil
		case state != StateSpawning || sw == nil:
			return false, nil
		}

		s.logger.Info("Cancel requested while spawning", "job_id", jobID)
		select {
		case <-sw.done:
		case <-ctx.Done():
			return true, ctx.Err()
		}
		if !sw.targeted {
			return false, nil
		}
		if first {
			s.notifyCancel(jobID)
		}
		return true, nil
	}
	moved := s.markCancellingLocked(h.id)
	s.mu.Unlock()
	s.notifyState(h.id, moved)

	s.logger.Info("Cancel requested", "job_id", h.id)
	s.notifyCancel(h.id)

	_, grace := s.Tuning()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		terminate(h, grace)
	}()

	select {
	case <-finished:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

func (s *Supervisor) notifyCancel(jobID string) {
	if s.opts.OnCancel != nil {
		s.opts.OnCancel(jobID)
	}
}

// claim takes the handle out of the slot for the cancellation path and moves
// the job to StateCancelling in one step, so Cancel never sees an empty slot
// with a job still marked running.
func (s *Supervisor) claim() *JobHandle {
	s.mu.Lock()
	h := s.slot.Take()
	moved := h != nil && s.markCancellingLocked(h.id)
	s.mu.Unlock()
	if h != nil {
		s.notifyState(h.id, moved)
	}
	return h
}

// markCancellingLocked moves a running job to StateCancelling. A job that
// already reached a terminal state is left alone. s.mu must be held.
func (s *Supervisor) markCancellingLocked(jobID string) bool {
	if s.jobID != jobID || s.state != StateRunning {
		return false
	}
	s.state = StateCancelling
	return true
}

func (s *Supervisor) notifyState(jobID string, moved bool) {
	if moved && s.opts.OnStateChange != nil {
		s.opts.OnStateChange(jobID, StateRunning, StateCancelling, nil)
	}
}
