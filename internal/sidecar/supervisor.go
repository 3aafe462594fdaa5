package sidecar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/smazurov/ocrnode/internal/ipc"
)

// DefaultTimeout bounds a job from spawn to result.
const DefaultTimeout = 120 * time.Second

// Spawner starts an engine for one request. *Launcher is the production
// implementation. Spawn must not block on the engine: the request frame is
// written by the supervisor once the handle is published.
type Spawner interface {
	Spawn(ctx context.Context, jobID string, req *ipc.Request) (*JobHandle, error)
}

// Result describes a finished job for observers.
type Result struct {
	JobID    string
	State    State
	Outcome  Outcome
	Err      error
	Boxes    int
	Duration time.Duration
}

// Options configures a Supervisor.
type Options struct {
	Spawner Spawner
	Timeout time.Duration // DefaultTimeout if zero
	Grace   time.Duration // DefaultGrace if zero
	Logger  *slog.Logger

	// Optional hooks. They run synchronously and must not block.
	OnStateChange   func(jobID string, oldState, newState State, err error)
	OnWaitersChange func(waiting int)
	OnCancel        func(jobID string)
	OnFinish        func(Result)
}

// Supervisor runs at most one engine job at a time.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
	sem    *semaphore.Weighted
	slot   Slot

	mu            sync.Mutex
	timeout       time.Duration
	grace         time.Duration
	state         State
	jobID         string
	waiting       int
	cancelPending bool
	spawn         *spawnWait
	last          Result
	lastEndedAt   time.Time
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{
		opts:    opts,
		logger:  opts.Logger,
		sem:     semaphore.NewWeighted(1),
		timeout: opts.Timeout,
		grace:   opts.Grace,
		state:   StateIdle,
	}
}

// SetTuning replaces the timeout and grace period for jobs started from now on.
// Zero values keep the current setting.
func (s *Supervisor) SetTuning(timeout, grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timeout > 0 {
		s.timeout = timeout
	}
	if grace > 0 {
		s.grace = grace
	}
}

// Tuning returns the current timeout and grace period.
func (s *Supervisor) Tuning() (timeout, grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout, s.grace
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		State:       s.state,
		JobID:       s.jobID,
		Waiting:     s.waiting,
		LastJobID:   s.last.JobID,
		LastState:   s.last.State,
		LastOutcome: s.last.Outcome,
		LastEndedAt: s.lastEndedAt,
	}
	if s.last.Err != nil {
		st.LastError = s.last.Err.Error()
	}
	s.mu.Unlock()

	if info, ok := s.slot.Current(); ok {
		st.PID = info.PID
		st.StartedAt = info.StartedAt
	}
	return st
}

// Run executes req on a fresh engine and returns its boxes. Calls are
// serialized in arrival order; a caller whose ctx ends while queued gets
// ctx.Err() without spawning anything. If ctx ends while the job runs, the
// job is cancelled.
func (s *Supervisor) Run(ctx context.Context, req *ipc.Request) ([]ipc.Box, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	s.addWaiting(1)
	err := s.sem.Acquire(ctx, 1)
	s.addWaiting(-1)
	if err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	return s.run(ctx, req)
}

// spawnWait lets a Cancel that arrives during spawning learn whether an
// engine was actually targeted.
type spawnWait struct {
	done     chan struct{}
	abort    context.CancelCauseFunc
	targeted bool // valid once done is closed
}

func (s *Supervisor) run(ctx context.Context, req *ipc.Request) ([]ipc.Box, error) {
	jobID := uuid.NewString()
	logger := s.logger.With("job_id", jobID)
	timeout, grace := s.Tuning()

	spawnCtx, abortSpawn := context.WithCancelCause(ctx)
	defer abortSpawn(nil)
	sw := &spawnWait{done: make(chan struct{}), abort: abortSpawn}

	s.mu.Lock()
	s.jobID = jobID
	s.cancelPending = false
	s.spawn = sw
	s.mu.Unlock()
	s.transition(jobID, StateSpawning, nil)

	begin := time.Now()
	h, err := s.opts.Spawner.Spawn(spawnCtx, jobID, req)
	if err != nil {
		final := StateLaunchFailed
		if ctxErr := spawnCtx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			// Cancelled before the engine started.
			final, err = StateCancelledGraceful, ErrCancelled
			logger.Info("Job cancelled before the engine started")
		} else {
			logger.Error("Failed to start engine", "error", err)
		}
		s.mu.Lock()
		s.spawn = nil
		s.cancelPending = false
		sw.targeted = final != StateLaunchFailed
		close(sw.done)
		s.mu.Unlock()
		s.finish(jobID, final, nil, err, time.Since(begin))
		return nil, err
	}

	// Publishing the handle, entering StateRunning and consuming a deferred
	// cancel happen under the same lock Cancel holds while it inspects the slot.
	s.mu.Lock()
	s.slot.Put(h)
	pending := s.cancelPending
	s.cancelPending = false
	s.spawn = nil
	sw.targeted = true
	close(sw.done)
	prev := s.state
	s.state = StateRunning
	s.mu.Unlock()
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(jobID, prev, StateRunning, nil)
	}
	logger.Info("Job started", "pid", h.PID(), "timeout", timeout)

	// The frame is written in the background so a deaf engine with a full
	// pipe cannot stall the deadline or an external cancel.
	written := h.sendRequest(req)
	boxes, err := s.supervise(ctx, h, written, timeout, grace, pending)

	// Whoever else took the handle has finished with it once done is closed.
	s.slot.Take()

	final := terminalState(h, err)
	s.finish(jobID, final, boxes, err, time.Since(h.startedAt))
	logger.Info("Job finished", "state", final, "outcome", Classify(err), "duration", time.Since(h.startedAt))
	return boxes, err
}

// supervise waits for the engine, racing its exit against the frame write,
// the deadline and ctx.
func (s *Supervisor) supervise(ctx context.Context, h *JobHandle, written <-chan error, timeout, grace time.Duration, cancelNow bool) ([]ipc.Box, error) {
	if cancelNow {
		s.abort(h, grace)
		return resolve(h)
	}

	deadline := time.NewTimer(time.Until(h.startedAt.Add(timeout)))
	defer deadline.Stop()

	for {
		select {
		case <-h.done:
			return resolve(h)

		case err := <-written:
			written = nil
			if err == nil {
				continue
			}
			return s.undelivered(h, err, grace)

		case <-deadline.C:
			if h.exited() {
				return resolve(h)
			}
			h.logger.Warn("Job deadline exceeded", "timeout", timeout)
			s.abort(h, grace)
			return nil, ErrTimedOut

		case <-ctx.Done():
			h.logger.Info("Caller went away, cancelling job", "reason", context.Cause(ctx))
			s.abort(h, grace)
			return resolve(h)
		}
	}
}

// undelivered handles a request frame the engine stopped reading. An engine
// that exits on its own within grace, or one the cancellation path is
// stopping, reports its own result; otherwise it is killed and the write
// failure is the result.
func (s *Supervisor) undelivered(h *JobHandle, writeErr error, grace time.Duration) ([]ipc.Box, error) {
	settle := time.NewTimer(grace)
	defer settle.Stop()
	select {
	case <-h.done:
		return resolve(h)
	case <-settle.C:
	}

	h.logger.Warn("Engine stopped reading the request", "error", writeErr)
	if owned := s.slot.Take(); owned != nil {
		owned.kill()
	}
	<-h.done
	if h.cancelRequested.Load() {
		return resolve(h)
	}
	return nil, &IOError{Op: "write request", Err: writeErr}
}

// abort runs the cancellation path if the handle is still in the slot. If an
// external Cancel already owns it, abort only waits for the exit.
func (s *Supervisor) abort(h *JobHandle, grace time.Duration) {
	if owned := s.claim(); owned != nil {
		terminate(owned, grace)
		return
	}
	<-h.done
}

func terminalState(h *JobHandle, err error) State {
	switch {
	case err == nil:
		return StateCompleted
	case errors.Is(err, ErrTimedOut):
		return StateTimedOut
	case errors.Is(err, ErrCancelled):
		if h.forced.Load() {
			return StateCancelledForced
		}
		return StateCancelledGraceful
	}
	if state := h.cmd.ProcessState; state != nil && state.Success() {
		// The engine ran to completion and reported a failure itself.
		return StateCompleted
	}
	return StateCrashed
}

func (s *Supervisor) addWaiting(delta int) {
	s.mu.Lock()
	s.waiting += delta
	n := s.waiting
	s.mu.Unlock()
	if s.opts.OnWaitersChange != nil {
		s.opts.OnWaitersChange(n)
	}
}

func (s *Supervisor) transition(jobID string, next State, err error) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next && s.opts.OnStateChange != nil {
		s.opts.OnStateChange(jobID, prev, next, err)
	}
}

func (s *Supervisor) finish(jobID string, final State, boxes []ipc.Box, err error, elapsed time.Duration) {
	res := Result{
		JobID:    jobID,
		State:    final,
		Outcome:  Classify(err),
		Err:      err,
		Boxes:    len(boxes),
		Duration: elapsed,
	}

	s.transition(jobID, final, err)

	s.mu.Lock()
	s.last = res
	s.lastEndedAt = time.Now()
	s.jobID = ""
	s.mu.Unlock()
	s.transition(jobID, StateIdle, nil)

	if s.opts.OnFinish != nil {
		s.opts.OnFinish(res)
	}
}
