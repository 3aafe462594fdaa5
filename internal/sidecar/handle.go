package sidecar

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/ocrnode/internal/ipc"
)

const (
	maxStdoutBytes = 16 << 20
	maxStderrBytes = 64 << 10
)

// JobHandle is the single live reference to a spawned engine. Output buffers
// and cmd.ProcessState may only be read after done is closed.
type JobHandle struct {
	id        string
	cmd       *exec.Cmd
	startedAt time.Time
	logger    *slog.Logger

	stdinMu   sync.Mutex
	stdin     io.WriteCloser
	frameSent chan struct{} // closed once the request frame write returns

	stdout *limitedBuffer
	stderr *limitedBuffer

	done    chan struct{}
	waitErr error

	cancelRequested atomic.Bool
	forced          atomic.Bool
}

// ID returns the job identifier.
func (h *JobHandle) ID() string { return h.id }

// PID returns the engine's process id.
func (h *JobHandle) PID() int { return h.cmd.Process.Pid }

// Done is closed once the engine has exited and its output is drained.
func (h *JobHandle) Done() <-chan struct{} { return h.done }

func (h *JobHandle) info() JobInfo {
	return JobInfo{
		ID:              h.id,
		PID:             h.PID(),
		StartedAt:       h.startedAt,
		CancelRequested: h.cancelRequested.Load(),
	}
}

// wait reaps the process exactly once.
func (h *JobHandle) wait() {
	h.waitErr = h.cmd.Wait()
	close(h.done)
}

func (h *JobHandle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// sendRequest writes the request frame in the background. The returned
// channel receives the write result exactly once. The write unblocks when the
// engine reads the frame or when its pipe breaks.
func (h *JobHandle) sendRequest(req *ipc.Request) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(h.frameSent)
		h.stdinMu.Lock()
		err := ipc.EncodeRequest(h.stdin, req)
		h.stdinMu.Unlock()
		result <- err
	}()
	return result
}

// requestCancel queues the cancel token behind the request frame without
// waiting for it. A broken pipe means the engine is already gone, which the
// caller observes through done.
func (h *JobHandle) requestCancel() {
	h.cancelRequested.Store(true)
	go func() {
		select {
		case <-h.frameSent:
		case <-h.done:
			return
		}
		h.stdinMu.Lock()
		err := ipc.WriteCancel(h.stdin)
		h.stdinMu.Unlock()
		if err != nil {
			h.logger.Debug("Cancel token not delivered", "error", err)
		}
	}()
}

// kill force-terminates the engine and everything it started.
func (h *JobHandle) kill() {
	if h.exited() {
		return
	}
	h.forced.Store(true)
	if err := killProcessTree(h.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Error("Failed to kill engine", "error", err)
	}
}

// limitedBuffer keeps the first max bytes written and discards the rest while
// still reporting full writes, so a chatty engine never blocks on a pipe.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
	total     int
}

func newLimitedBuffer(maxBytes int) *limitedBuffer {
	return &limitedBuffer{max: maxBytes}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += len(p)
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

func (b *limitedBuffer) String() string {
	return string(b.Bytes())
}

func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

func (b *limitedBuffer) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
