//go:build linux

package sidecar

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// ioprio_set(2) encoding.
const (
	ioprioWhoProcess = 1
	ioprioClassIdle  = 3
	ioprioClassShift = 13
)

type linuxThrottler struct {
	opts ThrottleOptions
}

func newPlatformThrottler(opts ThrottleOptions) Throttler {
	return &linuxThrottler{opts: opts}
}

func (t *linuxThrottler) Prepare(*exec.Cmd) {}

// Apply lowers the CPU and I/O priority of every thread pid has so far.
// Linux keeps both per thread; threads created later inherit from their
// creator, so one spawned by a thread between listing and the call keeps
// the old priority. That window is the first instant after start and is
// accepted.
func (t *linuxThrottler) Apply(pid int) error {
	if t.opts.Niceness <= 0 && !t.opts.IdleIO {
		return nil
	}
	var errs []error
	for _, tid := range taskIDs(pid) {
		if err := t.applyThread(tid); err != nil {
			if tid != pid && errors.Is(err, unix.ESRCH) {
				continue // thread exited meanwhile
			}
			errs = append(errs, fmt.Errorf("thread %d: %w", tid, err))
		}
	}
	return errors.Join(errs...)
}

func (t *linuxThrottler) applyThread(tid int) error {
	var errs []error
	if t.opts.Niceness > 0 {
		if err := unix.Setpriority(unix.PRIO_PROCESS, tid, t.opts.Niceness); err != nil {
			errs = append(errs, fmt.Errorf("setpriority: %w", err))
		}
	}
	if t.opts.IdleIO {
		prio := uintptr(ioprioClassIdle << ioprioClassShift)
		if _, _, errno := unix.Syscall(unix.SYS_IOPRIO_SET, ioprioWhoProcess, uintptr(tid), prio); errno != 0 {
			errs = append(errs, fmt.Errorf("ioprio_set: %w", errno))
		}
	}
	return errors.Join(errs...)
}

// taskIDs lists the thread ids of pid, falling back to pid alone when
// /proc is unavailable.
func taskIDs(pid int) []int {
	entries, err := os.ReadDir("/proc/" + strconv.Itoa(pid) + "/task")
	if err != nil {
		return []int{pid}
	}
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		if id, err := strconv.Atoi(e.Name()); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []int{pid}
	}
	return ids
}
