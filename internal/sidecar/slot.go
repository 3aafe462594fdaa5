package sidecar

import (
	"sync"
	"time"
)

// JobInfo is a read-only view of the handle held by a Slot.
type JobInfo struct {
	ID              string
	PID             int
	StartedAt       time.Time
	CancelRequested bool
}

// Slot holds at most one JobHandle. The mutex only guards the pointer and is
// never held while waiting on a process.
type Slot struct {
	mu sync.Mutex
	h  *JobHandle
}

// Put stores h. It panics if the slot is already occupied, which would mean
// two jobs are running at once.
func (s *Slot) Put(h *JobHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h != nil {
		panic("sidecar: job slot already occupied by " + s.h.id)
	}
	s.h = h
}

// Take removes and returns the handle, or nil if the slot is empty. Whoever
// receives a non-nil handle owns its termination.
func (s *Slot) Take() *JobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.h
	s.h = nil
	return h
}

// Current returns a snapshot of the held job without transferring ownership.
func (s *Slot) Current() (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == nil {
		return JobInfo{}, false
	}
	return s.h.info(), true
}
