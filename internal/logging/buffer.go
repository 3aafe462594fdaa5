package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log record.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	JobID      string         `json:"job_id,omitempty"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries for replay to new log stream
// clients. It is safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	written uint64 // entries ever written; the next slot is written % cap
}

// NewRingBuffer creates a buffer holding up to capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{entries: make([]LogEntry, capacity)}
}

// Write stores entry, overwriting the oldest one when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	rb.entries[rb.written%uint64(len(rb.entries))] = entry
	rb.written++
	rb.mu.Unlock()
}

// ReadAll returns the held entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.collect(nil)
}

// ReadJob returns the held entries logged for one job, oldest first.
func (rb *RingBuffer) ReadJob(jobID string) []LogEntry {
	return rb.collect(func(e *LogEntry) bool { return e.JobID == jobID })
}

// Count returns the number of held entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(min(rb.written, uint64(len(rb.entries))))
}

// Dropped returns how many entries have been overwritten.
func (rb *RingBuffer) Dropped() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if size := uint64(len(rb.entries)); rb.written > size {
		return rb.written - size
	}
	return 0
}

func (rb *RingBuffer) collect(keep func(*LogEntry) bool) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	size := uint64(len(rb.entries))
	var first uint64
	if rb.written > size {
		first = rb.written - size
	}

	var out []LogEntry
	for i := first; i < rb.written; i++ {
		e := &rb.entries[i%size]
		if keep == nil || keep(e) {
			out = append(out, *e)
		}
	}
	return out
}
