package events

// Event type constants for kelindar/event.
const (
	TypeJobQueued uint32 = iota + 1
	TypeJobStateChanged
	TypeJobFinished
	TypeCancelRequested
	TypeJobMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// JobQueuedEvent is published whenever the number of callers waiting on the
// single-flight guard changes.
type JobQueuedEvent struct {
	Waiting   int    `json:"waiting" example:"1" doc:"Callers blocked behind the running job"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobQueuedEvent.
func (e JobQueuedEvent) Type() uint32 { return TypeJobQueued }

// JobStateChangedEvent is one transition of the job state machine.
type JobStateChangedEvent struct {
	JobID     string `json:"job_id" example:"6f1c2a4e-8d7b-4a51-9a43-3b0f5e2d9c11" doc:"Job identifier"`
	From      string `json:"from" example:"spawning" doc:"Previous state"`
	To        string `json:"to" example:"running" doc:"New state"`
	Error     string `json:"error,omitempty" doc:"Error that caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobStateChangedEvent.
func (e JobStateChangedEvent) Type() uint32 { return TypeJobStateChanged }

// JobFinishedEvent carries the single terminal outcome of a job.
type JobFinishedEvent struct {
	JobID      string `json:"job_id" doc:"Job identifier"`
	State      string `json:"state" example:"completed" doc:"Terminal state"`
	Outcome    string `json:"outcome" example:"success" doc:"Outcome kind"`
	Error      string `json:"error,omitempty" doc:"Error message for failed jobs"`
	Boxes      int    `json:"boxes" example:"12" doc:"Number of recognized text regions"`
	DurationMs int64  `json:"duration_ms" example:"840" doc:"Wall time from spawn to result"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobFinishedEvent.
func (e JobFinishedEvent) Type() uint32 { return TypeJobFinished }

// CancelRequestedEvent is published when the cancellation path takes a job.
type CancelRequestedEvent struct {
	JobID     string `json:"job_id" doc:"Job being cancelled"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CancelRequestedEvent.
func (e CancelRequestedEvent) Type() uint32 { return TypeCancelRequested }

// JobMetricsEvent is a periodic snapshot of the job counters.
type JobMetricsEvent struct {
	EventType string             `json:"type" example:"job_metrics"`
	Active    bool               `json:"active" doc:"Whether a job is running"`
	Waiting   int                `json:"waiting" doc:"Callers queued behind the running job"`
	Jobs      map[string]float64 `json:"jobs" doc:"Finished jobs by outcome"`
	Cancels   float64            `json:"cancels" doc:"Cancellation requests that reached a job"`
}

// Type returns the event type identifier for JobMetricsEvent.
func (e JobMetricsEvent) Type() uint32 { return TypeJobMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"sidecar" doc:"Source module"`
	JobID      string         `json:"job_id,omitempty" doc:"Job the entry belongs to"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
