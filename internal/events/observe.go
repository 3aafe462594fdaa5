package events

import (
	"time"

	"github.com/smazurov/ocrnode/internal/sidecar"
)

// Observe chains publishing hooks onto opts so that every job transition,
// queue change, cancellation and result is broadcast on b. Hooks already set
// on opts still run first.
func Observe(b *Bus, opts *sidecar.Options) {
	prevState := opts.OnStateChange
	opts.OnStateChange = func(jobID string, oldState, newState sidecar.State, err error) {
		if prevState != nil {
			prevState(jobID, oldState, newState, err)
		}
		ev := JobStateChangedEvent{
			JobID:     jobID,
			From:      string(oldState),
			To:        string(newState),
			Timestamp: now(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		b.Publish(ev)
	}

	prevWaiters := opts.OnWaitersChange
	opts.OnWaitersChange = func(waiting int) {
		if prevWaiters != nil {
			prevWaiters(waiting)
		}
		b.Publish(JobQueuedEvent{Waiting: waiting, Timestamp: now()})
	}

	prevCancel := opts.OnCancel
	opts.OnCancel = func(jobID string) {
		if prevCancel != nil {
			prevCancel(jobID)
		}
		b.Publish(CancelRequestedEvent{JobID: jobID, Timestamp: now()})
	}

	prevFinish := opts.OnFinish
	opts.OnFinish = func(res sidecar.Result) {
		if prevFinish != nil {
			prevFinish(res)
		}
		ev := JobFinishedEvent{
			JobID:      res.JobID,
			State:      string(res.State),
			Outcome:    string(res.Outcome),
			Boxes:      res.Boxes,
			DurationMs: res.Duration.Milliseconds(),
			Timestamp:  now(),
		}
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
		b.Publish(ev)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339Nano)
}
