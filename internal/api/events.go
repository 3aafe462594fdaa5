package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/ocrnode/internal/events"
)

// registerSSERoutes registers the job event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time job events: state transitions, queue changes, cancellations and results. " +
			"The first event is a job-state snapshot of the current job.",
		Tags:     []string{"events"},
		Security: withAuth(),
		Errors:   []int{401},
	}, map[string]any{
		"job-queued":       events.JobQueuedEvent{},
		"job-state":        events.JobStateChangedEvent{},
		"job-finished":     events.JobFinishedEvent{},
		"cancel-requested": events.CancelRequestedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.JobQueuedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobFinishedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CancelRequestedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial snapshot so clients don't start blind.
		st := s.supervisor.Status()
		if err := send.Data(events.JobStateChangedEvent{
			JobID:     st.JobID,
			From:      string(st.State),
			To:        string(st.State),
			Timestamp: time.Now().Format(time.RFC3339Nano),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
