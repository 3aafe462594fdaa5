package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/ocrnode/internal/sidecar"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan JobFinishedEvent, 1)

	unsub := bus.Subscribe(func(e JobFinishedEvent) {
		received <- e
	})
	defer unsub()

	event := JobFinishedEvent{
		JobID:   "job-1",
		State:   "completed",
		Outcome: "success",
		Boxes:   3,
	}
	bus.Publish(event)

	got := <-received
	if got.JobID != event.JobID || got.Boxes != 3 {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan JobQueuedEvent, 1)
	received2 := make(chan JobQueuedEvent, 1)

	unsub1 := bus.Subscribe(func(e JobQueuedEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e JobQueuedEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(JobQueuedEvent{Waiting: 1})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CancelRequestedEvent, 1)

	unsub := bus.Subscribe(func(e CancelRequestedEvent) { received <- e })

	bus.Publish(CancelRequestedEvent{JobID: "a"})
	<-received

	unsub()

	bus.Publish(CancelRequestedEvent{JobID: "b"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	finished := make(chan bool, 1)
	cancelled := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ JobFinishedEvent) { finished <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ CancelRequestedEvent) { cancelled <- true })
	defer unsub2()

	bus.Publish(JobFinishedEvent{JobID: "a"})
	<-finished

	select {
	case <-cancelled:
		t.Fatal("Cancel subscriber should NOT have received JobFinishedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(CancelRequestedEvent{JobID: "a"})
	<-cancelled

	select {
	case <-finished:
		t.Fatal("Finish subscriber should NOT have received CancelRequestedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected a no-op unsubscribe function")
	}
	unsub()
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ JobStateChangedEvent) { receivedCh <- true })
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(JobStateChangedEvent{From: "idle", To: "spawning"})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"JobQueued", JobQueuedEvent{Waiting: 2}},
		{"JobStateChanged", JobStateChangedEvent{From: "running", To: "cancelling"}},
		{"JobFinished", JobFinishedEvent{Outcome: "timed_out"}},
		{"CancelRequested", CancelRequestedEvent{JobID: "x"}},
		{"JobMetrics", JobMetricsEvent{EventType: "job_metrics"}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case JobQueuedEvent:
				unsub = bus.Subscribe(func(e JobQueuedEvent) { received <- e })
			case JobStateChangedEvent:
				unsub = bus.Subscribe(func(e JobStateChangedEvent) { received <- e })
			case JobFinishedEvent:
				unsub = bus.Subscribe(func(e JobFinishedEvent) { received <- e })
			case CancelRequestedEvent:
				unsub = bus.Subscribe(func(e CancelRequestedEvent) { received <- e })
			case JobMetricsEvent:
				unsub = bus.Subscribe(func(e JobMetricsEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestEventJSONOmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(JobFinishedEvent{JobID: "a", State: "completed", Outcome: "success"})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if _, ok := result["error"]; ok {
		t.Errorf("error key should be omitted on success: %s", data)
	}
	if result["outcome"] != "success" {
		t.Errorf("unexpected outcome: %v", result["outcome"])
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[JobFinishedEvent](bus, ch)
	defer unsub()

	bus.Publish(JobFinishedEvent{JobID: "job-7"})

	received := <-ch
	ev, ok := received.(JobFinishedEvent)
	if !ok {
		t.Fatalf("Expected JobFinishedEvent, got %T", received)
	}
	if ev.JobID != "job-7" {
		t.Errorf("Expected job_id job-7, got %s", ev.JobID)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[JobQueuedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(JobQueuedEvent{Waiting: 1})
		done <- true
	}()

	<-done
}

func TestObserve(t *testing.T) {
	bus := New()
	states := make(chan JobStateChangedEvent, 4)
	finished := make(chan JobFinishedEvent, 1)
	queued := make(chan JobQueuedEvent, 1)
	cancels := make(chan CancelRequestedEvent, 1)
	defer bus.Subscribe(func(e JobStateChangedEvent) { states <- e })()
	defer bus.Subscribe(func(e JobFinishedEvent) { finished <- e })()
	defer bus.Subscribe(func(e JobQueuedEvent) { queued <- e })()
	defer bus.Subscribe(func(e CancelRequestedEvent) { cancels <- e })()

	var chained bool
	opts := sidecar.Options{OnFinish: func(sidecar.Result) { chained = true }}
	Observe(bus, &opts)

	opts.OnStateChange("job-1", sidecar.StateRunning, sidecar.StateTimedOut, sidecar.ErrTimedOut)
	opts.OnWaitersChange(2)
	opts.OnCancel("job-1")
	opts.OnFinish(sidecar.Result{
		JobID:    "job-1",
		State:    sidecar.StateTimedOut,
		Outcome:  sidecar.OutcomeTimedOut,
		Err:      errors.New("job timed out"),
		Duration: 1500 * time.Millisecond,
	})

	if !chained {
		t.Error("existing OnFinish hook was not called")
	}

	st := <-states
	if st.From != "running" || st.To != "timed_out" || st.Error == "" {
		t.Errorf("unexpected state event: %+v", st)
	}
	if q := <-queued; q.Waiting != 2 {
		t.Errorf("waiting = %d, want 2", q.Waiting)
	}
	if c := <-cancels; c.JobID != "job-1" {
		t.Errorf("cancel job = %q", c.JobID)
	}
	f := <-finished
	if f.Outcome != "timed_out" || f.DurationMs != 1500 || f.Error != "job timed out" {
		t.Errorf("unexpected finish event: %+v", f)
	}
}
