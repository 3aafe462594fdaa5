package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/ocrnode/internal/events"
	"github.com/smazurov/ocrnode/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	metrics.RecordJob("cancelled", time.Second)
	metrics.SetWaiting(2)
	defer metrics.SetWaiting(0)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	select {
	case <-mock.published:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	evts := mock.getEvents()
	if len(evts) == 0 {
		t.Fatal("expected at least one event")
	}
	ev, ok := evts[0].(events.JobMetricsEvent)
	if !ok {
		t.Fatalf("expected JobMetricsEvent, got %T", evts[0])
	}
	if ev.EventType != "job_metrics" {
		t.Errorf("type = %q", ev.EventType)
	}
	if ev.Waiting != 2 {
		t.Errorf("waiting = %d, want 2", ev.Waiting)
	}
	if ev.Jobs["cancelled"] < 1 {
		t.Errorf("expected at least one cancelled job, got %v", ev.Jobs)
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	time.Sleep(30 * time.Millisecond)
	countAfterWait := len(mock.getEvents())

	if countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	// Stop before start should not panic
	exporter.Stop()

	exporter.Start(t.Context())
	time.Sleep(50 * time.Millisecond)
	exporter.Stop()

	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypesForEndpoint(t *testing.T) {
	types := GetEventTypesForEndpoint("metrics")
	if _, ok := types["job-metrics"]; !ok {
		t.Error("expected job-metrics for metrics endpoint")
	}

	if types = GetEventTypesForEndpoint("unknown"); len(types) != 0 {
		t.Errorf("expected no event types for unknown endpoint, got %d", len(types))
	}
}

func TestSSEExporterSkipsUnchangedSnapshots(t *testing.T) {
	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	exporter.Start(t.Context())
	defer exporter.Stop()

	time.Sleep(70 * time.Millisecond)
	if n := len(mock.getEvents()); n != 1 {
		t.Fatalf("published %d events for an unchanged snapshot, want 1", n)
	}

	metrics.SetWaiting(3)
	defer metrics.SetWaiting(0)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		evts := mock.getEvents()
		if ev, ok := evts[len(evts)-1].(events.JobMetricsEvent); ok && ev.Waiting == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("changed snapshot was not published")
}
