package exporters

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/smazurov/ocrnode/internal/events"
	"github.com/smazurov/ocrnode/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

const heartbeatTicks = 10

// SSEExporter periodically publishes a job metrics snapshot on the event bus.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// run publishes a snapshot right away, then on every tick where it changed.
// An unchanged snapshot is still sent every heartbeatTicks ticks so new
// subscribers do not wait long for their first value.
func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := s.publish()
	idle := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			snap := metrics.Snapshot()
			if idle++; sameMetrics(snap, last) && idle < heartbeatTicks {
				continue
			}
			last = s.publishSnapshot(snap)
			idle = 0
		}
	}
}

func (s *SSEExporter) publish() metrics.JobMetrics {
	return s.publishSnapshot(metrics.Snapshot())
}

func (s *SSEExporter) publishSnapshot(snap metrics.JobMetrics) metrics.JobMetrics {
	s.eventBus.Publish(events.JobMetricsEvent{
		EventType: "job_metrics",
		Active:    snap.Active,
		Waiting:   snap.Waiting,
		Jobs:      snap.Jobs,
		Cancels:   snap.Cancels,
	})
	return snap
}

func sameMetrics(a, b metrics.JobMetrics) bool {
	return a.Active == b.Active && a.Waiting == b.Waiting && a.Cancels == b.Cancels && maps.Equal(a.Jobs, b.Jobs)
}

// GetEventTypesForEndpoint returns event types for a specific SSE endpoint.
func GetEventTypesForEndpoint(endpoint string) map[string]any {
	if endpoint == "metrics" {
		return map[string]any{
			"job-metrics": events.JobMetricsEvent{},
		}
	}
	return map[string]any{}
}
