// Package metrics provides Prometheus metrics for engine jobs.
package metrics

import (
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/ocrnode/internal/sidecar"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ocrnode",
		Subsystem: "sidecar",
		Name:      "jobs_total",
		Help:      "Finished engine jobs by outcome",
	}, []string{"outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ocrnode",
		Subsystem: "sidecar",
		Name:      "job_duration_seconds",
		Help:      "Wall time from spawn to result",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})

	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ocrnode",
		Subsystem: "sidecar",
		Name:      "active_jobs",
		Help:      "Engine processes currently alive (0 or 1)",
	})

	waitingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ocrnode",
		Subsystem: "sidecar",
		Name:      "waiting_jobs",
		Help:      "Callers blocked on the single-flight guard",
	})

	cancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ocrnode",
		Subsystem: "sidecar",
		Name:      "cancels_total",
		Help:      "Cancellation requests that reached a live job",
	})

	// Local cache for SSE exporter access.
	cache   = JobMetrics{Jobs: make(map[string]float64)}
	cacheMu sync.RWMutex
)

// JobMetrics holds current metric values.
type JobMetrics struct {
	Active  bool
	Waiting int
	Jobs    map[string]float64 // finished jobs by outcome
	Cancels float64
}

// RecordJob counts a finished job and observes its duration.
func RecordJob(outcome string, d time.Duration) {
	jobsTotal.WithLabelValues(outcome).Inc()
	jobDuration.WithLabelValues(outcome).Observe(d.Seconds())

	cacheMu.Lock()
	cache.Jobs[outcome]++
	cacheMu.Unlock()
}

// SetActive records whether an engine process is alive.
func SetActive(active bool) {
	if active {
		activeJobs.Set(1)
	} else {
		activeJobs.Set(0)
	}
	cacheMu.Lock()
	cache.Active = active
	cacheMu.Unlock()
}

// SetWaiting records the number of queued callers.
func SetWaiting(n int) {
	waitingJobs.Set(float64(n))
	cacheMu.Lock()
	cache.Waiting = n
	cacheMu.Unlock()
}

// RecordCancel counts a cancellation that reached a job.
func RecordCancel() {
	cancelsTotal.Inc()
	cacheMu.Lock()
	cache.Cancels++
	cacheMu.Unlock()
}

// Snapshot returns a copy of the current values.
func Snapshot() JobMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	dup := cache
	dup.Jobs = maps.Clone(cache.Jobs)
	return dup
}

// Observe chains metric hooks onto opts. Hooks already set on opts still run first.
func Observe(opts *sidecar.Options) {
	prevState := opts.OnStateChange
	opts.OnStateChange = func(jobID string, oldState, newState sidecar.State, err error) {
		if prevState != nil {
			prevState(jobID, oldState, newState, err)
		}
		switch {
		case newState == sidecar.StateRunning:
			SetActive(true)
		case newState.Terminal():
			SetActive(false)
		}
	}

	prevWaiters := opts.OnWaitersChange
	opts.OnWaitersChange = func(waiting int) {
		if prevWaiters != nil {
			prevWaiters(waiting)
		}
		SetWaiting(waiting)
	}

	prevCancel := opts.OnCancel
	opts.OnCancel = func(jobID string) {
		if prevCancel != nil {
			prevCancel(jobID)
		}
		RecordCancel()
	}

	prevFinish := opts.OnFinish
	opts.OnFinish = func(res sidecar.Result) {
		if prevFinish != nil {
			prevFinish(res)
		}
		RecordJob(string(res.Outcome), res.Duration)
	}
}
