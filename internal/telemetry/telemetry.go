// Package telemetry exports sync metrics for Prometheus.
//
// Metrics are local only: they are served on the desktop API's /metrics endpoint
// and nothing is pushed anywhere. Collection is off unless METRICS_ENABLED is set.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	syncpkg "github.com/kimhsiao/damagelog/backend/internal/sync"
	"github.com/kimhsiao/damagelog/backend/internal/sync/status"
)

// Recorder updates sync metrics from engine events and status snapshots.
type Recorder struct {
	registry *prometheus.Registry

	// EntriesSynced counts entries removed from the queue after a successful sync
	EntriesSynced prometheus.Counter
	// EntriesFailed counts failed entry attempts; each one is retried later
	EntriesFailed prometheus.Counter
	// ImageFailures counts skipped images
	ImageFailures prometheus.Counter
	// Drains counts drain requests by outcome (completed/in_progress/offline)
	Drains *prometheus.CounterVec
	// DrainDuration measures drains that processed at least one entry
	DrainDuration prometheus.Histogram
	// QueuePending is the number of pending and errored entries
	QueuePending prometheus.Gauge
	// Online is 1 while the remote is reachable
	Online prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		EntriesSynced: f.NewCounter(prometheus.CounterOpts{
			Name: "damagelog_entries_synced_total",
			Help: "Total number of queued entries synced to the remote",
		}),
		EntriesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "damagelog_entries_failed_total",
			Help: "Total number of failed entry sync attempts",
		}),
		ImageFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "damagelog_image_upload_failures_total",
			Help: "Total number of images skipped because upload or insert failed",
		}),
		Drains: f.NewCounterVec(prometheus.CounterOpts{
			Name: "damagelog_drains_total",
			Help: "Total number of drain requests by outcome",
		}, []string{"outcome"}),
		DrainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "damagelog_drain_duration_seconds",
			Help:    "Duration of drains that processed entries",
			Buckets: prometheus.DefBuckets,
		}),
		QueuePending: f.NewGauge(prometheus.GaugeOpts{
			Name: "damagelog_queue_pending",
			Help: "Current number of pending and errored entries",
		}),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Name: "damagelog_online",
			Help: "Remote reachability (1 online, 0 offline)",
		}),
	}
}

// OnSyncEvent implements sync.SyncEventHandler.
func (r *Recorder) OnSyncEvent(event syncpkg.SyncEvent) {
	switch event.Type {
	case syncpkg.SyncEventEntrySynced:
		r.EntriesSynced.Inc()
	case syncpkg.SyncEventEntryFailed:
		r.EntriesFailed.Inc()
	case syncpkg.SyncEventImageFailed:
		r.ImageFailures.Inc()
	case syncpkg.SyncEventSkipped:
		if event.Result != nil {
			r.Drains.WithLabelValues(event.Result.Skipped).Inc()
		}
	case syncpkg.SyncEventCompleted:
		r.Drains.WithLabelValues("completed").Inc()
		if event.Result != nil && event.Result.Attempted > 0 {
			r.DrainDuration.Observe(event.Result.Duration.Seconds())
		}
	}
}

// ObserveSnapshot updates the gauges from a status snapshot.
func (r *Recorder) ObserveSnapshot(s status.Snapshot) {
	r.QueuePending.Set(float64(s.Pending))
	if s.Online {
		r.Online.Set(1)
	} else {
		r.Online.Set(0)
	}
}

// Registry returns the registry holding the metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
