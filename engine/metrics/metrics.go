// Package metrics holds the prometheus collectors shared by the imaging engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "oxy_imaging"

// Metrics groups every collector the engine records into. A nil registerer yields working but
// unregistered collectors, which is what tests and library callers without an endpoint use.
type Metrics struct {
	FetchRequests     *prometheus.CounterVec
	FetchBytes        *prometheus.CounterVec
	FetchCache        *prometheus.CounterVec
	MeshCacheLookups  *prometheus.CounterVec
	MeshCacheEntries  prometheus.Gauge
	VolumeLoads       *prometheus.CounterVec
	VolumeLoadSeconds prometheus.Histogram
	GPUResources      *prometheus.GaugeVec
	FrameSeconds      *prometheus.HistogramVec
	SchedulerTasks    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
//
// Parameters:
//   - reg: the registerer to attach collectors to, or nil
//
// Returns:
//   - *Metrics: the collector set
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Asset fetches by backend and outcome",
		}, []string{"backend", "outcome"}),
		FetchBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "bytes_total",
			Help:      "Bytes returned by asset fetches",
		}, []string{"backend"}),
		FetchCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "cache_total",
			Help:      "HTTP response cache results (hit, miss, revalidated, skipped)",
		}, []string{"result"}),
		MeshCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mesh_cache",
			Name:      "lookups_total",
			Help:      "Mesh cache lookups by result (hit, miss, shared, error)",
		}, []string{"result"}),
		MeshCacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mesh_cache",
			Name:      "entries",
			Help:      "Resolved meshes held in the cache",
		}),
		VolumeLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "volume",
			Name:      "loads_total",
			Help:      "Volume loads by outcome (ready, failed, superseded, unsupported, cleared)",
		}, []string{"outcome"}),
		VolumeLoadSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "volume",
			Name:      "load_seconds",
			Help:      "Time from request to published volume",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		GPUResources: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "renderer",
			Name:      "live_resources",
			Help:      "GPU resources currently owned by render actors",
		}, []string{"backend"}),
		FrameSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "renderer",
			Name:      "frame_seconds",
			Help:      "Render call duration",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"view"}),
		SchedulerTasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_total",
			Help:      "Background tasks by label and outcome",
		}, []string{"label", "outcome"}),
	}
}

// Coalesce returns m, or a fresh unregistered collector set when m is nil.
func Coalesce(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New(nil)
}
