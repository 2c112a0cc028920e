package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pathmap"

// Metrics implements every hook interface on top of Prometheus collectors.
type Metrics struct {
	reg prometheus.Gatherer

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	plates       *prometheus.CounterVec
	plateSeconds prometheus.Histogram
	rotations    prometheus.Histogram

	cacheOps   *prometheus.CounterVec
	cacheBytes *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Plate runs by outcome",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete plate run",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		plates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "plates_total",
			Help:      "Plates produced by outcome",
		}, []string{"status"}),
		plateSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "plate_duration_seconds",
			Help:      "Time to fetch, draw and crop one plate",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		rotations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "plate_rotation_degrees",
			Help:      "Rotation applied to each plate",
			Buckets:   prometheus.LinearBuckets(-90, 15, 13),
		}),
		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Cache lookups and writes",
		}, []string{"type", "result"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "written_bytes_total",
			Help:      "Bytes written to the cache",
		}, []string{"type"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tiles",
			Name:      "requests_total",
			Help:      "Tile server responses by host and status",
		}, []string{"host", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tiles",
			Name:      "request_duration_seconds",
			Help:      "Tile request latency",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"host"}),
		requestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tiles",
			Name:      "request_errors_total",
			Help:      "Tile requests that failed without a response",
		}, []string{"host"}),
	}
}

// Install registers m for every hook category.
func (m *Metrics) Install() {
	SetPipelineHooks(m)
	SetCacheHooks(m)
	SetHTTPHooks(m)
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the metrics to path for the node exporter textfile
// collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) OnRunStart(context.Context, string, int) {}

func (m *Metrics) OnRunComplete(_ context.Context, _ string, _ int, d time.Duration, err error) {
	m.runs.WithLabelValues(status(err)).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) OnPlate(_ context.Context, _ string, _ int, angle float64, d time.Duration, err error) {
	m.plates.WithLabelValues(status(err)).Inc()
	m.plateSeconds.Observe(d.Seconds())
	if err == nil {
		m.rotations.Observe(angle)
	}
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheOps.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, code int, d time.Duration) {
	m.requests.WithLabelValues(host, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.requestErrors.WithLabelValues(host).Inc()
}

var (
	_ PipelineHooks = (*Metrics)(nil)
	_ CacheHooks    = (*Metrics)(nil)
	_ HTTPHooks     = (*Metrics)(nil)
)
