package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Overlay operation labels.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Metrics holds Prometheus counters and gauges for the stream control plane.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	streamsStartedTotal prometheus.Counter
	streamsStoppedTotal prometheus.Counter
	launchFailuresTotal prometheus.Counter
	reapedTotal         prometheus.Counter
	overlayOpsTotal     *prometheus.CounterVec
	activeProcesses     prometheus.Gauge
	requestDuration     *prometheus.HistogramVec
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		streamsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_streams_started_total",
			Help: "Total number of transcoder processes launched",
		}),
		streamsStoppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_streams_stopped_total",
			Help: "Total number of transcoder processes asked to terminate",
		}),
		launchFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_stream_launch_failures_total",
			Help: "Total number of start requests whose transcoder failed to launch",
		}),
		reapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_streams_reaped_total",
			Help: "Total number of exited transcoders pruned from the process table",
		}),
		overlayOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_store_operations_total",
			Help: "Total number of successful overlay store operations",
		}, []string{"op"}),
		activeProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_active_transcoders",
			Help: "Number of transcoder processes currently tracked",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overlay_http_request_duration_seconds",
			Help:    "HTTP request latency by method and matched route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.streamsStartedTotal,
		m.streamsStoppedTotal,
		m.launchFailuresTotal,
		m.reapedTotal,
		m.overlayOpsTotal,
		m.activeProcesses,
		m.requestDuration,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveRequest records the latency of one request. route is the matched
// route pattern, so /hls/camA/seg_0001.ts and /hls/camB/index.m3u8 share a series.
func (m *Metrics) ObserveRequest(method, route string, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncStreamsStarted increments the launched transcoder counter.
func (m *Metrics) IncStreamsStarted() {
	m.streamsStartedTotal.Inc()
}

// IncStreamsStopped increments the stopped transcoder counter.
func (m *Metrics) IncStreamsStopped() {
	m.streamsStoppedTotal.Inc()
}

// IncLaunchFailures increments the launch failure counter.
func (m *Metrics) IncLaunchFailures() {
	m.launchFailuresTotal.Inc()
}

// AddReaped adds n pruned processes.
func (m *Metrics) AddReaped(n int) {
	m.reapedTotal.Add(float64(n))
}

// IncOverlayOp counts one overlay store operation; op is one of the Op* labels.
func (m *Metrics) IncOverlayOp(op string) {
	m.overlayOpsTotal.WithLabelValues(op).Inc()
}

// SetActiveProcesses sets the tracked transcoder gauge.
func (m *Metrics) SetActiveProcesses(n int) {
	m.activeProcesses.Set(float64(n))
}

// StreamsStarted exposes the launch counter for tests.
func (m *Metrics) StreamsStarted() prometheus.Counter {
	return m.streamsStartedTotal
}

// LaunchFailures exposes the launch failure counter for tests.
func (m *Metrics) LaunchFailures() prometheus.Counter {
	return m.launchFailuresTotal
}

// OverlayOps exposes the overlay operation counter for op, for tests.
func (m *Metrics) OverlayOps(op string) prometheus.Counter {
	return m.overlayOpsTotal.WithLabelValues(op)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active transcoders).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
