// Package metrics implements Component I: the gateway's Prometheus
// collectors, covering both the HTTP transport and the resolution
// pipeline's own stages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the gateway registers.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge

	resolveDuration *prometheus.HistogramVec
	invokeDuration  *prometheus.HistogramVec
	shapeDuration   *prometheus.HistogramVec

	cacheHits   prometheus.Gauge
	cacheMisses prometheus.Gauge
	cacheSize   prometheus.Gauge

	facadeRetries *prometheus.CounterVec
}

// New constructs a fresh registry and registers every collector against
// it rather than against prometheus's global default registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcgateway",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed, labeled by method, path and status.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpcgateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcgateway",
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being served.",
		}),

		resolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpcgateway",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving a method call to a stored procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		invokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpcgateway",
			Name:      "invoke_duration_seconds",
			Help:      "Time spent executing a resolved stored procedure call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"proc"}),

		shapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpcgateway",
			Name:      "shape_duration_seconds",
			Help:      "Time spent reshaping a rowset into its JSON response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"proc"}),

		cacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcgateway",
			Name:      "resolver_cache_hits",
			Help:      "Cumulative resolved-call cache hits, sampled from the resolver's own counters.",
		}),
		cacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcgateway",
			Name:      "resolver_cache_misses",
			Help:      "Cumulative resolved-call cache misses, sampled from the resolver's own counters.",
		}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcgateway",
			Name:      "resolver_cache_size",
			Help:      "Current number of entries in the resolved-call cache.",
		}),

		facadeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcgateway",
			Name:      "facade_retries_total",
			Help:      "Connection-level retries attempted by the database facade, labeled by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpInFlight,
		m.resolveDuration,
		m.invokeDuration,
		m.shapeDuration,
		m.cacheHits,
		m.cacheMisses,
		m.cacheSize,
		m.facadeRetries,
	)
	return m
}

// Handler exposes the registry over the Prometheus text exposition
// format for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordResolve(method string, duration time.Duration) {
	m.resolveDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RecordInvoke(proc string, duration time.Duration) {
	m.invokeDuration.WithLabelValues(proc).Observe(duration.Seconds())
}

func (m *Metrics) RecordShape(proc string, duration time.Duration) {
	m.shapeDuration.WithLabelValues(proc).Observe(duration.Seconds())
}

// SetCacheStats overwrites the sampled cache gauges with a fresh snapshot
// of the resolver's own hit/miss/size counters.
func (m *Metrics) SetCacheStats(hits, misses int64, size int) {
	m.cacheHits.Set(float64(hits))
	m.cacheMisses.Set(float64(misses))
	m.cacheSize.Set(float64(size))
}

func (m *Metrics) RecordFacadeRetry(outcome string) {
	m.facadeRetries.WithLabelValues(outcome).Inc()
}
