package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strayhaven/edge/internal/circuitbreaker"
	"github.com/strayhaven/edge/internal/health"
)

const namespace = "edge"

// DefaultBuckets are request duration histogram buckets in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Collector owns the edge's Prometheus metrics on a dedicated registry.
// It satisfies proxy.Recorder for the legacy forwarder.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec

	legacyResponses *prometheus.CounterVec
	legacyErrors    *prometheus.CounterVec
	legacyRetries   prometheus.Counter
	circuitState    prometheus.Gauge
	legacyUp        prometheus.Gauge
}

// NewCollector creates a Collector and registers every metric, plus the
// Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by the edge, by classification.",
		}, []string{"action", "reason"}),
		requestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency, by classification action.",
			Buckets:   DefaultBuckets,
		}, []string{"action"}),
		legacyResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "legacy",
			Name:      "responses_total",
			Help:      "Responses received from the legacy origin, by status class.",
		}, []string{"code"}),
		legacyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "legacy",
			Name:      "errors_total",
			Help:      "Legacy forwards that produced no origin response, by kind.",
		}, []string{"kind"}),
		legacyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "legacy",
			Name:      "retries_total",
			Help:      "Retried attempts against the legacy origin.",
		}),
		circuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "legacy",
			Name:      "circuit_state",
			Help:      "Legacy circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		legacyUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "legacy",
			Name:      "up",
			Help:      "Legacy origin health: 1 healthy, 0 unhealthy, -1 unknown.",
		}),
	}
	c.legacyUp.Set(-1)

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDurations,
		c.legacyResponses,
		c.legacyErrors,
		c.legacyRetries,
		c.circuitState,
		c.legacyUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordRequest records one completed request.
func (c *Collector) RecordRequest(action, reason string, d time.Duration) {
	if action == "" {
		action, reason = "none", "none"
	}
	c.requestsTotal.WithLabelValues(action, reason).Inc()
	c.requestDurations.WithLabelValues(action).Observe(d.Seconds())
}

// UpstreamResponse counts a legacy origin response by status class.
func (c *Collector) UpstreamResponse(code int) {
	c.legacyResponses.WithLabelValues(StatusClass(code)).Inc()
}

// UpstreamError counts a failed legacy forward.
func (c *Collector) UpstreamError(kind string) {
	c.legacyErrors.WithLabelValues(kind).Inc()
}

// UpstreamRetry counts one retried legacy attempt.
func (c *Collector) UpstreamRetry() {
	c.legacyRetries.Inc()
}

// SetCircuitState mirrors the legacy breaker state.
func (c *Collector) SetCircuitState(s circuitbreaker.State) {
	c.circuitState.Set(float64(s))
}

// SetLegacyHealth mirrors the legacy health checker status.
func (c *Collector) SetLegacyHealth(s health.Status) {
	switch s {
	case health.StatusHealthy:
		c.legacyUp.Set(1)
	case health.StatusUnhealthy:
		c.legacyUp.Set(0)
	default:
		c.legacyUp.Set(-1)
	}
}

// StatusClass maps 404 to "4xx". Codes outside 100-599 are "other".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
