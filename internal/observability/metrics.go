package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llmproxy"

// Request outcomes recorded by RecordRequest
const (
	OutcomeSuccess       = "success"
	OutcomeRateLimited   = "rate_limited"
	OutcomeBadRequest    = "bad_request"
	OutcomeMisconfigured = "misconfigured"
	OutcomeUpstreamError = "upstream_error"
	OutcomeInternalError = "internal_error"
	OutcomeMethodDenied  = "method_not_allowed"
)

// Metrics holds the proxy's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	decisions *prometheus.CounterVec
	upstream  *prometheus.HistogramVec
}

// NewMetrics registers the proxy collectors plus the Go and process collectors
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Proxy requests by outcome.",
		}, []string{"outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by result.",
		}, []string{"decision"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream provider call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"provider", "status"}),
	}

	registry.MustRegister(
		m.requests,
		m.decisions,
		m.upstream,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest counts a finished proxy request
func (m *Metrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// RecordRateLimitDecision counts an allow or deny
func (m *Metrics) RecordRateLimitDecision(allowed bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.decisions.WithLabelValues(decision).Inc()
}

// ObserveUpstream records the latency of one upstream call. status 0 means
// the call failed before a response arrived.
func (m *Metrics) ObserveUpstream(provider string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.upstream.WithLabelValues(provider, label).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
