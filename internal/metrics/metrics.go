// Package metrics exposes Prometheus collectors for the drafting pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "replydraft"

// Metrics holds the pipeline and draft-client collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	draftRequests *prometheus.CounterVec
	draftLatency  prometheus.Histogram
	inFlight      prometheus.Gauge
	served        *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg (the default registerer
// when nil). Registration errors panic, as promauto does.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "cycles_total",
				Help:      "Evaluation cycles by trigger reason and outcome.",
			},
			[]string{"reason", "outcome"},
		),
		draftRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "drafts",
				Name:      "requests_total",
				Help:      "Draft requests by result (draft, no_response, error, not_configured).",
			},
			[]string{"result"},
		),
		draftLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "drafts",
				Name:      "request_duration_seconds",
				Help:      "Round trip time of draft requests.",
				Buckets:   []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "cycles_in_flight",
				Help:      "1 while an evaluation cycle holds the processing lock.",
			},
		),
		served: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "drafts_served_total",
				Help:      "Drafting service responses by verdict.",
			},
			[]string{"verdict"},
		),
	}
	reg.MustRegister(m.cycles, m.draftRequests, m.draftLatency, m.inFlight, m.served)
	return m
}

// ObserveCycle counts one finished evaluation cycle.
func (m *Metrics) ObserveCycle(reason, outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(reason, outcome).Inc()
}

// CycleStarted marks the processing lock as held; the returned func releases it.
func (m *Metrics) CycleStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Set(1)
	return func() { m.inFlight.Set(0) }
}

// ObserveDraftRequest records one draft request result and its duration.
func (m *Metrics) ObserveDraftRequest(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.draftRequests.WithLabelValues(result).Inc()
	if d > 0 {
		m.draftLatency.Observe(d.Seconds())
	}
}

// ObserveServed counts a verdict returned by the drafting service.
func (m *Metrics) ObserveServed(verdict string) {
	if m == nil {
		return
	}
	m.served.WithLabelValues(verdict).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
