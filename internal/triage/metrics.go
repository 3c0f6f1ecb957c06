package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem. A nil
// *Metrics is a valid no-op, so tests can skip registration.
type Metrics struct {
	TriagesTotal     *prometheus.CounterVec
	TriageDuration   *prometheus.HistogramVec
	RoutesTotal      *prometheus.CounterVec
	RouterConfidence prometheus.Histogram
	ClassifierErrors prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acuity_triages_total",
			Help: "Total triage requests by outcome and predicted level.",
		}, []string{"outcome", "level"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acuity_triage_duration_seconds",
			Help:    "Duration of triage requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"outcome"}),
		RoutesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acuity_routes_total",
			Help: "Total routing decisions by specialization.",
		}, []string{"specialization"}),
		RouterConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "acuity_router_confidence",
			Help:    "Router confidence per request.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 .. 1.0
		}),
		ClassifierErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "acuity_classifier_errors_total",
			Help: "Total failed classifier invocations during triage.",
		}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.RoutesTotal,
		m.RouterConfidence,
		m.ClassifierErrors,
	)
	return m
}

func (m *Metrics) observeResult(r *Result) {
	if m == nil {
		return
	}
	m.TriagesTotal.WithLabelValues("ok", string(r.Level)).Inc()
	m.TriageDuration.WithLabelValues("ok").Observe(r.Duration)
	m.RoutesTotal.WithLabelValues(r.Specialization).Inc()
	m.RouterConfidence.Observe(r.RouterConfidence)
}

func (m *Metrics) observeFailure(specialization string, duration float64) {
	if m == nil {
		return
	}
	m.TriagesTotal.WithLabelValues("unavailable", "none").Inc()
	m.TriageDuration.WithLabelValues("unavailable").Observe(duration)
	m.RoutesTotal.WithLabelValues(specialization).Inc()
	m.ClassifierErrors.Inc()
}
