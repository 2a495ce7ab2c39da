package metrics

import "github.com/prometheus/client_golang/prometheus"

// RebookMetrics exposes counters for the rebooking engine and patient search.
// A nil *RebookMetrics is valid and records nothing.
type RebookMetrics struct {
	reconcileTotal   *prometheus.CounterVec
	staleDropped     *prometheus.CounterVec
	availabilityErrs prometheus.Counter
	patientLookups   *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	lookupLatency    *prometheus.HistogramVec
}

func NewRebookMetrics(reg prometheus.Registerer) *RebookMetrics {
	m := &RebookMetrics{
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "rebook",
			Name:      "reconcile_total",
			Help:      "Reconciliations by how the original appointment was located",
		}, []string{"match"}),
		staleDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "rebook",
			Name:      "stale_responses_dropped_total",
			Help:      "Async responses discarded because a newer request superseded them",
		}, []string{"source"}),
		availabilityErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "rebook",
			Name:      "availability_errors_total",
			Help:      "Availability fetches that failed and were treated as no slots",
		}),
		patientLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "patient_search",
			Name:      "lookups_total",
			Help:      "Patient directory lookups issued after debounce",
		}, []string{"status"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "rebook",
			Name:      "approvals_total",
			Help:      "Approval submissions by outcome",
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "rebook",
			Name:      "active_sessions",
			Help:      "Open rebooking sessions",
		}),
		lookupLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "rebook",
			Name:      "collaborator_latency_seconds",
			Help:      "Latency of availability and patient directory calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reconcileTotal, m.staleDropped, m.availabilityErrs,
		m.patientLookups, m.submissions, m.activeSessions, m.lookupLatency)
	return m
}

func (m *RebookMetrics) ObserveReconcile(match string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(match).Inc()
}

func (m *RebookMetrics) ObserveStaleDropped(source string) {
	if m == nil {
		return
	}
	m.staleDropped.WithLabelValues(source).Inc()
}

func (m *RebookMetrics) ObserveAvailabilityError() {
	if m == nil {
		return
	}
	m.availabilityErrs.Inc()
}

func (m *RebookMetrics) ObservePatientLookup(status string) {
	if m == nil {
		return
	}
	m.patientLookups.WithLabelValues(status).Inc()
}

func (m *RebookMetrics) ObserveSubmission(status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
}

func (m *RebookMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *RebookMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *RebookMetrics) ObserveLatency(collaborator string, seconds float64) {
	if m == nil {
		return
	}
	m.lookupLatency.WithLabelValues(collaborator).Observe(seconds)
}
