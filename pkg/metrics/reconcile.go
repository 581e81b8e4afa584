package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics covers the admin view refresh loop and the change feed.
type ReconcileMetrics struct {
	fetchDuration *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	signals       *prometheus.CounterVec
	feed          *prometheus.CounterVec
	views         prometheus.Gauge
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	m := &ReconcileMetrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_fetch_duration_seconds",
			Help:      "Duration of authoritative order fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_fetches_total",
			Help:      "Authoritative fetches by outcome (applied, discarded, failed).",
		}, []string{"outcome"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_triggers_total",
			Help:      "Refetch triggers by source and whether they were coalesced.",
		}, []string{"source", "result"}),
		feed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changefeed_messages_total",
			Help:      "Change feed messages by driver and result.",
		}, []string{"driver", "result"}),
		views: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_open_views",
			Help:      "Admin views currently open.",
		}),
	}
	reg.MustRegister(m.fetchDuration, m.fetches, m.signals, m.feed, m.views)
	return m
}

// ObserveFetch records one authoritative fetch.
func (m *ReconcileMetrics) ObserveFetch(outcome string, duration time.Duration) {
	if m == nil || m.fetches == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncTrigger counts a refetch trigger; coalesced marks one folded into an
// outstanding request.
func (m *ReconcileMetrics) IncTrigger(source string, coalesced bool) {
	if m == nil || m.signals == nil {
		return
	}
	result := "scheduled"
	if coalesced {
		result = "coalesced"
	}
	m.signals.WithLabelValues(normalizeLabel(source), result).Inc()
}

// IncFeedMessage counts a message taken off a broker.
func (m *ReconcileMetrics) IncFeedMessage(driver, result string) {
	if m == nil || m.feed == nil {
		return
	}
	m.feed.WithLabelValues(normalizeLabel(driver), normalizeLabel(result)).Inc()
}

// SetOpenViews reports the number of registered views.
func (m *ReconcileMetrics) SetOpenViews(n int) {
	if m == nil || m.views == nil {
		return
	}
	m.views.Set(float64(n))
}

// TransitionMetrics counts status changes by kind and outcome.
type TransitionMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewTransitionMetrics(reg prometheus.Registerer) *TransitionMetrics {
	if reg == nil {
		return &TransitionMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(outcomes)
	return &TransitionMetrics{outcomes: outcomes}
}

func (m *TransitionMetrics) RecordTransition(kind, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
