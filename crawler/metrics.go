package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the orchestrator.
type Metrics struct {
	Registry         *prometheus.Registry
	MonthsTotal      *prometheus.CounterVec
	IdentifiersTotal *prometheus.CounterVec
	DuplicatesTotal  prometheus.Counter
	EnrichDuration   prometheus.Histogram
	SourceFailures   prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	months := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_months_total",
			Help: "Calendar months processed, by outcome.",
		},
		[]string{"outcome"},
	)
	identifiers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_identifiers_total",
			Help: "Identifiers processed, by outcome.",
		},
		[]string{"outcome"},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_duplicates_total",
			Help: "Identifiers dropped because an earlier month already yielded them.",
		},
	)
	enrichDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_enrich_duration_seconds",
			Help:    "Detail fetch and enrichment latency per identifier.",
			Buckets: prometheus.DefBuckets,
		},
	)
	sourceFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_source_failures_total",
			Help: "Months for which the calendar source was unavailable.",
		},
	)

	registry.MustRegister(months, identifiers, duplicates, enrichDuration, sourceFailures)

	return &Metrics{
		Registry:         registry,
		MonthsTotal:      months,
		IdentifiersTotal: identifiers,
		DuplicatesTotal:  duplicates,
		EnrichDuration:   enrichDuration,
		SourceFailures:   sourceFailures,
	}
}

// IncMonth increments the month counter for an outcome.
func (m *Metrics) IncMonth(outcome string) {
	if m == nil {
		return
	}
	m.MonthsTotal.WithLabelValues(outcome).Inc()
}

// IncIdentifier increments the identifier counter for an outcome.
func (m *Metrics) IncIdentifier(outcome string) {
	if m == nil {
		return
	}
	m.IdentifiersTotal.WithLabelValues(outcome).Inc()
}

// IncDuplicate increments the dropped-duplicate counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// ObserveEnrich records the latency of one identifier's enrichment.
func (m *Metrics) ObserveEnrich(d time.Duration) {
	if m == nil {
		return
	}
	m.EnrichDuration.Observe(d.Seconds())
}

// IncSourceFailure increments the unavailable-month counter.
func (m *Metrics) IncSourceFailure() {
	if m == nil {
		return
	}
	m.SourceFailures.Inc()
}
