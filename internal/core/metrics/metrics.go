// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and rule engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all service-level metrics.
type Metrics struct {
	EventsIngested    *prometheus.CounterVec
	RulesEvaluated    *prometheus.CounterVec
	NodesSkipped      prometheus.Counter
	ActionsDispatched *prometheus.CounterVec
	IngestDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance with a dedicated registry, pre-registered
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "watchkeeper",
				Subsystem: "events",
				Name:      "ingested_total",
				Help:      "Total number of events ingested",
			},
			[]string{"outcome"},
		),

		RulesEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "watchkeeper",
				Subsystem: "rules",
				Name:      "evaluated_total",
				Help:      "Total number of rule evaluations",
			},
			[]string{"result"},
		),

		NodesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "watchkeeper",
				Subsystem: "rules",
				Name:      "nodes_skipped_total",
				Help:      "Total number of rule node instances skipped during evaluation",
			},
		),

		ActionsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "watchkeeper",
				Subsystem: "actions",
				Name:      "dispatched_total",
				Help:      "Total number of action dispatches",
			},
			[]string{"status"},
		),

		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "watchkeeper",
				Subsystem: "events",
				Name:      "ingest_duration_seconds",
				Help:      "End-to-end event ingestion duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsIngested,
		m.RulesEvaluated,
		m.NodesSkipped,
		m.ActionsDispatched,
		m.IngestDuration,
	)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome and result label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"

	ResultMatched   = "matched"
	ResultUnmatched = "unmatched"

	StatusOK     = "ok"
	StatusFailed = "failed"
)
