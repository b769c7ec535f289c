package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeEmpty = "empty"
)

var (
	BackendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_backend_calls_total",
		Help: "Backend calls by operation and outcome",
	}, []string{"operation", "outcome"})

	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_backend_latency_seconds",
		Help:    "Backend call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	// StaleResponses counts slot responses dropped because the slot was
	// toggled while the request was in flight.
	StaleResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_stale_responses_total",
		Help: "Slot responses dropped after the slot changed generation",
	}, []string{"operation"})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_persist_failures_total",
		Help: "Configuration saves that failed after a mutation",
	})

	ConfigDecodeWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_config_decode_warnings_total",
		Help: "Fields that fell back to defaults while decoding a stored configuration",
	})

	SuggestQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_suggest_queries_total",
		Help: "Ingredient suggestion queries by outcome",
	}, []string{"outcome"})
)
