package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ModelCallsTotal counts gateway calls by purpose (extract, score) and result (ok, error).
	ModelCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagscan",
		Subsystem: "gateway",
		Name:      "model_calls_total",
		Help:      "Total number of hosted model calls, labeled by purpose and result.",
	}, []string{"purpose", "result"})

	// ModelCallDurationSeconds is the latency of a single model call.
	ModelCallDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tagscan",
		Subsystem: "gateway",
		Name:      "model_call_duration_seconds",
		Help:      "Latency of hosted model calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"purpose"})

	// FallbacksTotal counts default values substituted for unparsable model output.
	FallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagscan",
		Subsystem: "pipeline",
		Name:      "fallbacks_total",
		Help:      "Total number of times a pipeline stage fell back to default values.",
	}, []string{"stage"})

	// AnalysesTotal counts pipeline runs by outcome.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagscan",
		Subsystem: "pipeline",
		Name:      "analyses_total",
		Help:      "Total number of tag analyses, labeled by result and recommended status.",
	}, []string{"result", "status"})

	// AnalysisDurationSeconds is the end-to-end pipeline time.
	AnalysisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tagscan",
		Subsystem: "pipeline",
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end time of a tag analysis, both model calls and persistence included.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
	})

	// ItemUpdatesConsumedTotal counts item update events taken off the bus.
	ItemUpdatesConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagscan",
		Subsystem: "events",
		Name:      "item_updates_consumed_total",
		Help:      "Total number of item update events consumed from RabbitMQ, labeled by result.",
	}, []string{"result"})
)

// Register registers metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ModelCallsTotal,
			ModelCallDurationSeconds,
			FallbacksTotal,
			AnalysesTotal,
			AnalysisDurationSeconds,
			ItemUpdatesConsumedTotal,
		)
	})
}
