// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// ScansTotal counts orchestration runs by outcome ("ok", "invalid_input",
	// "extraction_failed", "no_ingredients", "internal_error").
	ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelscan",
		Name:      "scans_total",
		Help:      "Total number of image scans processed, labeled by outcome.",
	}, []string{"outcome"})

	// AICallDurationSeconds is the latency of one model flow call.
	AICallDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "labelscan",
		Name:      "ai_call_duration_seconds",
		Help:      "Latency of AI provider calls, labeled by flow and result.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"flow", "result"})

	// AnalysisDegradedTotal counts analyses that fell back to empty or
	// partially Unknown output.
	AnalysisDegradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelscan",
		Name:      "analysis_degraded_total",
		Help:      "Total number of degraded ingredient analyses, labeled by analyzer mode.",
	}, []string{"mode"})

	AlternativesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "labelscan",
		Name:      "alternatives_failed_total",
		Help:      "Total number of alternative-product suggestion failures absorbed by the pipeline.",
	})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ScansTotal,
			AICallDurationSeconds,
			AnalysisDegradedTotal,
			AlternativesFailedTotal,
		)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
