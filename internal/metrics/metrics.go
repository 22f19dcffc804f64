// Package metrics exposes Prometheus instruments for import batches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prf_batches_total",
			Help: "Total number of ingestion batches by operation and terminal state",
		},
		[]string{"operation", "state"},
	)

	AggregatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prf_aggregates_total",
			Help: "Purchase requests processed, by outcome",
		},
		[]string{"outcome"},
	)

	BudgetRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prf_budget_rows_total",
			Help: "Budget allocation rows processed, by outcome",
		},
		[]string{"outcome"},
	)

	COACreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prf_coa_created_total",
			Help: "Placeholder chart-of-account entries created during imports",
		},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prf_batch_duration_seconds",
			Help:    "Time taken to process one uploaded workbook",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)
)

// RecordBatch records the terminal state and duration of one batch.
func RecordBatch(operation, state string, duration time.Duration) {
	BatchesTotal.WithLabelValues(operation, state).Inc()
	BatchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAggregate counts one aggregate outcome.
func RecordAggregate(outcome string) {
	AggregatesTotal.WithLabelValues(outcome).Inc()
}

// RecordBudgetRow counts one budget row outcome.
func RecordBudgetRow(outcome string) {
	BudgetRowsTotal.WithLabelValues(outcome).Inc()
}
