package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Batch Pipeline Metrics
// =============================================================================

var (
	// BatchesTotal counts processed batches by mode ("train", "eval") and status ("ok", "skipped")
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextrank_batches_total",
			Help: "Total number of batches processed by the scoring pipeline",
		},
		[]string{"mode", "status"},
	)

	// BatchErrorsTotal counts failed batches by error kind
	BatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextrank_batch_errors_total",
			Help: "Total number of batches skipped because of an error, by error kind",
		},
		[]string{"kind"},
	)

	// DroppedPositivesTotal counts ground-truth positives excluded by the candidate budget
	DroppedPositivesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextrank_dropped_positives_total",
			Help: "Ground-truth positives that did not fit into the sampled candidate set",
		},
	)

	// DroppedSparseTotal counts sparse-path predictions excluded by the candidate budget
	DroppedSparseTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contextrank_dropped_sparse_total",
			Help: "Sparse-path predictions that did not fit into the sampled candidate set",
		},
	)

	// BudgetOverflowTotal counts batches whose forced candidate sets exceeded the sample size
	BudgetOverflowTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextrank_budget_overflow_total",
			Help: "Batches whose required or priority candidates exceeded the sample budget",
		},
		[]string{"set"}, // "required" or "priority"
	)

	// SparseCoordinates tracks the number of sparse overrides applied per batch
	SparseCoordinates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contextrank_sparse_coordinates",
			Help:    "Number of sparse-path logits written over dense logits per batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// StageDurationSeconds measures the latency of each pipeline stage
	StageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contextrank_stage_duration_seconds",
			Help:    "Duration of scoring pipeline stages",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"stage"}, // expand, encode, sample, remap, fuse
	)

	// BatchLoss tracks the sampled softmax loss of training batches
	BatchLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contextrank_batch_loss",
			Help: "Sampled softmax loss of the most recent training batch",
		},
	)

	// SplitEdges reports the coalesced edge count of each loaded split
	SplitEdges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contextrank_split_edges",
			Help: "Number of coalesced source-destination edges per data split",
		},
		[]string{"split"},
	)
)
