package datahub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "datahub"

var (
	documentsProcessedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "documents_processed_total",
		Help:      "The total number of source documents processed by flows, by outcome.",
	}, []string{"entity_type", "flow", "outcome"})

	traceDocumentsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "trace_documents_written_total",
		Help:      "The total number of trace documents written to the trace store.",
	}, []string{"entity_type", "flow"})

	batchDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "batch_duration_ms",
		Help:      "The time it takes a worker to process one batch of documents.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 15000},
	}, []string{"entity_type", "flow"})
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)
