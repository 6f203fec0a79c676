package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	proofRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txproof",
			Subsystem: "proof",
			Name:      "requests_total",
			Help:      "Total number of requests sent to proof services",
		},
		[]string{"service"},
	)

	proofRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txproof",
			Subsystem: "proof",
			Name:      "request_duration_seconds",
			Help:      "Duration of proof service requests",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	proofTransportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txproof",
			Subsystem: "proof",
			Name:      "transport_errors_total",
			Help:      "Total number of failed proof service requests",
		},
		[]string{"service"},
	)

	proofOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txproof",
			Subsystem: "proof",
			Name:      "outcomes_total",
			Help:      "Total number of delivered outcomes by status and detail",
		},
		[]string{"service", "status", "detail"}, // PENDING/SUCCESS/FAILED/ERROR
	)

	proofActiveVerifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "txproof",
			Subsystem: "proof",
			Name:      "active_verifications",
			Help:      "Number of verifications that have not terminated",
		},
	)
)

// ProofMetrics implements metrics.ProofMetrics on prometheus collectors
type ProofMetrics struct{}

func NewProofMetrics() *ProofMetrics {
	return &ProofMetrics{}
}

func (pm *ProofMetrics) RecordRequest(service string) {
	proofRequestsTotal.WithLabelValues(service).Inc()
}

func (pm *ProofMetrics) RecordRequestDuration(service string, duration float64) {
	proofRequestDuration.WithLabelValues(service).Observe(duration)
}

func (pm *ProofMetrics) RecordTransportError(service string) {
	proofTransportErrors.WithLabelValues(service).Inc()
}

func (pm *ProofMetrics) RecordOutcome(service string, status, detail string) {
	if detail == "" {
		detail = "none"
	}
	proofOutcomesTotal.WithLabelValues(service, status, detail).Inc()
}

func (pm *ProofMetrics) SetActiveVerifications(count float64) {
	proofActiveVerifications.Set(count)
}
