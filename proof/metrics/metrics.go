package metrics

// ProofMetrics collects tx proof verification metrics
type ProofMetrics interface {
	// RecordRequest records one outbound request to a proof service
	RecordRequest(service string)

	// RecordRequestDuration records the round trip of one request in seconds
	RecordRequestDuration(service string, duration float64)

	// RecordTransportError records a request that failed below the classifier
	RecordTransportError(service string)

	// RecordOutcome records an outcome delivered to the caller
	RecordOutcome(service string, status, detail string)

	// SetActiveVerifications sets the number of verifiers still polling
	SetActiveVerifications(count float64)
}

// NilProofMetrics is a no-op implementation for when metrics are disabled
type NilProofMetrics struct{}

func NewNilProofMetrics() ProofMetrics {
	return &NilProofMetrics{}
}

func (n *NilProofMetrics) RecordRequest(service string)                           {}
func (n *NilProofMetrics) RecordRequestDuration(service string, duration float64) {}
func (n *NilProofMetrics) RecordTransportError(service string)                    {}
func (n *NilProofMetrics) RecordOutcome(service string, status, detail string)    {}
func (n *NilProofMetrics) SetActiveVerifications(count float64)                   {}
