package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// Service names for metrics registration
const (
	ServiceProof  = "proof"
	ServiceWorker = "worker"
	ServiceHTTP   = "http"
)

// RegisterMetrics registers metrics for the specified services with a custom registry
func RegisterMetrics(services []string, registry *prometheus.Registry, logger *logrus.Logger) {
	// Always register Go and process metrics
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", registry, logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", registry, logger)

	// Register service-specific metrics
	for _, service := range services {
		switch service {
		case ServiceProof:
			registerProofMetrics(registry, logger)
		case ServiceWorker:
			registerWorkerMetrics(registry, logger)
		case ServiceHTTP:
			registerHTTPMetrics(registry, logger)
		default:
			logger.Warnf("Unknown service type for metrics registration: %s", service)
		}
	}
}

// registerIfNotExists registers a collector if it's not already registered
func registerIfNotExists(collector prometheus.Collector, name string, registry *prometheus.Registry, logger *logrus.Logger) {
	if err := registry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if !errors.As(err, &alreadyRegErr) {
			// This is a real problem (descriptor mismatch, etc.) - log error but don't fail
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}

// registerProofMetrics registers proof verification metrics
func registerProofMetrics(registry *prometheus.Registry, logger *logrus.Logger) {
	registerIfNotExists(proofRequestsTotal, "proof_requests_total", registry, logger)
	registerIfNotExists(proofRequestDuration, "proof_request_duration", registry, logger)
	registerIfNotExists(proofTransportErrors, "proof_transport_errors", registry, logger)
	registerIfNotExists(proofOutcomesTotal, "proof_outcomes_total", registry, logger)
	registerIfNotExists(proofActiveVerifications, "proof_active_verifications", registry, logger)
}

// registerWorkerMetrics registers asynq worker metrics
func registerWorkerMetrics(registry *prometheus.Registry, logger *logrus.Logger) {
	registerIfNotExists(workerTasksTotal, "worker_tasks_total", registry, logger)
	registerIfNotExists(workerTaskDuration, "worker_task_duration", registry, logger)
	registerIfNotExists(workerTasksActive, "worker_tasks_active", registry, logger)
	registerIfNotExists(workerLastTaskTimestamp, "worker_last_task_timestamp", registry, logger)
}

// registerHTTPMetrics registers HTTP-related metrics
func registerHTTPMetrics(registry *prometheus.Registry, logger *logrus.Logger) {
	registerIfNotExists(httpRequestsTotal, "http_requests_total", registry, logger)
	registerIfNotExists(httpRequestDuration, "http_request_duration", registry, logger)
	registerIfNotExists(httpUnauthorizedTotal, "http_unauthorized_total", registry, logger)
}
