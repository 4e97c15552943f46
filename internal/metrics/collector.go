package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the execution core's Prometheus metrics.
type Collector struct {
	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	executionTimeouts  *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	packageInstalls    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector. Metrics register on the default
// registry under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of code executions",
		},
		[]string{"language", "backend", "status"},
	)

	c.executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Code execution duration in seconds, including routing and validation",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"language", "backend"},
	)

	c.executionTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_timeouts_total",
			Help:      "Total number of executions terminated by the timeout race",
		},
		[]string{"backend"},
	)

	c.validationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Total number of schema validation failures",
		},
		[]string{"stage"}, // stage: input, output
	)

	c.packageInstalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "package_installs_total",
			Help:      "Total number of pre-execution package installs",
		},
		[]string{"status"},
	)

	return c
}

// RecordExecution records one completed execution.
func (c *Collector) RecordExecution(language, backend, status string, duration time.Duration) {
	c.executionsTotal.WithLabelValues(language, backend, status).Inc()
	c.executionDuration.WithLabelValues(language, backend).Observe(duration.Seconds())
}

// RecordTimeout records one execution terminated by the timeout race.
func (c *Collector) RecordTimeout(backend string) {
	c.executionTimeouts.WithLabelValues(backend).Inc()
}

// RecordValidationFailure records a schema validation failure for a stage.
func (c *Collector) RecordValidationFailure(stage string) {
	c.validationFailures.WithLabelValues(stage).Inc()
}

// RecordPackageInstall records one package install attempt.
func (c *Collector) RecordPackageInstall(status string) {
	c.packageInstalls.WithLabelValues(status).Inc()
}
