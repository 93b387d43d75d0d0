// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "e2e"

// Metrics holds the prometheus collectors for one run. Each Metrics owns a
// private registry so parallel workers and tests never collide on the
// default registerer.
type Metrics struct {
	registry *prometheus.Registry

	LockAcquisitions prometheus.Counter
	LockFailures     prometheus.Counter
	LockAttempts     prometheus.Histogram
	LockWait         prometheus.Histogram
	RetryAttempts    *prometheus.CounterVec
	RetryFailures    *prometheus.CounterVec
	Decrypts         *prometheus.CounterVec
	StoreWrites      *prometheus.CounterVec
	Operations       *prometheus.CounterVec
	OperationSeconds *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		LockAcquisitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "Total number of test-data locks acquired",
		}),
		LockFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_failures_total",
			Help:      "Total number of lock acquisitions that gave up",
		}),
		LockAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_attempts",
			Help:      "Attempts needed to acquire the test-data lock",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the test-data lock",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries performed, by operation",
		}, []string{"operation"}),
		RetryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Operations that failed after every retry",
		}, []string{"operation"}),
		Decrypts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_total",
			Help:      "Configuration values resolved, by result",
		}, []string{"result"}),
		StoreWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Values appended to the shared test-data store, by section",
		}, []string{"section"}),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Tracked operations, by name and status",
		}, []string{"operation", "status"}),
		OperationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of tracked operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Registry exposes the private registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecrypt records a value resolution outcome
func (m *Metrics) ObserveDecrypt(result string) {
	m.Decrypts.WithLabelValues(result).Inc()
}

// LockAcquired records a successful lock acquisition
func (m *Metrics) LockAcquired(attempts int, waited time.Duration) {
	m.LockAcquisitions.Inc()
	m.LockAttempts.Observe(float64(attempts))
	m.LockWait.Observe(waited.Seconds())
}

// LockFailed records a lock acquisition that ran out of attempts
func (m *Metrics) LockFailed() {
	m.LockFailures.Inc()
}

// StoreWrite records an append to section
func (m *Metrics) StoreWrite(section string) {
	m.StoreWrites.WithLabelValues(section).Inc()
}

// RetryAttempt records one retry of op
func (m *Metrics) RetryAttempt(op string) {
	m.RetryAttempts.WithLabelValues(op).Inc()
}

// RetryExhausted records that op failed after its last attempt
func (m *Metrics) RetryExhausted(op string) {
	m.RetryFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) observeOperation(op, status string, d time.Duration) {
	m.Operations.WithLabelValues(op, status).Inc()
	m.OperationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
