// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package monitoring tracks harness operations and exports prometheus metrics
// for a test run.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// Operation statuses recorded on the operations counter
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Monitor ties structured operation logging to the run metrics
type Monitor struct {
	logger   *logger.Logger
	metrics  *Metrics
	textfile string

	mu             sync.Mutex
	errorsRecorded int64
}

// Operation tracks one in-flight operation
type Operation struct {
	monitor   *Monitor
	name      string
	startTime time.Time
	context   map[string]interface{}

	mu        sync.Mutex
	completed bool
}

// NewMonitor creates a monitor. When textfile is non-empty Close writes the
// metrics there.
func NewMonitor(log *logger.Logger, metrics *Metrics, textfile string) *Monitor {
	if log == nil {
		log = logger.NewDiscard()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Monitor{
		logger:   log,
		metrics:  metrics,
		textfile: textfile,
	}
}

// Metrics returns the collectors shared with the harness components
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// StartOperation begins tracking an operation
func (m *Monitor) StartOperation(name string, context map[string]interface{}) *Operation {
	m.logger.LogOperationStart(name, context)

	ctx := make(map[string]interface{}, len(context))
	for k, v := range context {
		ctx[k] = v
	}

	return &Operation{
		monitor:   m,
		name:      name,
		startTime: time.Now(),
		context:   ctx,
	}
}

// Complete marks the operation successful. Only the first Complete or Fail
// is recorded.
func (op *Operation) Complete(result map[string]interface{}) {
	if !op.finish() {
		return
	}
	duration := time.Since(op.startTime)
	op.monitor.metrics.observeOperation(op.name, StatusCompleted, duration)

	combined := op.snapshot()
	for k, v := range result {
		combined[k] = v
	}
	op.monitor.logger.LogOperationComplete(op.name, duration, combined)
}

// Fail marks the operation failed and reports err
func (op *Operation) Fail(err error) {
	if !op.finish() {
		return
	}
	duration := time.Since(op.startTime)
	op.monitor.metrics.observeOperation(op.name, StatusFailed, duration)

	context := op.snapshot()
	op.monitor.logger.LogOperationFailed(op.name, duration, err, context)
	op.monitor.HandleError(err, fmt.Sprintf("Operation %s failed", op.name), context)
}

// AddContext attaches a key to the operation's log context
func (op *Operation) AddContext(key string, value interface{}) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.context[key] = value
}

func (op *Operation) finish() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.completed {
		return false
	}
	op.completed = true
	return true
}

func (op *Operation) snapshot() map[string]interface{} {
	op.mu.Lock()
	defer op.mu.Unlock()
	out := make(map[string]interface{}, len(op.context))
	for k, v := range op.context {
		out[k] = v
	}
	return out
}

// HandleError logs err with its classification
func (m *Monitor) HandleError(err error, context string, details map[string]interface{}) {
	m.mu.Lock()
	m.errorsRecorded++
	m.mu.Unlock()

	logContext := map[string]interface{}{
		"error_code":     errors.GetErrorCode(err),
		"error_category": errors.GetErrorCategory(err),
		"recoverable":    errors.IsRecoverableError(err),
		"context":        context,
	}
	for k, v := range details {
		logContext[k] = v
	}

	m.logger.LogError(err, context, logContext)
}

// ErrorsRecorded returns how many errors HandleError has seen
func (m *Monitor) ErrorsRecorded() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorsRecorded
}

// Track runs fn as a named operation
func (m *Monitor) Track(ctx context.Context, name string, fn func(context.Context) error) error {
	op := m.StartOperation(name, nil)
	err := m.WithPanicRecovery(ctx, name, func() error {
		return fn(ctx)
	})
	if err != nil {
		op.Fail(err)
		return err
	}
	op.Complete(nil)
	return nil
}

// WithPanicRecovery runs fn and converts a panic into an internal error
func (m *Monitor) WithPanicRecovery(_ context.Context, operation string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			m.mu.Lock()
			m.errorsRecorded++
			m.mu.Unlock()

			m.logger.LogRecoveredPanic(recovered, map[string]interface{}{
				"operation": operation,
			})
			err = errors.New(errors.ErrCodePanicRecovered, fmt.Sprintf("panic in %s: %v", operation, recovered)).
				WithOp(operation)
		}
	}()

	return fn()
}

// Close flushes metrics to the textfile, if one is configured
func (m *Monitor) Close() error {
	if m.textfile == "" {
		return nil
	}
	if err := m.metrics.WriteTextfile(m.textfile); err != nil {
		return errors.Wrap(errors.ErrCodeInternalError, "failed to write metrics textfile", err).
			WithContext("path", m.textfile)
	}
	m.logger.Debug("Metrics written", "path", m.textfile)
	return nil
}
