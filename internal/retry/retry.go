// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package retry runs transient automation steps with bounded exponential
// backoff. It never holds shared resources while it waits.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/lfreleng-actions/e2e-test-kit/internal/config"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// Observer receives retry activity; monitoring.Metrics implements it
type Observer interface {
	RetryAttempt(op string)
	RetryExhausted(op string)
}

// Policy bounds a retried operation
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to errors.IsRecoverableError.
	Retryable func(error) bool

	Logger   *logger.Logger
	Observer Observer
}

// DefaultPolicy returns three attempts starting at 500ms and doubling
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		BackoffFactor:  2,
		MaxBackoff:     10 * time.Second,
	}
}

// FromConfig builds the run policy from the resolved configuration
func FromConfig(cfg *config.Config, log *logger.Logger) Policy {
	return Policy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		BackoffFactor:  cfg.RetryBackoffFactor,
		MaxBackoff:     cfg.RetryMaxBackoff,
		Logger:         log,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = d.BackoffFactor
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Retryable == nil {
		p.Retryable = errors.IsRecoverableError
	}
	if p.Logger == nil {
		p.Logger = logger.NewDiscard()
	}
	return p
}

// Backoff returns the wait before attempt n+1 (n starting at 1)
func (p Policy) Backoff(n int) time.Duration {
	p = p.normalized()
	backoff := p.InitialBackoff
	for i := 1; i < n; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx ends
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := p.Backoff(attempt - 1)
			p.Logger.Debug("Retrying operation", "operation", op, "attempt", attempt, "backoff", backoff.String())
			if p.Observer != nil {
				p.Observer.RetryAttempt(op)
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, exhausted(op, attempt-1, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		p.Logger.Debug("Operation attempt failed", "operation", op, "attempt", attempt, "error", err.Error())

		if !p.Retryable(err) {
			return zero, err
		}
	}

	if p.Observer != nil {
		p.Observer.RetryExhausted(op)
	}
	return zero, exhausted(op, p.MaxAttempts, lastErr)
}

func exhausted(op string, attempts int, cause error) error {
	return errors.NewAutomationError(errors.ErrCodeRetryExhausted,
		fmt.Sprintf("%s failed after %d attempts", op, attempts), cause).
		WithOp(op).
		WithRecoverable(false)
}
