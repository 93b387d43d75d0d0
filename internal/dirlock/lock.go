// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package dirlock implements an advisory cross-process lock whose only
// acquisition signal is the successful creation of a directory.
package dirlock

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// Default bounds
const (
	DefaultAttempts = 50
	DefaultDelay    = 100 * time.Millisecond
)

// Options bounds the acquisition loop
type Options struct {
	Attempts int
	Delay    time.Duration
}

// Observer receives lock activity; monitoring.Metrics implements it
type Observer interface {
	LockAcquired(attempts int, waited time.Duration)
	LockFailed()
}

// Locker runs fn while holding an exclusive lock
type Locker interface {
	WithLock(ctx context.Context, fn func() error) error
}

// DirLock guards a resource with a lock directory at Path
type DirLock struct {
	fs       afero.Fs
	path     string
	opts     Options
	logger   *logger.Logger
	observer Observer
}

// New creates a lock on path. Zero option fields take the defaults.
func New(fs afero.Fs, path string, opts Options, log *logger.Logger) *DirLock {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	return &DirLock{fs: fs, path: path, opts: opts, logger: log}
}

// WithObserver reports lock activity to o
func (d *DirLock) WithObserver(o Observer) *DirLock {
	d.observer = o
	return d
}

// Path returns the lock directory
func (d *DirLock) Path() string {
	return d.path
}

// Lock is a held acquisition
type Lock struct {
	fs     afero.Fs
	path   string
	once   sync.Once
	logger *logger.Logger
}

// Acquire creates the lock directory, retrying on collision every Delay
// until Attempts is reached or ctx ends
func (d *DirLock) Acquire(ctx context.Context) (*Lock, error) {
	start := time.Now()

	if dir := filepath.Dir(d.path); dir != "." {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, d.fail(0, err)
		}
	}

	for attempt := 1; attempt <= d.opts.Attempts; attempt++ {
		err := d.fs.Mkdir(d.path, 0o755)
		if err == nil {
			if d.observer != nil {
				d.observer.LockAcquired(attempt, time.Since(start))
			}
			d.logger.Debug("Lock acquired", "path", d.path, "attempt", attempt)
			return &Lock{fs: d.fs, path: d.path, logger: d.logger}, nil
		}
		if !stderrors.Is(err, os.ErrExist) {
			return nil, d.fail(attempt, err)
		}
		if attempt == d.opts.Attempts {
			break
		}

		timer := time.NewTimer(d.opts.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, d.fail(attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return nil, d.fail(d.opts.Attempts, fmt.Errorf("%s still exists after %d attempts over %s",
		d.path, d.opts.Attempts, time.Since(start).Round(time.Millisecond)))
}

func (d *DirLock) fail(attempts int, cause error) error {
	if d.observer != nil {
		d.observer.LockFailed()
	}
	return errors.NewLockError(d.path, attempts, cause).WithOp("Acquire")
}

// Release removes the lock directory. It is safe to call more than once;
// only the first call touches the filesystem.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		if rmErr := l.fs.Remove(l.path); rmErr != nil {
			err = errors.Wrap(errors.ErrCodeLockRelease, fmt.Sprintf("failed to remove lock %s", l.path), rmErr).
				WithOp("Release")
			return
		}
		l.logger.Debug("Lock released", "path", l.path)
	})
	return err
}

// WithLock acquires the lock, runs fn and releases on every exit path,
// including a panic in fn. A release failure is logged and never replaces
// the result of fn.
func (d *DirLock) WithLock(ctx context.Context, fn func() error) error {
	lock, err := d.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			d.logger.Warn("Lock release failed", "path", d.path, "error", relErr.Error())
		}
	}()

	return fn()
}

var _ Locker = (*DirLock)(nil)
