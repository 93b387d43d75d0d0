// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package dirlock

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingObserver struct {
	acquired atomic.Int64
	failed   atomic.Int64
}

func (c *countingObserver) LockAcquired(int, time.Duration) { c.acquired.Add(1) }
func (c *countingObserver) LockFailed()                     { c.failed.Add(1) }

func fastOptions() Options {
	return Options{Attempts: 3, Delay: 5 * time.Millisecond}
}

func TestAcquireAndRelease(t *testing.T) {
	fs := afero.NewMemMapFs()
	observer := &countingObserver{}
	d := New(fs, "test-data/test-data.json.lock", fastOptions(), nil).WithObserver(observer)

	lock, err := d.Acquire(context.Background())
	require.NoError(t, err)

	exists, err := afero.DirExists(fs, d.Path())
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	exists, err = afero.DirExists(fs, d.Path())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int64(1), observer.acquired.Load())
}

func TestAcquireTimesOutOnHeldLock(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("data.json.lock", 0o755))
	observer := &countingObserver{}
	d := New(fs, "data.json.lock", fastOptions(), nil).WithObserver(observer)

	start := time.Now()
	_, err := d.Acquire(context.Background())
	require.Error(t, err)

	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeLockNotAcquired))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), observer.failed.Load())
}

func TestAcquireReportsActualWait(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("data.json.lock", 0o755))
	// A single attempt never sleeps, whatever the delay
	d := New(fs, "data.json.lock", Options{Attempts: 1, Delay: time.Hour}, nil)

	_, err := d.Acquire(context.Background())
	require.Error(t, err)

	assert.Contains(t, err.Error(), "still exists after 1 attempts over 0s")
	assert.NotContains(t, err.Error(), "1h0m0s")
}

func TestAcquireHonoursContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("data.json.lock", 0o755))
	d := New(fs, "data.json.lock", Options{Attempts: 1000, Delay: 50 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeLockNotAcquired))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireFailsOnReadOnlyFs(t *testing.T) {
	d := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "x/data.json.lock", fastOptions(), nil)

	_, err := d.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLock))
}

func TestWithLockReleasesOnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := New(fs, "data.json.lock", fastOptions(), nil)
	sentinel := stderrors.New("write failed")

	err := d.WithLock(context.Background(), func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	exists, _ := afero.DirExists(fs, "data.json.lock")
	assert.False(t, exists)
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := New(fs, "data.json.lock", fastOptions(), nil)

	assert.Panics(t, func() {
		_ = d.WithLock(context.Background(), func() error { panic("boom") })
	})

	exists, _ := afero.DirExists(fs, "data.json.lock")
	assert.False(t, exists)
}

func TestWithLockLogsReleaseFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	log, err := logger.NewWithConfig(logger.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})
	require.NoError(t, err)
	d := New(fs, "data.json.lock", fastOptions(), log)

	// Someone else removes the lock while it is held
	err = d.WithLock(context.Background(), func() error {
		return fs.Remove("data.json.lock")
	})
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Lock release failed")
}

func TestMutualExclusionAcrossGoroutines(t *testing.T) {
	fs := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "test-data.json.lock")
	d := New(fs, path, Options{Attempts: 500, Delay: time.Millisecond}, nil)

	var inside, maxInside, total atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.WithLock(context.Background(), func() error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				total.Add(1)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8), total.Load())
	assert.Equal(t, int64(1), maxInside.Load())
}
