// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package datastore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lfreleng-actions/e2e-test-kit/internal/dirlock"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const dataFile = "test-data/test-data.json"

type writeCounter struct {
	mu     sync.Mutex
	writes map[string]int
}

func (w *writeCounter) StoreWrite(section string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = map[string]int{}
	}
	w.writes[section]++
}

func newMemStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	lock := dirlock.New(fs, dataFile+".lock", dirlock.Options{Attempts: 5, Delay: 5 * time.Millisecond}, nil)
	return New(fs, dataFile, lock, Options{}), fs
}

func TestSaveThenGetReturnsMostRecent(t *testing.T) {
	store, fs := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "users", "A"))
	require.NoError(t, store.Save(ctx, "users", "B"))
	require.NoError(t, store.Save(ctx, "branches", "BR-1"))

	got, err := store.Get("users")
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	all, err := store.GetAll("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, all)

	sections, err := store.Sections()
	require.NoError(t, err)
	assert.Equal(t, []string{"branches", "users"}, sections)

	data, err := afero.ReadFile(fs, dataFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":["A","B"],"branches":["BR-1"]}`, string(data))

	// Lock directory does not outlive the write
	exists, err := afero.DirExists(fs, dataFile+".lock")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetNotFound(t *testing.T) {
	store, fs := newMemStore(t)

	// File does not exist yet
	_, err := store.Get("users")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataNotFound))
	assert.Contains(t, err.Error(), "does not exist")

	require.NoError(t, store.Save(context.Background(), "users", "A"))

	_, err = store.Get("nonexistent")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataNotFound))
	assert.Contains(t, err.Error(), "nonexistent")

	// Present but empty section
	require.NoError(t, afero.WriteFile(fs, dataFile, []byte(`{"users":[]}`), 0o644))
	_, err = store.Get("users")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataNotFound))
}

func TestEmptyFileIsEmptyDocument(t *testing.T) {
	store, fs := newMemStore(t)
	require.NoError(t, afero.WriteFile(fs, dataFile, []byte("  \n"), 0o644))

	doc, err := store.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, doc)

	require.NoError(t, store.Save(context.Background(), "users", "A"))
	got, err := store.Get("users")
	require.NoError(t, err)
	assert.Equal(t, "A", got)
}

func TestSaveRejectsEmptyInput(t *testing.T) {
	store, _ := newMemStore(t)

	err := store.Save(context.Background(), "", "A")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataInvalid))

	err = store.Save(context.Background(), "users", " ")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataInvalid))
}

func TestMalformedDocumentIsNotReplaced(t *testing.T) {
	tests := map[string]string{
		"not json":        `{"users": [`,
		"wrong shape":     `{"users": "A"}`,
		"non-string item": `{"users": [1, 2]}`,
		"top-level array": `["A"]`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			store, fs := newMemStore(t)
			require.NoError(t, afero.WriteFile(fs, dataFile, []byte(content), 0o644))

			err := store.Save(context.Background(), "users", "B")
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataCorrupted))

			data, err := afero.ReadFile(fs, dataFile)
			require.NoError(t, err)
			assert.Equal(t, content, string(data))
		})
	}
}

func TestSaveFailsWhenLockIsHeld(t *testing.T) {
	store, fs := newMemStore(t)
	require.NoError(t, fs.MkdirAll(dataFile+".lock", 0o755))

	start := time.Now()
	err := store.Save(context.Background(), "users", "A")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeLockNotAcquired))
	assert.Less(t, time.Since(start), 2*time.Second)

	// No partial write
	exists, err := afero.Exists(fs, dataFile)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConcurrentWritersKeepEveryValue(t *testing.T) {
	const writers = 20

	fs := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "test-data", "test-data.json")
	lock := dirlock.New(fs, path+".lock", dirlock.Options{Attempts: 2000, Delay: time.Millisecond}, nil)
	counter := &writeCounter{}
	store := New(fs, path, lock, Options{Observer: counter})

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Save(context.Background(), "users", fmt.Sprintf("user-%02d", i))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	values, err := store.GetAll("users")
	require.NoError(t, err)
	assert.Len(t, values, writers)

	seen := make(map[string]bool, writers)
	for _, v := range values {
		assert.False(t, seen[v], "duplicate value %s", v)
		seen[v] = true
	}
	for i := 0; i < writers; i++ {
		assert.True(t, seen[fmt.Sprintf("user-%02d", i)])
	}
	assert.Equal(t, writers, counter.writes["users"])
}
