// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package authstate manages the cached browser session file that lets tests
// skip interactive login once global setup has authenticated.
package authstate

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/fsutil"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// File names under the auth directory
const (
	CIFileName    = "ci-auth-state.json"
	LocalFileName = "local-auth-state.json"
)

// State is the browser storage-state document
type State struct {
	Cookies []json.RawMessage `json:"cookies"`
	Origins []json.RawMessage `json:"origins"`
}

// EmptyState returns the valid session with no cookies or origins
func EmptyState() State {
	return State{Cookies: []json.RawMessage{}, Origins: []json.RawMessage{}}
}

// Manager resolves and resets the auth-state file of a run
type Manager struct {
	fs     afero.Fs
	dir    string
	ci     bool
	logger *logger.Logger
}

// NewManager creates a manager for dir. ci selects the file name and is
// fixed for the life of the manager.
func NewManager(fs afero.Fs, dir string, ci bool, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Manager{fs: fs, dir: dir, ci: ci, logger: log}
}

// ResolveAuthStateFilePath returns the auth-state path without touching disk
func (m *Manager) ResolveAuthStateFilePath() string {
	if m.ci {
		return filepath.Join(m.dir, CIFileName)
	}
	return filepath.Join(m.dir, LocalFileName)
}

// InitializeEmptyAuthStateFile leaves the file holding an empty session,
// creating the directory when needed. Calling it repeatedly is safe.
func (m *Manager) InitializeEmptyAuthStateFile() error {
	path := m.ResolveAuthStateFilePath()

	data, err := json.Marshal(EmptyState())
	if err != nil {
		return errors.Wrap(errors.ErrCodeAuthStateFailed, "failed to encode empty auth state", err).
			WithOp("InitializeEmptyAuthStateFile")
	}

	if err := fsutil.WriteFileAtomic(m.fs, path, data); err != nil {
		return errors.Wrap(errors.ErrCodeAuthStateFailed, fmt.Sprintf("failed to reset auth state %s", path), err).
			WithOp("InitializeEmptyAuthStateFile").
			WithContext("path", path)
	}

	m.logger.Info("Auth state reset", "path", path)
	return nil
}

// HasReusableSession reports whether the file exists and is non-empty
func (m *Manager) HasReusableSession() bool {
	info, err := m.fs.Stat(m.ResolveAuthStateFilePath())
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// HasCookies reports whether the cached session holds at least one cookie.
// An empty-but-valid state from a fresh reset has none.
func (m *Manager) HasCookies() (bool, error) {
	state, err := m.Load()
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return len(state.Cookies) > 0, nil
}

// Load reads and decodes the auth-state file
func (m *Manager) Load() (State, error) {
	path := m.ResolveAuthStateFilePath()

	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return State{}, errors.Wrap(errors.ErrCodeAuthStateFailed, fmt.Sprintf("failed to read auth state %s", path), err).
			WithOp("Load")
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, errors.Wrap(errors.ErrCodeAuthStateFailed, fmt.Sprintf("invalid auth state %s", path), err).
			WithOp("Load")
	}
	return state, nil
}
