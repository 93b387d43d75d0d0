// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package datastore persists generated entity identifiers so parallel test
// workers can hand them to one another. Sections are append-only and the
// last entry of a section is the most recent.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/lfreleng-actions/e2e-test-kit/internal/dirlock"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/fsutil"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// Document maps a section name to its ordered identifiers
type Document map[string][]string

// Observer receives store activity; monitoring.Metrics implements it
type Observer interface {
	StoreWrite(section string)
}

// Options configures a Store
type Options struct {
	Logger   *logger.Logger
	Observer Observer
}

// Store is the shared test-data file guarded by a lock
type Store struct {
	fs       afero.Fs
	path     string
	locker   dirlock.Locker
	logger   *logger.Logger
	observer Observer
}

// New creates a store over path. Every write runs under locker.
func New(fs afero.Fs, path string, locker dirlock.Locker, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Store{
		fs:       fs,
		path:     path,
		locker:   locker,
		logger:   log,
		observer: opts.Observer,
	}
}

// Path returns the data file location
func (s *Store) Path() string {
	return s.path
}

// Save appends value to section. The read-modify-write happens entirely
// under the lock, so concurrent writers never lose each other's entries.
func (s *Store) Save(ctx context.Context, section, value string) error {
	if strings.TrimSpace(section) == "" {
		return errors.New(errors.ErrCodeDataInvalid, "section name must not be empty").WithOp("Save")
	}
	if strings.TrimSpace(value) == "" {
		return errors.New(errors.ErrCodeDataInvalid, fmt.Sprintf("value for section %q must not be empty", section)).
			WithOp("Save").
			WithContext("section", section)
	}

	err := s.locker.WithLock(ctx, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}

		doc[section] = append(doc[section], value)
		return s.write(doc)
	})
	if err != nil {
		return err
	}

	if s.observer != nil {
		s.observer.StoreWrite(section)
	}
	s.logger.Debug("Saved test data", "section", section, "file", s.path)
	return nil
}

// Get returns the most recent value of section without taking the lock.
// Readers may observe a snapshot that predates a concurrent write.
func (s *Store) Get(section string) (string, error) {
	values, err := s.GetAll(section)
	if err != nil {
		return "", err
	}
	return values[len(values)-1], nil
}

// GetAll returns every value of section in insertion order
func (s *Store) GetAll(section string) ([]string, error) {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataCorrupted, "failed to stat test data file", err).WithOp("Get")
	}
	if !exists {
		return nil, errors.NewDataNotFoundError(section,
			fmt.Sprintf("test data file %s does not exist", s.path)).WithOp("Get")
	}

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	values := doc[section]
	if len(values) == 0 {
		return nil, errors.NewDataNotFoundError(section,
			fmt.Sprintf("no test data found for section %q", section)).WithOp("Get")
	}
	return values, nil
}

// Snapshot returns the whole document without taking the lock
func (s *Store) Snapshot() (Document, error) {
	return s.read()
}

// Sections lists the non-empty sections in sorted order
func (s *Store) Sections() ([]string, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc))
	for name, values := range doc {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// read loads the document; a missing or blank file is an empty document
func (s *Store) read() (Document, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeDataCorrupted, fmt.Sprintf("failed to read %s", s.path), err).
			WithOp("read")
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}

	if err := validateDocument(data); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataCorrupted, fmt.Sprintf("malformed test data file %s", s.path), err).
			WithOp("read").
			WithSuggestions("Inspect or delete the test data file; it is never replaced automatically")
	}

	doc := Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataCorrupted, fmt.Sprintf("malformed test data file %s", s.path), err).
			WithOp("read")
	}
	return doc, nil
}

func (s *Store) write(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataWriteFailed, "failed to encode test data", err).WithOp("write")
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(s.fs, s.path, data); err != nil {
		return errors.Wrap(errors.ErrCodeDataWriteFailed, fmt.Sprintf("failed to write %s", s.path), err).
			WithOp("write")
	}
	return nil
}
