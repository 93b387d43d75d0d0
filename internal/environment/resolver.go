// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

import (
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// Source names
const (
	SourceCI    = "ci"
	SourceLocal = "local"
)

// Resolver exposes one accessor surface over the CI and local fetchers.
// The CI flag is fixed at construction, so every accessor of a run reads
// from the same source.
type Resolver struct {
	ci     bool
	active Fetcher
	logger *logger.Logger
}

// NewResolver selects ciFetcher when ci is set and localFetcher otherwise
func NewResolver(ci bool, ciFetcher, localFetcher Fetcher, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewDiscard()
	}
	active := localFetcher
	if ci {
		active = ciFetcher
	}
	return &Resolver{ci: ci, active: active, logger: log}
}

// Source reports which fetcher serves the run
func (r *Resolver) Source() string {
	if r.ci {
		return SourceCI
	}
	return SourceLocal
}

// IsCI reports whether the CI fetcher is active
func (r *Resolver) IsCI() bool {
	return r.ci
}

// APIBaseURL resolves the API base URL
func (r *Resolver) APIBaseURL() (string, error) {
	return resolve(r, "APIBaseURL", r.active.APIBaseURL)
}

// PortalBaseURL resolves the portal base URL
func (r *Resolver) PortalBaseURL() (string, error) {
	return resolve(r, "PortalBaseURL", r.active.PortalBaseURL)
}

// PortalCredentials resolves and decrypts the portal login
func (r *Resolver) PortalCredentials() (Credentials, error) {
	return resolve(r, "PortalCredentials", r.active.PortalCredentials)
}

// AdminCredentials resolves and decrypts the administrator login
func (r *Resolver) AdminCredentials() (Credentials, error) {
	return resolve(r, "AdminCredentials", r.active.AdminCredentials)
}

// Database resolves the database connection parameters
func (r *Resolver) Database() (DatabaseConfig, error) {
	return resolve(r, "Database", r.active.Database)
}

func resolve[T any](r *Resolver, op string, fn func() (T, error)) (T, error) {
	value, err := Try(op, fn)
	if err != nil {
		r.logger.Debug("Resolution failed", "operation", op, "source", r.Source(), "error", err.Error())
		return value, err
	}
	r.logger.Debug("Resolved value", "operation", op, "source", r.Source())
	return value, nil
}

var _ Fetcher = (*Resolver)(nil)
