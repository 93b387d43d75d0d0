// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package app wires the resolved configuration into a Harness: the
// environment resolver, secret resolution, auth-state, the shared test-data
// store and run metrics. GlobalSetup runs once before any test worker starts.
package app

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"

	"github.com/lfreleng-actions/e2e-test-kit/internal/apiclient"
	"github.com/lfreleng-actions/e2e-test-kit/internal/authstate"
	"github.com/lfreleng-actions/e2e-test-kit/internal/browser"
	"github.com/lfreleng-actions/e2e-test-kit/internal/config"
	"github.com/lfreleng-actions/e2e-test-kit/internal/database"
	"github.com/lfreleng-actions/e2e-test-kit/internal/datastore"
	"github.com/lfreleng-actions/e2e-test-kit/internal/dirlock"
	"github.com/lfreleng-actions/e2e-test-kit/internal/environment"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
	"github.com/lfreleng-actions/e2e-test-kit/internal/monitoring"
	"github.com/lfreleng-actions/e2e-test-kit/internal/retry"
	"github.com/lfreleng-actions/e2e-test-kit/internal/secrets"
)

// Options overrides the process-level dependencies of a Harness
type Options struct {
	// Fs defaults to the OS filesystem
	Fs afero.Fs
	// Getenv defaults to os.Getenv
	Getenv func(string) string
	// Keys defaults to environment.KeySourceFor the run's CI flag
	Keys environment.KeySource
	// KeyringService defaults to environment.DefaultKeyringService
	KeyringService string
}

// Harness holds every component of one run
type Harness struct {
	config  *config.Config
	logger  *logger.Logger
	fs      afero.Fs
	monitor *monitoring.Monitor

	crypto   *secrets.Service
	secrets  *environment.SecretResolver
	lookup   func(string) string
	resolver *environment.Resolver
	auth     *authstate.Manager
	lock     *dirlock.DirLock
	store    *datastore.Store
	policy   retry.Policy
}

// SetupReport summarizes a successful GlobalSetup. It never holds secrets.
type SetupReport struct {
	Source             string `json:"source"`
	Stage              string `json:"stage"`
	APIBaseURL         string `json:"api_base_url"`
	PortalBaseURL      string `json:"portal_base_url"`
	AuthStatePath      string `json:"auth_state_path"`
	TestDataFile       string `json:"test_data_file"`
	AdminConfigured    bool   `json:"admin_configured"`
	DatabaseConfigured bool   `json:"database_configured"`
}

// New builds a Harness. Stage and CI are taken from cfg and never re-read.
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Harness, error) {
	if cfg == nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidConfig, "Configuration is required", nil)
	}
	if log == nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidConfig, "Logger is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.KeyringService == "" {
		opts.KeyringService = environment.DefaultKeyringService
	}
	if opts.Keys == nil {
		opts.Keys = environment.KeySourceFor(cfg.CI, opts.Getenv, opts.KeyringService)
	}

	monitor := monitoring.NewMonitor(log, monitoring.NewMetrics(), cfg.MetricsTextfile)
	metrics := monitor.Metrics()

	crypto := secrets.NewService(log, secrets.WithRecorder(metrics))
	secretResolver := environment.NewSecretResolver(cfg.Stage, opts.Keys, crypto)

	h := &Harness{
		config:  cfg,
		logger:  log,
		fs:      opts.Fs,
		monitor: monitor,
		crypto:  crypto,
		secrets: secretResolver,
	}

	if cfg.CI {
		snapshot := environment.LoadCIEnvironmentConfig(opts.Getenv)
		h.lookup = snapshot.Lookup
		h.resolver = environment.NewResolver(true, environment.NewCIFetcher(snapshot, secretResolver), nil, log)
	} else {
		constants, err := environment.LoadLocalConstants(opts.Fs, cfg.LocalEnvDir, cfg.Stage, opts.Getenv)
		if err != nil {
			return nil, err
		}
		if constants.Path != "" {
			log.Debug("Loaded local environment file", "path", constants.Path)
		}
		h.lookup = constants.Lookup
		h.resolver = environment.NewResolver(false, nil, environment.NewLocalFetcher(constants, secretResolver), log)
	}

	h.policy = retry.FromConfig(cfg, log)
	h.policy.Observer = metrics

	h.auth = authstate.NewManager(opts.Fs, cfg.AuthDir, cfg.CI, log)
	h.lock = dirlock.New(opts.Fs, cfg.LockDir(), dirlock.Options{
		Attempts: cfg.LockAttempts,
		Delay:    cfg.LockDelay,
	}, log).WithObserver(metrics)
	h.store = datastore.New(opts.Fs, cfg.TestDataFile, h.lock, datastore.Options{
		Logger:   log,
		Observer: metrics,
	})

	log.Debug("Harness initialized",
		"stage", cfg.Stage.String(),
		"source", h.resolver.Source(),
		"workers", cfg.Workers)

	return h, nil
}

// GlobalSetup validates and resolves the run environment once, resets the
// auth state to an empty session and prepares the test-data directory.
// The first failure aborts setup naming the variable or accessor.
func (h *Harness) GlobalSetup(ctx context.Context) (*SetupReport, error) {
	op := h.monitor.StartOperation("global_setup", map[string]interface{}{
		"stage":  h.config.Stage.String(),
		"source": h.resolver.Source(),
	})

	var report *SetupReport
	err := h.monitor.WithPanicRecovery(ctx, "global_setup", func() error {
		var err error
		report, err = h.globalSetup(ctx)
		return err
	})
	if err != nil {
		op.Fail(err)
		return nil, err
	}

	op.Complete(map[string]interface{}{
		"admin_configured":    report.AdminConfigured,
		"database_configured": report.DatabaseConfigured,
	})
	return report, nil
}

func (h *Harness) globalSetup(ctx context.Context) (*SetupReport, error) {
	ci := h.config.CI

	if err := environment.ValidateRequired(ci, h.lookup); err != nil {
		return nil, err
	}

	report := &SetupReport{
		Source:        h.resolver.Source(),
		Stage:         h.config.Stage.String(),
		AuthStatePath: h.auth.ResolveAuthStateFilePath(),
		TestDataFile:  h.config.TestDataFile,
	}

	var err error
	if report.APIBaseURL, err = h.resolver.APIBaseURL(); err != nil {
		return nil, err
	}
	if report.PortalBaseURL, err = h.resolver.PortalBaseURL(); err != nil {
		return nil, err
	}
	if _, err = h.resolver.PortalCredentials(); err != nil {
		return nil, err
	}

	if report.AdminConfigured, err = environment.ValidateOptionalGroup(environment.AdminVariables(ci), h.lookup); err != nil {
		return nil, err
	}
	if report.AdminConfigured {
		if _, err = h.resolver.AdminCredentials(); err != nil {
			return nil, err
		}
	}

	if report.DatabaseConfigured, err = environment.ValidateOptionalGroup(environment.DatabaseVariables(ci), h.lookup); err != nil {
		return nil, err
	}
	if report.DatabaseConfigured {
		dbCfg, err := h.resolver.Database()
		if err != nil {
			return nil, err
		}
		if _, err := database.DriverName(dbCfg.Driver); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternalError, "global setup cancelled", err)
	}

	if err := h.auth.InitializeEmptyAuthStateFile(); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(h.config.TestDataFile)
	if err := h.fs.MkdirAll(dataDir, 0750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataWriteFailed, "failed to create test-data directory", err).
			WithContext("path", dataDir)
	}

	h.logger.Info("Global setup complete",
		"source", report.Source,
		"stage", report.Stage,
		"auth_state", report.AuthStatePath,
		"admin", report.AdminConfigured,
		"database", report.DatabaseConfigured)

	return report, nil
}

// Config returns the run configuration
func (h *Harness) Config() *config.Config { return h.config }

// Logger returns the run logger
func (h *Harness) Logger() *logger.Logger { return h.logger }

// Resolver returns the environment resolver
func (h *Harness) Resolver() *environment.Resolver { return h.resolver }

// Secrets returns the stage-bound secret resolver
func (h *Harness) Secrets() *environment.SecretResolver { return h.secrets }

// Crypto returns the crypto service
func (h *Harness) Crypto() *secrets.Service { return h.crypto }

// AuthState returns the auth-state manager
func (h *Harness) AuthState() *authstate.Manager { return h.auth }

// Store returns the shared test-data store
func (h *Harness) Store() *datastore.Store { return h.store }

// Lock returns the lock guarding the test-data store
func (h *Harness) Lock() *dirlock.DirLock { return h.lock }

// Monitor returns the run monitor
func (h *Harness) Monitor() *monitoring.Monitor { return h.monitor }

// RetryPolicy returns the run retry policy
func (h *Harness) RetryPolicy() retry.Policy { return h.policy }

// APIClient builds a client on the resolved API base URL
func (h *Harness) APIClient() (*apiclient.Client, error) {
	base, err := h.resolver.APIBaseURL()
	if err != nil {
		return nil, err
	}
	return apiclient.New(base, h.config.APITimeout, h.policy, apiclient.WithLogger(h.logger))
}

// OpenDatabase connects to the resolved database
func (h *Harness) OpenDatabase(ctx context.Context) (*database.Client, error) {
	cfg, err := h.resolver.Database()
	if err != nil {
		return nil, err
	}
	return database.Open(ctx, cfg, h.policy, h.logger)
}

// LaunchBrowser starts a browser session seeded with the cached auth state
func (h *Harness) LaunchBrowser() (*browser.Session, error) {
	return browser.Launch(h.config, h.auth, h.logger)
}

// LoginFlow returns the portal login flow for this run
func (h *Harness) LoginFlow(opts ...browser.LoginOption) *browser.LoginFlow {
	opts = append([]browser.LoginOption{browser.WithActionTimeout(h.config.ActionTimeout)}, opts...)
	return browser.NewLoginFlow(h.resolver, h.auth, h.policy, h.logger, opts...)
}

// Close zeroes key material and flushes metrics
func (h *Harness) Close() error {
	var errs []error
	if err := h.secrets.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := h.monitor.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// GetVersionInfo returns build information
func GetVersionInfo(version, buildTime, gitCommit string) map[string]string {
	return map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
	}
}
