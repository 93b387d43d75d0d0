// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package browser

import (
	"context"
	"net/url"
	"time"

	"github.com/lfreleng-actions/e2e-test-kit/internal/authstate"
	"github.com/lfreleng-actions/e2e-test-kit/internal/environment"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
	"github.com/lfreleng-actions/e2e-test-kit/internal/retry"
)

// CredentialSource supplies the portal location and login; environment.Resolver
// satisfies it
type CredentialSource interface {
	PortalBaseURL() (string, error)
	PortalCredentials() (environment.Credentials, error)
}

// Selectors locate the login form
type Selectors struct {
	LoginPath string
	Username  string
	Password  string
	Submit    string
	// LoggedIn is visible only once the portal has accepted the login
	LoggedIn string
}

// DefaultSelectors matches the portal's login page
func DefaultSelectors() Selectors {
	return Selectors{
		LoginPath: "/login",
		Username:  "#username",
		Password:  "#password",
		Submit:    "button[type=submit]",
		LoggedIn:  "[data-testid=user-menu]",
	}
}

// LoginFlow establishes an authenticated portal session
type LoginFlow struct {
	source        CredentialSource
	auth          *authstate.Manager
	selectors     Selectors
	policy        retry.Policy
	actionTimeout time.Duration
	logger        *logger.Logger
}

// LoginOption configures a LoginFlow
type LoginOption func(*LoginFlow)

// WithSelectors overrides the login form selectors
func WithSelectors(s Selectors) LoginOption {
	return func(f *LoginFlow) {
		f.selectors = s
	}
}

// WithActionTimeout bounds each wait for the logged-in marker
func WithActionTimeout(d time.Duration) LoginOption {
	return func(f *LoginFlow) {
		f.actionTimeout = d
	}
}

// NewLoginFlow creates a login flow
func NewLoginFlow(source CredentialSource, auth *authstate.Manager, policy retry.Policy, log *logger.Logger, opts ...LoginOption) *LoginFlow {
	if log == nil {
		log = logger.NewDiscard()
	}
	f := &LoginFlow{
		source:        source,
		auth:          auth,
		selectors:     DefaultSelectors(),
		policy:        policy,
		actionTimeout: 10 * time.Second,
		logger:        log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EnsureSession reuses a cached session when one with cookies exists and
// otherwise logs in through the form and saves the new storage state.
// It reports whether a fresh login happened.
func (f *LoginFlow) EnsureSession(ctx context.Context, page Page) (bool, error) {
	if sessionReusable(f.auth, f.logger) {
		f.logger.Debug("Reusing cached session", "path", f.auth.ResolveAuthStateFilePath())
		return false, nil
	}

	base, err := f.source.PortalBaseURL()
	if err != nil {
		return false, err
	}
	creds, err := f.source.PortalCredentials()
	if err != nil {
		return false, err
	}

	loginURL, err := url.JoinPath(base, f.selectors.LoginPath)
	if err != nil {
		return false, errors.NewConfigurationError(errors.ErrCodeInvalidConfig, "portal base URL is not a valid URL", err).
			WithOp("EnsureSession")
	}

	nav := NewNavigator(page, f.policy, f.actionTimeout, f.logger)
	if err := nav.Goto(ctx, loginURL); err != nil {
		return false, err
	}
	if err := nav.Fill(ctx, f.selectors.Username, creds.Username); err != nil {
		return false, err
	}
	if err := nav.Fill(ctx, f.selectors.Password, creds.Password); err != nil {
		return false, err
	}
	if err := nav.Click(ctx, f.selectors.Submit); err != nil {
		return false, err
	}
	if err := nav.WaitVisible(ctx, f.selectors.LoggedIn); err != nil {
		return false, err
	}

	path := f.auth.ResolveAuthStateFilePath()
	if err := page.SaveStorageState(path); err != nil {
		return false, err
	}

	f.logger.Info("Logged in to portal", "auth_state", path)
	return true, nil
}

// sessionReusable reports whether the cached auth state holds a session worth
// restoring: the file is non-empty and carries at least one cookie
func sessionReusable(auth *authstate.Manager, log *logger.Logger) bool {
	if auth == nil || !auth.HasReusableSession() {
		return false
	}
	hasCookies, err := auth.HasCookies()
	if err != nil {
		log.Warn("Cached auth state unreadable, logging in again", "error", err.Error())
		return false
	}
	return hasCookies
}
