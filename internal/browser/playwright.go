// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package browser

import (
	stderrors "errors"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/lfreleng-actions/e2e-test-kit/internal/authstate"
	"github.com/lfreleng-actions/e2e-test-kit/internal/config"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// Session owns one playwright driver, browser and context
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	logger  *logger.Logger
}

// Launch starts chromium with the run's headless flag and timeouts. When
// auth holds a reusable session the context starts from it.
func Launch(cfg *config.Config, auth *authstate.Manager, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.NewDiscard()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.NewAutomationError(errors.ErrCodeBrowserError, "failed to start playwright driver", err).
			WithOp("Launch").
			WithRecoverable(false).
			WithSuggestions("Install the browsers with: go run github.com/playwright-community/playwright-go/cmd/playwright install chromium")
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errors.NewAutomationError(errors.ErrCodeBrowserError, "failed to launch chromium", err).
			WithOp("Launch")
	}

	opts := contextOptions(auth, log)
	bctx, err := browser.NewContext(opts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, errors.NewAutomationError(errors.ErrCodeBrowserError, "failed to create browser context", err).
			WithOp("Launch")
	}
	bctx.SetDefaultTimeout(milliseconds(cfg.ActionTimeout))
	bctx.SetDefaultNavigationTimeout(milliseconds(cfg.NavigationTimeout))

	log.Debug("Browser launched",
		"headless", cfg.Headless,
		"storage_state", opts.StorageStatePath != nil)

	return &Session{pw: pw, browser: browser, context: bctx, logger: log}, nil
}

// contextOptions seeds the context with the same session LoginFlow would reuse
func contextOptions(auth *authstate.Manager, log *logger.Logger) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{}
	if sessionReusable(auth, log) {
		opts.StorageStatePath = playwright.String(auth.ResolveAuthStateFilePath())
	}
	return opts
}

// NewPage opens a tab in the session context
func (s *Session) NewPage() (Page, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, errors.NewAutomationError(errors.ErrCodeBrowserError, "failed to open page", err).
			WithOp("NewPage")
	}
	return &playwrightPage{page: page}, nil
}

// Close tears down the context, the browser and the driver
func (s *Session) Close() error {
	var errs []error
	if err := s.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		s.logger.Warn("Browser shutdown incomplete", "errors", len(errs))
		return stderrors.Join(errs...)
	}
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url)
	return classify(actionGoto, url, err)
}

func (p *playwrightPage) Fill(selector, value string) error {
	return classify(actionFill, selector, p.page.Locator(selector).Fill(value))
}

func (p *playwrightPage) Click(selector string) error {
	return classify(actionClick, selector, p.page.Locator(selector).Click())
}

func (p *playwrightPage) WaitVisible(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(milliseconds(timeout)),
	})
	return classify(actionWaitVisible, selector, err)
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) SaveStorageState(path string) error {
	if _, err := p.page.Context().StorageState(path); err != nil {
		return errors.Wrap(errors.ErrCodeAuthStateFailed, "failed to save storage state", err).
			WithOp("SaveStorageState").
			WithContext("path", path)
	}
	return nil
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
