// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package browser drives the portal UI. Tests talk to the Page interface;
// the playwright adapter is the production implementation.
package browser

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
)

// Page is the subset of browser capabilities the harness relies on
type Page interface {
	Goto(url string) error
	Fill(selector, value string) error
	Click(selector string) error
	WaitVisible(selector string, timeout time.Duration) error
	URL() string
	SaveStorageState(path string) error
}

// classify maps a raw browser failure onto the automation error taxonomy.
// Errors that are already classified pass through.
func classify(action, target string, err error) error {
	if err == nil {
		return nil
	}

	var actionable *errors.ActionableError
	if stderrors.As(err, &actionable) {
		return err
	}

	if stderrors.Is(err, playwright.ErrTimeout) {
		return errors.NewAutomationError(errors.ErrCodeElementTimeout,
			fmt.Sprintf("%s timed out on %s", action, target), err).
			WithOp(action)
	}

	code := errors.ErrCodeBrowserError
	if action == actionGoto {
		code = errors.ErrCodeNavigationFailed
	}
	return errors.NewAutomationError(code, fmt.Sprintf("%s failed on %s", action, target), err).
		WithOp(action)
}

const (
	actionGoto        = "goto"
	actionFill        = "fill"
	actionClick       = "click"
	actionWaitVisible = "wait_visible"
)
