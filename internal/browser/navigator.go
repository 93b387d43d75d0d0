// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package browser

import (
	"context"
	"time"

	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
	"github.com/lfreleng-actions/e2e-test-kit/internal/retry"
)

// Navigator runs page actions under the retry policy. Timeouts and
// navigation failures are retried; anything else fails on first sight.
type Navigator struct {
	page          Page
	policy        retry.Policy
	actionTimeout time.Duration
	logger        *logger.Logger
}

// NewNavigator wraps page. actionTimeout bounds WaitVisible.
func NewNavigator(page Page, policy retry.Policy, actionTimeout time.Duration, log *logger.Logger) *Navigator {
	if log == nil {
		log = logger.NewDiscard()
	}
	if policy.Logger == nil {
		policy.Logger = log
	}
	return &Navigator{
		page:          page,
		policy:        policy,
		actionTimeout: actionTimeout,
		logger:        log,
	}
}

// Page returns the wrapped page
func (n *Navigator) Page() Page {
	return n.page
}

// Goto navigates to url
func (n *Navigator) Goto(ctx context.Context, url string) error {
	n.logger.Debug("Navigating", "url", url)
	return retry.Do(ctx, n.policy, actionGoto, func(context.Context) error {
		return classify(actionGoto, url, n.page.Goto(url))
	})
}

// Fill types value into selector. The value is never logged.
func (n *Navigator) Fill(ctx context.Context, selector, value string) error {
	return retry.Do(ctx, n.policy, actionFill, func(context.Context) error {
		return classify(actionFill, selector, n.page.Fill(selector, value))
	})
}

// Click clicks selector
func (n *Navigator) Click(ctx context.Context, selector string) error {
	return retry.Do(ctx, n.policy, actionClick, func(context.Context) error {
		return classify(actionClick, selector, n.page.Click(selector))
	})
}

// WaitVisible waits for selector to become visible
func (n *Navigator) WaitVisible(ctx context.Context, selector string) error {
	return retry.Do(ctx, n.policy, actionWaitVisible, func(context.Context) error {
		return classify(actionWaitVisible, selector, n.page.WaitVisible(selector, n.actionTimeout))
	})
}
