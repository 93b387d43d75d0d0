// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package apiclient calls the backend API resolved for the run
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
	"github.com/lfreleng-actions/e2e-test-kit/internal/retry"
)

// maxErrorBody caps how much of a failed response is kept in the error
const maxErrorBody = 512

// Client talks JSON to the API base URL
type Client struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
	logger     *logger.Logger
	headers    http.Header
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithLogger sets the client logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		c.logger = log
	}
}

// New creates a client. Each request is bounded by timeout and retried
// under policy.
func New(baseURL string, timeout time.Duration, policy retry.Policy, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("API base URL %q is not an absolute URL", baseURL), err).WithOp("apiclient.New")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		policy:     policy,
		logger:     logger.NewDiscard(),
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.Logger == nil {
		c.policy.Logger = c.logger
	}
	return c, nil
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches path and decodes the JSON body into out when out is non-nil
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends in as JSON and decodes the response into out when out is non-nil
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataInvalid, "failed to encode request body", err).WithOp("PostJSON")
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Status performs a GET and returns only the status code. Transport
// failures are errors; any HTTP status is not.
func (c *Client) Status(ctx context.Context, path string) (int, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// WaitForStatus polls path under the retry policy until it answers want
func (c *Client) WaitForStatus(ctx context.Context, path string, want int) error {
	op := "wait " + path
	return retry.Do(ctx, c.policy, op, func(ctx context.Context) error {
		got, err := c.Status(ctx, path)
		if err != nil {
			return err
		}
		if got != want {
			return errors.NewAutomationError(errors.ErrCodeAPIStatus,
				fmt.Sprintf("%s returned %d, waiting for %d", path, got, want), nil).
				WithOp("WaitForStatus").
				WithRecoverable(true)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	op := method + " " + path
	return retry.Do(ctx, c.policy, op, func(ctx context.Context) error {
		resp, err := c.send(ctx, method, path, body)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return statusError(op, resp)
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(errors.ErrCodeDataInvalid, fmt.Sprintf("failed to decode %s response", op), err).
				WithOp(op)
		}
		return nil
	})
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to create request", err).WithOp(method + " " + path)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewAutomationError(errors.ErrCodeAPIError,
			fmt.Sprintf("%s %s request failed", method, path), err).WithOp(method + " " + path)
	}

	c.logger.Debug("API response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (c *Client) endpoint(path string) string {
	if path == "" {
		return c.baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// statusError classifies a non-2xx response. Server errors and throttling
// are retried; other client errors are not.
func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	recoverable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests

	return errors.NewAutomationError(errors.ErrCodeAPIStatus,
		fmt.Sprintf("%s returned %d", op, resp.StatusCode), nil).
		WithOp(op).
		WithRecoverable(recoverable).
		WithDetails(map[string]interface{}{
			"status": resp.StatusCode,
			"body":   strings.TrimSpace(string(snippet)),
		})
}
