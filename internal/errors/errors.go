// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package errors provides the structured error type used across the test kit.
// Every error carries a code, a category derived from that code, the name of
// the operation that produced it and the underlying cause chain.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific error condition with a unique identifier
type ErrorCode string

// Error categories and codes
const (
	// Configuration Errors (1000-1099)
	ErrCodeInvalidConfig       ErrorCode = "E2E1001"
	ErrCodeMissingVariable     ErrorCode = "E2E1002"
	ErrCodeInvalidStage        ErrorCode = "E2E1003"
	ErrCodeMissingSecretKey    ErrorCode = "E2E1004"
	ErrCodeConfigFileInvalid   ErrorCode = "E2E1005"
	ErrCodeConfigValidation    ErrorCode = "E2E1006"
	ErrCodeUnsupportedDatabase ErrorCode = "E2E1007"

	// Credential Errors (1100-1199)
	ErrCodeInvalidCredentials ErrorCode = "E2E1101"
	ErrCodeDecryptionFailed   ErrorCode = "E2E1102"
	ErrCodeMalformedEnvelope  ErrorCode = "E2E1103"
	ErrCodeEncryptionFailed   ErrorCode = "E2E1104"

	// Resolution Errors (1200-1299)
	ErrCodeResolutionFailed ErrorCode = "E2E1201"

	// Lock Errors (1300-1399)
	ErrCodeLockNotAcquired ErrorCode = "E2E1301"
	ErrCodeLockRelease     ErrorCode = "E2E1302"

	// Data Errors (1400-1499)
	ErrCodeDataNotFound    ErrorCode = "E2E1401"
	ErrCodeDataCorrupted   ErrorCode = "E2E1402"
	ErrCodeDataWriteFailed ErrorCode = "E2E1403"
	ErrCodeDataInvalid     ErrorCode = "E2E1404"
	ErrCodeAuthStateFailed ErrorCode = "E2E1405"

	// Automation Errors (1500-1599)
	ErrCodeNavigationFailed ErrorCode = "E2E1501"
	ErrCodeElementTimeout   ErrorCode = "E2E1502"
	ErrCodeAPIError         ErrorCode = "E2E1503"
	ErrCodeAPIStatus        ErrorCode = "E2E1504"
	ErrCodeRetryExhausted   ErrorCode = "E2E1505"
	ErrCodeDatabaseError    ErrorCode = "E2E1506"
	ErrCodeBrowserError     ErrorCode = "E2E1507"

	// Internal and Unknown Errors (1900-1999)
	ErrCodeInternalError  ErrorCode = "E2E1901"
	ErrCodeUnknownError   ErrorCode = "E2E1902"
	ErrCodePanicRecovered ErrorCode = "E2E1903"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryConfiguration covers missing variables and invalid stages
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryCredential covers empty credentials and failed decryption
	CategoryCredential ErrorCategory = "credential"
	// CategoryResolution covers fetcher failures surfaced by the resolver
	CategoryResolution ErrorCategory = "resolution"
	// CategoryLock covers lock acquisition and release
	CategoryLock ErrorCategory = "lock"
	// CategoryData covers the shared test-data store and auth state files
	CategoryData ErrorCategory = "data"
	// CategoryAutomation covers browser, API and database interactions
	CategoryAutomation ErrorCategory = "automation"
	// CategoryInternal represents internal system errors
	CategoryInternal ErrorCategory = "internal"
)

// Severity represents the severity level of an error
type Severity string

const (
	// SeverityCritical aborts the whole run
	SeverityCritical Severity = "critical"
	// SeverityHigh fails the current test
	SeverityHigh Severity = "high"
	// SeverityMedium represents medium severity level
	SeverityMedium Severity = "medium"
	// SeverityLow represents low severity level
	SeverityLow Severity = "low"
)

// ActionableError is the single structured error type of the kit. Op names
// the operation that failed; Cause keeps the original error reachable through
// errors.Is and errors.As.
type ActionableError struct {
	Code        ErrorCode
	Category    ErrorCategory
	Severity    Severity
	Op          string
	Message     string
	UserMessage string
	Details     map[string]interface{}
	Suggestions []string
	Cause       error
	Context     map[string]string
	Recoverable bool
}

// Error implements the error interface
func (e *ActionableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", e.Code)
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error for error wrapping
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *ActionableError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// GetSuggestions returns actionable suggestions for resolving the error
func (e *ActionableError) GetSuggestions() []string {
	return e.Suggestions
}

// GetDetails returns additional error details
func (e *ActionableError) GetDetails() map[string]interface{} {
	return e.Details
}

// IsRecoverable indicates whether the operation can be retried
func (e *ActionableError) IsRecoverable() bool {
	return e.Recoverable
}

// GetContext returns error context information
func (e *ActionableError) GetContext() map[string]string {
	return e.Context
}

// New creates a new ActionableError with the given code and message
func New(code ErrorCode, message string) *ActionableError {
	return Wrap(code, message, nil)
}

// Wrap creates a new ActionableError that wraps an existing error
func Wrap(code ErrorCode, message string, cause error) *ActionableError {
	return &ActionableError{
		Code:        code,
		Category:    getCategory(code),
		Severity:    getSeverity(code),
		Message:     message,
		Cause:       cause,
		Details:     make(map[string]interface{}),
		Context:     make(map[string]string),
		Recoverable: isRecoverable(code),
	}
}

// WithOp records the name of the failing operation
func (e *ActionableError) WithOp(op string) *ActionableError {
	e.Op = op
	return e
}

// WithUserMessage sets a user-friendly message
func (e *ActionableError) WithUserMessage(msg string) *ActionableError {
	e.UserMessage = msg
	return e
}

// WithDetails adds details to the error
func (e *ActionableError) WithDetails(details map[string]interface{}) *ActionableError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithSuggestions adds actionable suggestions
func (e *ActionableError) WithSuggestions(suggestions ...string) *ActionableError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithContext adds context information
func (e *ActionableError) WithContext(key, value string) *ActionableError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error is recoverable
func (e *ActionableError) WithRecoverable(recoverable bool) *ActionableError {
	e.Recoverable = recoverable
	return e
}

// getCategory determines the category based on error code
func getCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	if len(codeStr) < 7 {
		return CategoryInternal
	}

	switch codeStr[3:5] {
	case "10":
		return CategoryConfiguration
	case "11":
		return CategoryCredential
	case "12":
		return CategoryResolution
	case "13":
		return CategoryLock
	case "14":
		return CategoryData
	case "15":
		return CategoryAutomation
	default:
		return CategoryInternal
	}
}

// getSeverity determines the severity based on error code
func getSeverity(code ErrorCode) Severity {
	if code == ErrCodeLockRelease {
		return SeverityLow
	}
	switch getCategory(code) {
	case CategoryConfiguration:
		return SeverityCritical
	case CategoryCredential, CategoryLock, CategoryData, CategoryResolution:
		return SeverityHigh
	case CategoryAutomation:
		return SeverityMedium
	}
	return SeverityMedium
}

// isRecoverable reports whether errors with this code are worth retrying.
// Only transient automation failures qualify; retrying a bad password or a
// missing variable never succeeds.
func isRecoverable(code ErrorCode) bool {
	switch code {
	case ErrCodeNavigationFailed, ErrCodeElementTimeout, ErrCodeAPIError,
		ErrCodeAPIStatus, ErrCodeDatabaseError, ErrCodeBrowserError:
		return true
	default:
		return false
	}
}

// Helper functions for creating common errors

// NewConfigurationError creates a configuration-related error
func NewConfigurationError(code ErrorCode, message string, cause error) *ActionableError {
	err := Wrap(code, message, cause)
	return err.WithSuggestions(
		"Check that every required environment variable is exported",
		"Verify ENV is one of dev, uat or prod",
		"Review the local environment file for the active stage",
	)
}

// NewCredentialError creates a credential or decryption error
func NewCredentialError(code ErrorCode, message string, cause error) *ActionableError {
	err := Wrap(code, message, cause)
	return err.WithSuggestions(
		"Verify the username and password are set for the active stage",
		"Re-encrypt the value with the secret key of the active stage",
	)
}

// NewResolutionError wraps a fetcher failure with the accessor name
func NewResolutionError(op string, cause error) *ActionableError {
	return Wrap(ErrCodeResolutionFailed,
		fmt.Sprintf("failed to resolve %s", op), cause).WithOp(op)
}

// NewLockError creates a lock-acquisition error
func NewLockError(path string, attempts int, cause error) *ActionableError {
	err := Wrap(ErrCodeLockNotAcquired,
		fmt.Sprintf("lock not acquired after %d attempts", attempts), cause)
	return err.WithContext("lock_path", path).WithSuggestions(
		"Remove the lock directory if no test worker is running",
	)
}

// NewDataNotFoundError creates a test-data lookup error
func NewDataNotFoundError(section string, message string) *ActionableError {
	return New(ErrCodeDataNotFound, message).WithContext("section", section)
}

// NewAutomationError creates a transient automation error
func NewAutomationError(code ErrorCode, message string, cause error) *ActionableError {
	return Wrap(code, message, cause)
}

// asActionable finds the outermost ActionableError in the chain
func asActionable(err error) (*ActionableError, bool) {
	var actionableErr *ActionableError
	if stderrors.As(err, &actionableErr) {
		return actionableErr, true
	}
	return nil, false
}

// IsErrorCode checks if an error in the chain has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		if actionableErr, ok := err.(*ActionableError); ok && actionableErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if actionableErr, ok := asActionable(err); ok {
		return actionableErr.Category == category
	}
	return false
}

// IsRecoverableError checks if an error is recoverable
func IsRecoverableError(err error) bool {
	if actionableErr, ok := asActionable(err); ok {
		return actionableErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	if actionableErr, ok := asActionable(err); ok {
		return actionableErr.Code
	}
	return ErrCodeUnknownError
}

// GetErrorCategory extracts the error category from an error
func GetErrorCategory(err error) ErrorCategory {
	if actionableErr, ok := asActionable(err); ok {
		return actionableErr.Category
	}
	return CategoryInternal
}

// FormatErrorForUser formats an error for user-friendly display
func FormatErrorForUser(err error) string {
	actionableErr, ok := asActionable(err)
	if !ok {
		return err.Error()
	}

	var parts []string
	parts = append(parts, actionableErr.GetUserMessage())
	if actionableErr.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", actionableErr.Cause))
	}
	parts = append(parts, fmt.Sprintf("Error Code: %s", actionableErr.Code))

	if len(actionableErr.Suggestions) > 0 {
		parts = append(parts, "\nSuggestions:")
		for _, suggestion := range actionableErr.Suggestions {
			parts = append(parts, fmt.Sprintf("  • %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}

// FormatErrorForLog formats an error for structured logging
func FormatErrorForLog(err error) map[string]interface{} {
	logData := map[string]interface{}{
		"error_message": err.Error(),
	}

	if actionableErr, ok := asActionable(err); ok {
		logData["error_code"] = actionableErr.Code
		logData["error_category"] = actionableErr.Category
		logData["error_severity"] = actionableErr.Severity
		logData["recoverable"] = actionableErr.Recoverable

		if actionableErr.Op != "" {
			logData["operation"] = actionableErr.Op
		}
		if len(actionableErr.Details) > 0 {
			logData["details"] = actionableErr.Details
		}
		if len(actionableErr.Context) > 0 {
			logData["context"] = actionableErr.Context
		}
		if actionableErr.Cause != nil {
			logData["underlying_error"] = actionableErr.Cause.Error()
		}
	}

	return logData
}
