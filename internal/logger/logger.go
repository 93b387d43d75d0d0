// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package logger provides structured logging with context-aware secret
// scrubbing for the test kit. Credentials and encrypted envelopes never reach
// the log output in clear form.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// LogContext represents the sensitivity context for a log message
type LogContext int

const (
	// ContextNormal represents normal logging context - no special handling
	ContextNormal LogContext = iota
	// ContextSensitive scrubs string arguments before they are written
	ContextSensitive
)

// Logger wraps slog.Logger with context-aware security features and cleanup
type Logger struct {
	logger  *slog.Logger
	logFile *os.File
	config  Config
	mu      sync.RWMutex
}

// Config holds logger configuration options
type Config struct {
	Level              slog.Level
	Debug              bool
	LogFile            string
	Format             string // "json" or "text"
	AddSource          bool
	DisableFileLogging bool // CI runners keep their own job logs
	DisableStderr      bool
	Output             io.Writer // overrides stderr when set
}

// DefaultConfig returns sensible defaults for logging configuration. Callers
// set DisableFileLogging from the run's CI flag.
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "json",
		AddSource: false,
	}
}

const (
	redactedValue  = "[REDACTED]"
	redactedFormat = "%s***%s"
	// encryptedMarker mirrors the envelope prefix of the secrets package
	encryptedMarker = "enc:"
)

var (
	envelopePattern   = regexp.MustCompile(`enc:[A-Za-z0-9+/=_-]+`)
	assignmentPattern = regexp.MustCompile(`(?i)(\b[A-Z_]*(?:PASSWORD|SECRET|TOKEN|KEY)[A-Z_]*["']?\s*[=:]\s*["']?)([^\s"'<>,}]+)(["']?)`)
)

// New creates a new Logger using the environment to pick the level
func New() (*Logger, error) {
	config := DefaultConfig()

	if os.Getenv("DEBUG") == "true" || os.Getenv("RUNNER_DEBUG") == "1" {
		config.Debug = true
		config.Level = slog.LevelDebug
	}

	return NewWithConfig(config)
}

// NewDiscard returns a logger that drops every record. Used by tests and by
// library callers that do not want output.
func NewDiscard() *Logger {
	l, _ := NewWithConfig(Config{Level: slog.LevelDebug, Output: io.Discard})
	return l
}

// NewWithConfig creates a new Logger with custom configuration
func NewWithConfig(config Config) (*Logger, error) {
	l := &Logger{config: config}

	var writers []io.Writer
	if config.LogFile != "" && !config.DisableFileLogging {
		logDir := filepath.Dir(config.LogFile)
		if err := os.MkdirAll(logDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.logFile = logFile
		writers = append(writers, logFile)
	}

	switch {
	case config.Output != nil:
		writers = append(writers, config.Output)
	case !config.DisableStderr:
		writers = append(writers, os.Stderr)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	secureOutput := &contextAwareWriter{writer: output}

	handlerOptions := &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case "text":
		handler = slog.NewTextHandler(secureOutput, handlerOptions)
	default:
		handler = slog.NewJSONHandler(secureOutput, handlerOptions)
	}

	l.logger = slog.New(handler)
	return l, nil
}

// ParseLevel converts a configured level name into a slog level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextAwareWriter scrubs secrets from records that look like they carry one
type contextAwareWriter struct {
	writer io.Writer
	mu     sync.Mutex
}

// Write implements io.Writer and conditionally scrubs based on message content
func (caw *contextAwareWriter) Write(p []byte) (n int, err error) {
	caw.mu.Lock()
	defer caw.mu.Unlock()

	message := string(p)
	if shouldScrubMessage(message) {
		if _, err := caw.writer.Write([]byte(scrubKnownSecrets(message))); err != nil {
			return 0, err
		}
		// report the caller's length so slog does not see a short write
		return len(p), nil
	}

	return caw.writer.Write(p)
}

// shouldScrubMessage determines if a message needs secret scrubbing
func shouldScrubMessage(message string) bool {
	sensitiveIndicators := []string{
		encryptedMarker,
		"password",
		"secret",
		"token",
		"key=",
		"key:",
		"authorization:",
	}

	lowerMessage := strings.ToLower(message)
	for _, indicator := range sensitiveIndicators {
		if strings.Contains(lowerMessage, indicator) {
			return true
		}
	}
	return false
}

// scrubKnownSecrets removes encrypted envelopes and secret assignments
func scrubKnownSecrets(message string) string {
	scrubbed := envelopePattern.ReplaceAllString(message, encryptedMarker+redactedValue)

	scrubbed = assignmentPattern.ReplaceAllStringFunc(scrubbed, func(match string) string {
		parts := assignmentPattern.FindStringSubmatch(match)
		if len(parts) < 4 {
			return match
		}
		if strings.HasPrefix(parts[2], encryptedMarker) || parts[2] == redactedValue {
			return match
		}
		return parts[1] + redactedValue + parts[3]
	})

	return scrubbed
}

// processArgsWithContext converts arguments to slog pairs, scrubbing strings
// when the context is sensitive
func (l *Logger) processArgsWithContext(ctx LogContext, args []any) []any {
	var result []any

	for i, arg := range args {
		if mapArg, ok := arg.(map[string]interface{}); ok {
			for key, value := range mapArg {
				if key == "" {
					key = fmt.Sprintf("field_%d", i)
				}
				if str, ok := value.(string); ok && ctx != ContextNormal {
					value = ScrubValue(str)
				}
				result = append(result, key, value)
			}
			continue
		}
		if str, ok := arg.(string); ok && ctx != ContextNormal && i%2 == 1 {
			arg = ScrubValue(str)
		}
		result = append(result, arg)
	}

	if len(result)%2 != 0 {
		result = append(result, "<value>")
	}

	return result
}

// Info logs an info level message with normal context
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, ContextNormal, msg, args...)
}

// InfoSensitive logs an info level message in sensitive context
func (l *Logger) InfoSensitive(msg string, args ...any) {
	l.log(slog.LevelInfo, ContextSensitive, msg, args...)
}

// Error logs an error level message with normal context
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, ContextNormal, msg, args...)
}

// ErrorSensitive logs an error level message in sensitive context
func (l *Logger) ErrorSensitive(msg string, args ...any) {
	l.log(slog.LevelError, ContextSensitive, msg, args...)
}

// Warn logs a warning level message with normal context
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, ContextNormal, msg, args...)
}

// WarnSensitive logs a warning level message in sensitive context
func (l *Logger) WarnSensitive(msg string, args ...any) {
	l.log(slog.LevelWarn, ContextSensitive, msg, args...)
}

// Debug logs a debug level message with normal context
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, ContextNormal, msg, args...)
}

// DebugSensitive logs a debug level message in sensitive context
func (l *Logger) DebugSensitive(msg string, args ...any) {
	l.log(slog.LevelDebug, ContextSensitive, msg, args...)
}

func (l *Logger) log(level slog.Level, ctx LogContext, msg string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.Log(context.Background(), level, msg, l.processArgsWithContext(ctx, args)...)
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return &Logger{
		logger:  l.logger.With(args...),
		logFile: l.logFile,
		config:  l.config,
	}
}

// WithGroup returns a new logger with the given group name
func (l *Logger) WithGroup(name string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return &Logger{
		logger:  l.logger.WithGroup(name),
		logFile: l.logFile,
		config:  l.config,
	}
}

// Slog exposes the underlying slog.Logger for libraries that accept one
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// LogError logs an error with comprehensive details for troubleshooting
func (l *Logger) LogError(err error, message string, context map[string]interface{}) {
	logData := map[string]interface{}{
		"error_message": err.Error(),
	}
	for k, v := range context {
		logData[k] = v
	}

	l.Error(message, logData)
}

// LogRecoveredPanic logs a recovered panic with context
func (l *Logger) LogRecoveredPanic(recovered interface{}, context map[string]interface{}) {
	logData := map[string]interface{}{
		"panic_value": fmt.Sprintf("%v", recovered),
		"recovered":   true,
	}
	for k, v := range context {
		logData[k] = v
	}

	l.Error("Panic recovered", logData)
}

// Cleanup closes any open file handles and performs cleanup
func (l *Logger) Cleanup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		if err := l.logFile.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.logFile = nil
	}

	return nil
}

// IsSecretValue checks if a string is an encrypted envelope
func IsSecretValue(value string) bool {
	return strings.HasPrefix(value, encryptedMarker)
}

// ScrubValue safely scrubs a potentially secret value for logging
func ScrubValue(value string) string {
	if IsSecretValue(value) {
		return encryptedMarker + redactedValue
	}
	if len(value) <= 8 {
		return redactedValue
	}
	return fmt.Sprintf(redactedFormat, value[:2], value[len(value)-2:])
}

// LogOperationStart logs the start of an operation with context
func (l *Logger) LogOperationStart(operation string, context map[string]interface{}) {
	logData := map[string]interface{}{
		"operation": operation,
		"status":    "started",
	}
	for k, v := range context {
		logData[k] = v
	}

	l.Info(fmt.Sprintf("Starting %s", operation), logData)
}

// LogOperationComplete logs successful completion of an operation
func (l *Logger) LogOperationComplete(operation string, duration time.Duration, context map[string]interface{}) {
	logData := map[string]interface{}{
		"operation":   operation,
		"status":      "completed",
		"duration_ms": duration.Milliseconds(),
	}
	for k, v := range context {
		logData[k] = v
	}

	l.Info(fmt.Sprintf("Completed %s", operation), logData)
}

// LogOperationFailed logs failed operation with error details
func (l *Logger) LogOperationFailed(operation string, duration time.Duration, err error, context map[string]interface{}) {
	logData := map[string]interface{}{
		"operation":   operation,
		"status":      "failed",
		"duration_ms": duration.Milliseconds(),
		"error":       err.Error(),
	}
	for k, v := range context {
		logData[k] = v
	}

	l.Error(fmt.Sprintf("Failed %s", operation), logData)
}
