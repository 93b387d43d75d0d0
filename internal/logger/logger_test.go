// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package logger

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(t *testing.T, level slog.Level) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewWithConfig(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	return l, &buf
}

func TestNew(t *testing.T) {
	t.Setenv("DEBUG", "true")

	logger, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = logger.Cleanup() }()

	if !logger.config.Debug {
		t.Error("expected debug mode from DEBUG=true")
	}
	if logger.config.Level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", logger.config.Level)
	}
}

func TestNewWithConfig(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "with log file",
			config: Config{
				Level:   slog.LevelInfo,
				LogFile: filepath.Join(tempDir, "logs", "e2e.log"),
				Format:  "json",
			},
			wantErr: false,
		},
		{
			name: "text format",
			config: Config{
				Level:  slog.LevelDebug,
				Format: "text",
			},
			wantErr: false,
		},
		{
			name: "invalid log directory",
			config: Config{
				Level:   slog.LevelInfo,
				LogFile: "/proc/invalid/path/test.log",
				Format:  "json",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewWithConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if logger != nil {
				defer func() { _ = logger.Cleanup() }()
			}
		})
	}
}

func TestLogFileReceivesRecords(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "e2e.log")
	logger, err := NewWithConfig(Config{Level: slog.LevelInfo, LogFile: logPath, DisableStderr: true})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}

	logger.Info("global setup finished", "stage", "uat")
	if err := logger.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "global setup finished") {
		t.Errorf("expected record in log file, got %q", content)
	}
}

func TestScrubEncryptedEnvelope(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)

	logger.Info("resolved value", "raw", "enc:QUJDREVGR0hJSktMTU5PUA==")

	out := buf.String()
	if strings.Contains(out, "QUJDREVGR0hJSktMTU5PUA==") {
		t.Errorf("envelope leaked into log output: %s", out)
	}
	if !strings.Contains(out, "enc:[REDACTED]") {
		t.Errorf("expected redacted envelope, got %s", out)
	}
}

func TestScrubAssignments(t *testing.T) {
	tests := []struct {
		name    string
		message string
		leak    string
	}{
		{"env assignment", "PORTAL_PASSWORD=hunter2hunter2", "hunter2hunter2"},
		{"json attribute", `{"password":"s3cr3t-value"}`, "s3cr3t-value"},
		{"secret key", "SECRET_KEY_UAT: topsecretmaterial", "topsecretmaterial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scrubbed := scrubKnownSecrets(tt.message)
			if strings.Contains(scrubbed, tt.leak) {
				t.Errorf("expected %q to be scrubbed, got %q", tt.leak, scrubbed)
			}
			if !strings.Contains(scrubbed, redactedValue) {
				t.Errorf("expected redaction marker in %q", scrubbed)
			}
		})
	}
}

func TestShouldScrubMessage(t *testing.T) {
	if shouldScrubMessage("saved users entry") {
		t.Error("plain message should not be scrubbed")
	}
	if !shouldScrubMessage("value enc:abc") {
		t.Error("envelope message should be scrubbed")
	}
}

func TestSensitiveContext(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelDebug)

	logger.InfoSensitive("credentials resolved", "username", "qa-automation-user")

	out := buf.String()
	if strings.Contains(out, "qa-automation-user") {
		t.Errorf("sensitive value leaked: %s", out)
	}
	if !strings.Contains(out, "qa***er") {
		t.Errorf("expected partially redacted value, got %s", out)
	}
}

func TestScrubValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"enc:AAAA", "enc:[REDACTED]"},
		{"short", "[REDACTED]"},
		{"longer-value", "lo***ue"},
	}
	for _, tt := range tests {
		if got := ScrubValue(tt.in); got != tt.want {
			t.Errorf("ScrubValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("records below warn were written: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("expected warn and error records: %s", out)
	}
}

func TestWithAndGroup(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)

	logger.With("component", "datastore").WithGroup("lock").Info("acquired", "attempt", 2)

	out := buf.String()
	if !strings.Contains(out, `"component":"datastore"`) {
		t.Errorf("expected component attribute, got %s", out)
	}
	if !strings.Contains(out, `"lock":{"attempt":2}`) {
		t.Errorf("expected grouped attribute, got %s", out)
	}
}

func TestOperationLogging(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)

	logger.LogOperationStart("global setup", map[string]interface{}{"stage": "dev"})
	logger.LogOperationComplete("global setup", 150*time.Millisecond, nil)
	logger.LogOperationFailed("global setup", time.Second, errors.New("missing API_BASE_URL"), nil)
	logger.LogError(errors.New("boom"), "release failed", map[string]interface{}{"path": "x.lock"})

	out := buf.String()
	for _, want := range []string{
		"Starting global setup",
		"Completed global setup",
		`"duration_ms":150`,
		"Failed global setup",
		"missing API_BASE_URL",
		"release failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output: %s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"trace":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileLoggingFollowsConfigOnly(t *testing.T) {
	t.Setenv("CI", "true")
	if DefaultConfig().DisableFileLogging {
		t.Error("DefaultConfig must not read the process environment")
	}

	path := filepath.Join(t.TempDir(), "logs", "e2e.log")
	logger, err := NewWithConfig(Config{LogFile: path, DisableFileLogging: true, Output: io.Discard})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	logger.Info("not written to file")
	_ = logger.Cleanup()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected no log file when file logging is disabled, stat err = %v", err)
	}
}

func TestRecoveredPanic(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)

	logger.LogRecoveredPanic("nil map", map[string]interface{}{"operation": "save"})

	if !strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("expected panic record, got %s", buf.String())
	}
}
