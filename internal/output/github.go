// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package output publishes setup results to a GitHub Actions runner: step
// outputs go to the GITHUB_OUTPUT file and resolved credentials are masked
// in the job log.
package output

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// maxValueSize is the runner's limit for a single output value
const maxValueSize = 32768

var outputNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// GitHubConfig holds the runner files and streams used by GitHubActions
type GitHubConfig struct {
	// OutputFile is GITHUB_OUTPUT; empty disables step outputs
	OutputFile string
	// Commands receives workflow commands such as ::add-mask::
	Commands io.Writer
	Fs       afero.Fs
}

// ConfigFromEnv reads the runner files from getenv
func ConfigFromEnv(getenv func(string) string, fs afero.Fs, commands io.Writer) GitHubConfig {
	return GitHubConfig{
		OutputFile: getenv("GITHUB_OUTPUT"),
		Commands:   commands,
		Fs:         fs,
	}
}

// GitHubActions handles GitHub Actions specific output operations
type GitHubActions struct {
	logger  *logger.Logger
	config  GitHubConfig
	mu      sync.Mutex
	outputs map[string]string
	masked  map[string]struct{}
}

// NewGitHubActions creates a new GitHub Actions publisher
func NewGitHubActions(log *logger.Logger, config GitHubConfig) *GitHubActions {
	if log == nil {
		log = logger.NewDiscard()
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.Commands == nil {
		config.Commands = os.Stdout
	}
	return &GitHubActions{
		logger:  log,
		config:  config,
		outputs: make(map[string]string),
		masked:  make(map[string]struct{}),
	}
}

// SetOutput appends name=value to GITHUB_OUTPUT
func (gh *GitHubActions) SetOutput(name, value string) error {
	gh.mu.Lock()
	defer gh.mu.Unlock()

	if !outputNamePattern.MatchString(name) || len(name) > 100 {
		return errors.New(errors.ErrCodeDataInvalid, fmt.Sprintf("invalid output name %q", name)).WithOp("SetOutput")
	}
	if len(value) > maxValueSize || strings.Contains(value, "\x00") {
		return errors.New(errors.ErrCodeDataInvalid, fmt.Sprintf("invalid value for output %s", name)).WithOp("SetOutput")
	}
	if gh.config.OutputFile == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "GITHUB_OUTPUT is not set").
			WithOp("SetOutput").
			WithSuggestions("Run inside a GitHub Actions step or omit --github")
	}

	if err := gh.appendOutput(name, value); err != nil {
		return errors.Wrap(errors.ErrCodeDataWriteFailed, "failed to write to GITHUB_OUTPUT file", err).
			WithOp("SetOutput").
			WithContext("path", gh.config.OutputFile)
	}

	gh.outputs[name] = value
	gh.logger.Debug("Set GitHub Actions output", "name", name, "value_length", len(value))
	return nil
}

// MaskValue registers value with the runner's log masker once
func (gh *GitHubActions) MaskValue(value string) {
	gh.mu.Lock()
	defer gh.mu.Unlock()

	if strings.TrimSpace(value) == "" {
		return
	}
	if _, done := gh.masked[value]; done {
		return
	}
	// Each line of a multiline secret is masked on its own
	for _, line := range strings.Split(value, "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintf(gh.config.Commands, "::add-mask::%s\n", line)
		}
	}
	gh.masked[value] = struct{}{}
	gh.logger.Debug("Added value mask", "value_length", len(value))
}

// Outputs returns a copy of the outputs written so far
func (gh *GitHubActions) Outputs() map[string]string {
	gh.mu.Lock()
	defer gh.mu.Unlock()

	outputs := make(map[string]string, len(gh.outputs))
	for k, v := range gh.outputs {
		outputs[k] = v
	}
	return outputs
}

func (gh *GitHubActions) appendOutput(name, value string) error {
	file, err := gh.config.Fs.OpenFile(gh.config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			gh.logger.Error("Failed to close output file", "file", gh.config.OutputFile, "error", closeErr)
		}
	}()

	if !strings.Contains(value, "\n") {
		_, err = fmt.Fprintf(file, "%s=%s\n", name, value)
		return err
	}
	delimiter := generateDelimiter(value)
	_, err = fmt.Fprintf(file, "%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter)
	return err
}

// generateDelimiter picks a heredoc delimiter that does not occur in value
func generateDelimiter(value string) string {
	delimiter := "EOF"
	for counter := 1; strings.Contains(value, delimiter); counter++ {
		delimiter = fmt.Sprintf("EOF_%d", counter)
	}
	return delimiter
}
