// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
)

const outputFile = "/runner/_temp/github_output"

func newTestGitHub() (*GitHubActions, afero.Fs, *bytes.Buffer) {
	fs := afero.NewMemMapFs()
	var commands bytes.Buffer
	gh := NewGitHubActions(nil, GitHubConfig{OutputFile: outputFile, Commands: &commands, Fs: fs})
	return gh, fs, &commands
}

func TestSetOutput(t *testing.T) {
	gh, fs, _ := newTestGitHub()

	require.NoError(t, gh.SetOutput("api_base_url", "https://api.example.test"))
	require.NoError(t, gh.SetOutput("notes", "line one\nEOF\nline three"))

	data, err := afero.ReadFile(fs, outputFile)
	require.NoError(t, err)
	assert.Equal(t,
		"api_base_url=https://api.example.test\nnotes<<EOF_1\nline one\nEOF\nline three\nEOF_1\n",
		string(data))
	assert.Equal(t, "https://api.example.test", gh.Outputs()["api_base_url"])
}

func TestSetOutputValidation(t *testing.T) {
	gh, _, _ := newTestGitHub()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"empty name", "", "v"},
		{"leading digit", "1stage", "v"},
		{"dash", "api-url", "v"},
		{"null byte", "stage", "uat\x00"},
		{"too long", "stage", strings.Repeat("x", maxValueSize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gh.SetOutput(tt.key, tt.value)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataInvalid))
		})
	}
}

func TestSetOutputWithoutRunnerFile(t *testing.T) {
	gh := NewGitHubActions(nil, GitHubConfig{Fs: afero.NewMemMapFs(), Commands: &bytes.Buffer{}})

	err := gh.SetOutput("stage", "uat")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidConfig))
}

func TestSetOutputWriteFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	gh := NewGitHubActions(nil, GitHubConfig{OutputFile: outputFile, Commands: &bytes.Buffer{}, Fs: fs})

	err := gh.SetOutput("stage", "uat")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataWriteFailed))
}

func TestMaskValue(t *testing.T) {
	gh, _, commands := newTestGitHub()

	gh.MaskValue("plainpass")
	gh.MaskValue("plainpass")
	gh.MaskValue("   ")
	gh.MaskValue("first\nsecond")

	assert.Equal(t, "::add-mask::plainpass\n::add-mask::first\n::add-mask::second\n", commands.String())
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{"GITHUB_OUTPUT": outputFile}
	config := ConfigFromEnv(func(k string) string { return env[k] }, nil, nil)

	assert.Equal(t, outputFile, config.OutputFile)
}
