// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfreleng-actions/e2e-test-kit/internal/app"
	"github.com/lfreleng-actions/e2e-test-kit/internal/authstate"
	"github.com/lfreleng-actions/e2e-test-kit/internal/environment"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/fixtures"
	"github.com/lfreleng-actions/e2e-test-kit/internal/secrets"
)

func testCLI(env map[string]string) *cli {
	getenv := fixtures.Getenv(env)
	return &cli{
		getenv: getenv,
		fs:     afero.NewMemMapFs(),
		keys:   environment.EnvKeySource{Getenv: getenv},
	}
}

func execute(c *cli, stdin string, args ...string) (string, error) {
	cmd := newRootCmd(c)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func localEnv() map[string]string {
	env := fixtures.SecretKeys()
	for _, name := range []string{"API_BASE_URL", "PORTAL_BASE_URL", "PORTAL_USERNAME", "PORTAL_PASSWORD"} {
		env[name] = fixtures.LocalEnvironment()[name]
	}
	return env
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(testCLI(nil), "", "version")
	require.NoError(t, err)

	assert.Contains(t, out, "e2e-kit")
	assert.Contains(t, out, "Version: "+Version)
	assert.Contains(t, out, "Git Commit: "+GitCommit)
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()

	for _, key := range []string{"version", "build_time", "git_commit", "go_version", "platform"} {
		assert.NotEmpty(t, version[key], key)
	}
	assert.Equal(t, Version, version["version"])
}

func TestSetupCommand(t *testing.T) {
	c := testCLI(localEnv())

	out, err := execute(c, "", "setup", "--format", FormatJSON)
	require.NoError(t, err)

	var report app.SetupReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "local", report.Source)
	assert.Equal(t, "dev", report.Stage)
	assert.Equal(t, fixtures.APIBaseURL, report.APIBaseURL)
	assert.False(t, report.AdminConfigured)

	exists, err := afero.Exists(c.fs, report.AuthStatePath)
	require.NoError(t, err)
	assert.True(t, exists)

	out, err = execute(c, "", "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "Portal:     "+fixtures.PortalBaseURL)
}

func TestSetupCommandCI(t *testing.T) {
	out, err := execute(testCLI(fixtures.CIEnvironment()), "", "setup")
	require.NoError(t, err)

	assert.Contains(t, out, "Source:     ci")
	assert.Contains(t, out, "Database:   true")
	assert.NotContains(t, out, fixtures.PortalPassword)
}

func TestSetupCommandGitHub(t *testing.T) {
	env := fixtures.CIEnvironment()
	env["GITHUB_OUTPUT"] = "/runner/_temp/output"
	c := testCLI(env)

	out, err := execute(c, "", "setup", "--github", "--format", FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, out, "::add-mask::"+fixtures.PortalPassword+"\n")
	assert.Contains(t, out, "::add-mask::"+fixtures.AdminPassword+"\n")
	assert.Contains(t, out, "::add-mask::"+fixtures.DatabasePassword+"\n")

	data, err := afero.ReadFile(c.fs, "/runner/_temp/output")
	require.NoError(t, err)
	assert.Contains(t, string(data), "api_base_url="+fixtures.APIBaseURL+"\n")
	assert.Contains(t, string(data), "stage=dev\n")
	assert.NotContains(t, string(data), fixtures.PortalPassword)
}

func TestSetupCommandMissingVariables(t *testing.T) {
	env := localEnv()
	delete(env, "PORTAL_PASSWORD")

	_, err := execute(testCLI(env), "", "setup")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMissingVariable))
	assert.Contains(t, err.Error(), "PORTAL_PASSWORD")
}

func TestEncryptDecryptCommands(t *testing.T) {
	c := testCLI(fixtures.SecretKeys())

	out, err := execute(c, "plainpass\n", "encrypt", "--stage", "uat", "-")
	require.NoError(t, err)
	envelope := strings.TrimSpace(out)
	assert.True(t, secrets.IsEncrypted(envelope))
	assert.NotContains(t, envelope, "plainpass")

	out, err = execute(c, "", "decrypt", "--stage", "uat", envelope)
	require.NoError(t, err)
	assert.Equal(t, "plainpass\n", out)

	// A different stage key fails closed
	out, err = execute(c, "", "decrypt", "--stage", "prod", envelope)
	require.Error(t, err)
	assert.Empty(t, out)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDecryptionFailed))
}

func TestDecryptRejectsPlaintext(t *testing.T) {
	_, err := execute(testCLI(fixtures.SecretKeys()), "", "decrypt", "plainpass")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMalformedEnvelope))
}

func TestEncryptRejectsUnknownStage(t *testing.T) {
	_, err := execute(testCLI(fixtures.SecretKeys()), "", "encrypt", "--stage", "qa", "value")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidStage))
}

func TestEncryptWithoutKey(t *testing.T) {
	_, err := execute(testCLI(nil), "", "encrypt", "value")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMissingSecretKey))
}

func TestDataCommands(t *testing.T) {
	c := testCLI(localEnv())

	_, err := execute(c, "", "data", "get", "users")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDataNotFound))

	for _, value := range []string{"user_a", "user_b"} {
		out, err := execute(c, "", "data", "save", "users", value)
		require.NoError(t, err)
		assert.Contains(t, out, "Saved "+value)
	}
	_, err = execute(c, "", "data", "save", "orders", "order_1")
	require.NoError(t, err)

	out, err := execute(c, "", "data", "get", "users")
	require.NoError(t, err)
	assert.Equal(t, "user_b\n", out)

	out, err = execute(c, "", "data", "get", "users", "--all")
	require.NoError(t, err)
	assert.Equal(t, "user_a\nuser_b\n", out)

	out, err = execute(c, "", "data", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "orders"))
	assert.True(t, strings.HasSuffix(lines[1], "2"))

	out, err = execute(c, "", "data", "list", "--format", FormatJSON)
	require.NoError(t, err)
	var doc map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, []string{"order_1"}, doc["orders"])
}

func TestAuthCommands(t *testing.T) {
	c := testCLI(localEnv())

	out, err := execute(c, "", "auth", "path")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(".auth", authstate.LocalFileName), path)

	require.NoError(t, afero.WriteFile(c.fs, path, []byte(`{"cookies":[{"name":"sid"}],"origins":[]}`), 0600))

	out, err = execute(c, "", "auth", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset "+path)

	data, err := afero.ReadFile(c.fs, path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sid")
}

func TestConfigShow(t *testing.T) {
	out, err := execute(testCLI(map[string]string{"ENV": "uat"}), "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "stage: uat")

	out, err = execute(testCLI(nil), "", "config", "show", "--format", FormatJSON)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "dev", decoded["stage"])

	_, err = execute(testCLI(nil), "", "config", "show", "--format", "toml")
	assert.Error(t, err)
}

func TestConfigShowAppliesFlags(t *testing.T) {
	out, err := execute(testCLI(nil), "", "--debug", "--metrics-textfile", "/tmp/e2e.prom", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "log_level: debug")
	assert.Contains(t, out, "/tmp/e2e.prom")
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e2e-kit.yaml")
	c := testCLI(nil)

	out, err := execute(c, "", "config", "init", "ci", "-o", path, "--stage", "prod")
	require.NoError(t, err)
	assert.Contains(t, out, "template 'ci'")

	out, err = execute(c, "", "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, err = execute(c, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "stage: prod")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("lock_attempts: -1\n"), 0600))
	_, err = execute(c, "", "config", "validate", bad)
	assert.Error(t, err)

	_, err = execute(c, "", "config", "init", "missing", "-o", path)
	assert.Error(t, err)
}

func TestConfigTemplates(t *testing.T) {
	out, err := execute(testCLI(nil), "", "config", "templates")
	require.NoError(t, err)

	for _, name := range []string{"ci", "debug", "local"} {
		assert.Contains(t, out, name)
	}
}

func TestArgumentValidation(t *testing.T) {
	tests := [][]string{
		{"setup", "extra"},
		{"encrypt"},
		{"data", "save", "users"},
		{"data", "get"},
		{"key", "store", "uat"},
	}

	for _, args := range tests {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			_, err := execute(testCLI(nil), "", args...)
			assert.Error(t, err)
		})
	}
}

func TestKeyStoreRejectsUnknownStage(t *testing.T) {
	_, err := execute(testCLI(nil), "", "key", "store", "qa", "value")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidStage))
}
