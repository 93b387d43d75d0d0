// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/secrets"
)

// Credentials is a username and password pair. Values are plaintext once
// returned by a Fetcher and are only held for the duration of a test.
type Credentials struct {
	Username string
	Password string
}

// String never reveals the password
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: [REDACTED]}", c.Username)
}

// DatabaseConfig holds resolved database connection parameters
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// Fetcher reads the closed set of run variables from one physical source
type Fetcher interface {
	APIBaseURL() (string, error)
	PortalBaseURL() (string, error)
	PortalCredentials() (Credentials, error)
	AdminCredentials() (Credentials, error)
	Database() (DatabaseConfig, error)
}

// variableSource maps unprefixed variable names to raw values
type variableSource interface {
	Lookup(name string) string
	ci() bool
}

// fetcher implements Fetcher over a variableSource. Every value is validated
// before use and every credential field goes through the secret resolver.
type fetcher struct {
	src     variableSource
	secrets ValueResolver
}

// ValueResolver turns a possibly encrypted value into plaintext
type ValueResolver interface {
	Resolve(value string) (string, error)
}

func (f *fetcher) name(name string) string {
	return VariableName(name, f.src.ci())
}

// value returns the raw value; credential fields are never altered
func (f *fetcher) value(name string) (string, error) {
	v := f.src.Lookup(name)
	if err := ValidateValue(f.name(name), v); err != nil {
		return "", err
	}
	return v, nil
}

// setting returns a non-secret value with surrounding whitespace removed
func (f *fetcher) setting(name string) (string, error) {
	v, err := f.value(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (f *fetcher) secret(name string) (string, error) {
	v, err := f.value(name)
	if err != nil {
		return "", err
	}
	return f.decrypt(name, v)
}

func (f *fetcher) decrypt(name, value string) (string, error) {
	// Envelopes never contain whitespace; plaintext is passed on as read
	if secrets.IsEncrypted(value) {
		value = strings.TrimRightFunc(value, unicode.IsSpace)
	}
	resolved, err := f.secrets.Resolve(value)
	if err != nil {
		return "", errors.Wrap(errors.GetErrorCode(err), fmt.Sprintf("failed to decrypt %s", f.name(name)), err).
			WithContext("variable", f.name(name))
	}
	return resolved, nil
}

func (f *fetcher) APIBaseURL() (string, error) {
	return f.setting(VarAPIBaseURL)
}

func (f *fetcher) PortalBaseURL() (string, error) {
	return f.setting(VarPortalBaseURL)
}

func (f *fetcher) PortalCredentials() (Credentials, error) {
	return f.credentials(VarPortalUsername, VarPortalPassword, "PortalCredentials")
}

func (f *fetcher) AdminCredentials() (Credentials, error) {
	return f.credentials(VarAdminUsername, VarAdminPassword, "AdminCredentials")
}

func (f *fetcher) credentials(userVar, passVar, context string) (Credentials, error) {
	username, err := f.value(userVar)
	if err != nil {
		return Credentials{}, err
	}
	password, err := f.value(passVar)
	if err != nil {
		return Credentials{}, err
	}

	raw := Credentials{Username: username, Password: password}
	if err := VerifyCredentials(raw, context); err != nil {
		return Credentials{}, err
	}

	if raw.Username, err = f.decrypt(userVar, raw.Username); err != nil {
		return Credentials{}, err
	}
	if raw.Password, err = f.decrypt(passVar, raw.Password); err != nil {
		return Credentials{}, err
	}
	return raw, nil
}

func (f *fetcher) Database() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	var err error

	if cfg.Driver, err = f.setting(VarDatabaseDriver); err != nil {
		return DatabaseConfig{}, err
	}
	if cfg.Host, err = f.setting(VarDatabaseHost); err != nil {
		return DatabaseConfig{}, err
	}
	if cfg.Port, err = f.port(VarDatabasePort); err != nil {
		return DatabaseConfig{}, err
	}
	if cfg.Name, err = f.setting(VarDatabaseName); err != nil {
		return DatabaseConfig{}, err
	}
	if cfg.User, err = f.secret(VarDatabaseUser); err != nil {
		return DatabaseConfig{}, err
	}
	if cfg.Password, err = f.secret(VarDatabasePassword); err != nil {
		return DatabaseConfig{}, err
	}
	cfg.Driver = strings.ToLower(cfg.Driver)
	return cfg, nil
}

func (f *fetcher) port(name string) (int, error) {
	raw, err := f.setting(name)
	if err != nil {
		return 0, err
	}
	port, convErr := strconv.Atoi(raw)
	if convErr != nil || port < 1 || port > 65535 {
		return 0, errors.NewConfigurationError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid port in environment variable %s: %q", f.name(name), raw), convErr).
			WithContext("variable", f.name(name))
	}
	return port, nil
}
