// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/lfreleng-actions/e2e-test-kit/internal/config"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
)

// LocalConstants holds the variables of a developer machine, read from
// <dir>/<stage>.yaml and overlaid with any matching process variables
type LocalConstants struct {
	APIBaseURL       string `yaml:"API_BASE_URL"`
	PortalBaseURL    string `yaml:"PORTAL_BASE_URL"`
	PortalUsername   string `yaml:"PORTAL_USERNAME"`
	PortalPassword   string `yaml:"PORTAL_PASSWORD"`
	AdminUsername    string `yaml:"ADMIN_USERNAME"`
	AdminPassword    string `yaml:"ADMIN_PASSWORD"`
	DatabaseDriver   string `yaml:"DATABASE_DRIVER"`
	DatabaseHost     string `yaml:"DATABASE_HOST"`
	DatabasePort     string `yaml:"DATABASE_PORT"`
	DatabaseName     string `yaml:"DATABASE_NAME"`
	DatabaseUser     string `yaml:"DATABASE_USER"`
	DatabasePassword string `yaml:"DATABASE_PASSWORD"`

	// Path is the file the constants were read from, empty when absent
	Path string `yaml:"-"`
}

// LocalEnvFile returns the environment file path for stage
func LocalEnvFile(dir string, stage config.Stage) string {
	return filepath.Join(dir, stage.String()+".yaml")
}

// LoadLocalConstants reads the environment file of stage. A missing file
// yields empty constants; accessors then fail naming the variable.
func LoadLocalConstants(fs afero.Fs, dir string, stage config.Stage, getenv func(string) string) (*LocalConstants, error) {
	if err := stage.Validate(); err != nil {
		return nil, err
	}

	constants := &LocalConstants{}
	path := LocalEnvFile(dir, stage)

	data, err := afero.ReadFile(fs, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, constants); err != nil {
			return nil, errors.NewConfigurationError(errors.ErrCodeConfigFileInvalid,
				fmt.Sprintf("invalid local environment file %s", path), err)
		}
		constants.Path = path
	case os.IsNotExist(err):
	default:
		return nil, errors.NewConfigurationError(errors.ErrCodeConfigFileInvalid,
			fmt.Sprintf("failed to read local environment file %s", path), err)
	}

	if getenv != nil {
		constants.overlay(getenv)
	}
	return constants, nil
}

func (l *LocalConstants) fields() map[string]*string {
	return map[string]*string{
		VarAPIBaseURL:       &l.APIBaseURL,
		VarPortalBaseURL:    &l.PortalBaseURL,
		VarPortalUsername:   &l.PortalUsername,
		VarPortalPassword:   &l.PortalPassword,
		VarAdminUsername:    &l.AdminUsername,
		VarAdminPassword:    &l.AdminPassword,
		VarDatabaseDriver:   &l.DatabaseDriver,
		VarDatabaseHost:     &l.DatabaseHost,
		VarDatabasePort:     &l.DatabasePort,
		VarDatabaseName:     &l.DatabaseName,
		VarDatabaseUser:     &l.DatabaseUser,
		VarDatabasePassword: &l.DatabasePassword,
	}
}

// overlay replaces file values with non-empty process variables
func (l *LocalConstants) overlay(getenv func(string) string) {
	for name, field := range l.fields() {
		if v := getenv(name); v != "" {
			*field = v
		}
	}
}

// Lookup returns the raw value for a variable name
func (l *LocalConstants) Lookup(name string) string {
	if field, ok := l.fields()[name]; ok {
		return *field
	}
	return ""
}

func (l *LocalConstants) ci() bool { return false }

// LocalFetcher reads variables from LocalConstants
type LocalFetcher struct {
	fetcher
}

// NewLocalFetcher creates a fetcher over constants
func NewLocalFetcher(constants *LocalConstants, secrets ValueResolver) *LocalFetcher {
	return &LocalFetcher{fetcher{src: constants, secrets: secrets}}
}

var _ Fetcher = (*LocalFetcher)(nil)
