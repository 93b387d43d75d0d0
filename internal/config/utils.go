// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Template represents a configuration template
type Template struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Template    Config `json:"template" yaml:"template"`
}

// Configuration templates
var configTemplates = map[string]Template{
	"local": {
		Name:        "Local Configuration",
		Description: "Headed-capable runs on a developer machine against dev",
		Template: Config{
			Stage:               StageDev,
			AuthDir:             DefaultAuthDir,
			TestDataFile:        DefaultTestDataFile,
			LocalEnvDir:         DefaultLocalEnvDir,
			LockAttempts:        50,
			LockDelay:           100 * time.Millisecond,
			RetryMaxAttempts:    3,
			RetryInitialBackoff: 500 * time.Millisecond,
			RetryBackoffFactor:  2,
			RetryMaxBackoff:     10 * time.Second,
			NavigationTimeout:   30 * time.Second,
			ActionTimeout:       10 * time.Second,
			APITimeout:          15 * time.Second,
			LogLevel:            "info",
		},
	},
	"ci": {
		Name:        "CI Configuration",
		Description: "Conservative bounds for shared CI runners",
		Template: Config{
			Stage:               StageUAT,
			AuthDir:             DefaultAuthDir,
			TestDataFile:        DefaultTestDataFile,
			LocalEnvDir:         DefaultLocalEnvDir,
			LockAttempts:        100,
			LockDelay:           200 * time.Millisecond,
			RetryMaxAttempts:    4,
			RetryInitialBackoff: time.Second,
			RetryBackoffFactor:  2,
			RetryMaxBackoff:     20 * time.Second,
			Workers:             2,
			NavigationTimeout:   60 * time.Second,
			ActionTimeout:       20 * time.Second,
			APITimeout:          30 * time.Second,
			LogLevel:            "info",
		},
	},
	"debug": {
		Name:        "Debug Configuration",
		Description: "Single worker with verbose logging for flaky test triage",
		Template: Config{
			Stage:               StageDev,
			AuthDir:             DefaultAuthDir,
			TestDataFile:        DefaultTestDataFile,
			LocalEnvDir:         DefaultLocalEnvDir,
			LockAttempts:        50,
			LockDelay:           100 * time.Millisecond,
			RetryMaxAttempts:    1,
			RetryInitialBackoff: 500 * time.Millisecond,
			RetryBackoffFactor:  1,
			RetryMaxBackoff:     500 * time.Millisecond,
			Workers:             1,
			NavigationTimeout:   120 * time.Second,
			ActionTimeout:       60 * time.Second,
			APITimeout:          60 * time.Second,
			Debug:               true,
			LogLevel:            "debug",
		},
	},
}

// ValidateConfigFile validates a configuration file without applying the environment
func ValidateConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", configPath)
	} else if err != nil {
		return fmt.Errorf("failed to access configuration file: %w", err)
	}

	// #nosec G304 -- configPath is a controlled configuration file path, not user input
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	fileConfig := &Config{}
	if err := yaml.Unmarshal(data, fileConfig); err != nil {
		return fmt.Errorf("invalid YAML format: %w", err)
	}

	// Validate the file layered over defaults, as Load would see it
	merged := Default()
	merged.mergeConfig(fileConfig)
	merged.applyFinalDefaults()
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

// CreateConfigFromTemplate creates a configuration file from a template
func CreateConfigFromTemplate(templateName, configPath string, stage Stage) error {
	template, exists := configTemplates[templateName]
	if !exists {
		return fmt.Errorf("template '%s' not found", templateName)
	}

	config := template.Template
	if stage != "" {
		if err := stage.Validate(); err != nil {
			return err
		}
		config.Stage = stage
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := config.Save(configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	return nil
}

// ListTemplates returns the template names in sorted order
func ListTemplates() []string {
	names := make([]string, 0, len(configTemplates))
	for name := range configTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTemplate returns a specific configuration template
func GetTemplate(name string) (Template, bool) {
	template, exists := configTemplates[name]
	return template, exists
}

// Render serializes the sanitized configuration as yaml or json
func Render(config *Config, format string) ([]byte, error) {
	sanitized := config.SanitizeForLogging()

	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(sanitized)
	case "json":
		return json.MarshalIndent(sanitized, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportConfig writes the sanitized configuration to outputPath
func ExportConfig(config *Config, format, outputPath string) error {
	data, err := Render(config, format)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write exported configuration: %w", err)
	}

	return nil
}
