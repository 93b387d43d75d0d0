// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package main

// Error message constants to avoid duplication
const (
	ErrFailedToLoadConfiguration     = "failed to load configuration: %w"
	ErrConfigurationValidationFailed = "configuration validation failed: %w"
	ErrFailedToCreateConfiguration   = "failed to create configuration: %w"
	ErrFailedToExportConfiguration   = "failed to export configuration: %w"
	ErrFailedToInitializeLogger      = "failed to initialize logger: %w"
	ErrHarnessInitializationFailed   = "harness initialization failed: %w"
	ErrFailedToReadValue             = "failed to read value: %w"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// stdinArg makes encrypt, decrypt and key commands read the value from stdin
const stdinArg = "-"
