// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package fixtures provides dummy keys, credentials and environment blocks for
// tests. Nothing in this package is a real credential.
package fixtures

import "strings"

// DummyPrefix marks every fixture value so a real secret is recognizable by absence
const DummyPrefix = "dummy_"

// Stage secret keys - THESE ARE NOT REAL KEYS
const (
	DummyKeyDev  = DummyPrefix + "dev-stage-key"
	DummyKeyUAT  = DummyPrefix + "uat-stage-key"
	DummyKeyProd = DummyPrefix + "prod-stage-key"
)

// Dummy credentials and endpoints
const (
	PortalUsername = "qa-automation-user"
	PortalPassword = "plainpass"
	AdminUsername  = "qa-admin"
	AdminPassword  = DummyPrefix + "admin-password"

	APIBaseURL    = "https://api.example.test"
	PortalBaseURL = "https://portal.example.test"

	DatabaseDriver   = "postgres"
	DatabaseHost     = "db.example.test"
	DatabasePort     = "5432"
	DatabaseName     = "e2e"
	DatabaseUser     = "e2e_reader"
	DatabasePassword = DummyPrefix + "db-password"
)

// LongDummyValue exceeds typical field lengths for boundary tests
var LongDummyValue = DummyPrefix + strings.Repeat("z", 2048)

// SecretKeys returns the dummy key for every stage keyed by variable name
func SecretKeys() map[string]string {
	return map[string]string{
		"SECRET_KEY_DEV":  DummyKeyDev,
		"SECRET_KEY_UAT":  DummyKeyUAT,
		"SECRET_KEY_PROD": DummyKeyProd,
	}
}

// LocalEnvironment returns a complete set of local variables
func LocalEnvironment() map[string]string {
	return map[string]string{
		"API_BASE_URL":      APIBaseURL,
		"PORTAL_BASE_URL":   PortalBaseURL,
		"PORTAL_USERNAME":   PortalUsername,
		"PORTAL_PASSWORD":   PortalPassword,
		"ADMIN_USERNAME":    AdminUsername,
		"ADMIN_PASSWORD":    AdminPassword,
		"DATABASE_DRIVER":   DatabaseDriver,
		"DATABASE_HOST":     DatabaseHost,
		"DATABASE_PORT":     DatabasePort,
		"DATABASE_NAME":     DatabaseName,
		"DATABASE_USER":     DatabaseUser,
		"DATABASE_PASSWORD": DatabasePassword,
	}
}

// CIEnvironment returns LocalEnvironment with every name CI_-prefixed, plus
// the CI marker and stage keys
func CIEnvironment() map[string]string {
	env := map[string]string{"CI": "true"}
	for name, value := range LocalEnvironment() {
		env["CI_"+name] = value
	}
	for name, value := range SecretKeys() {
		env[name] = value
	}
	return env
}

// Getenv adapts a map to an os.Getenv-shaped lookup
func Getenv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

// IsDummy reports whether value is fixture data
func IsDummy(value string) bool {
	return strings.HasPrefix(value, DummyPrefix)
}
