// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package environment resolves service URLs, credentials and database
// parameters from either CI-provided variables or a local environment file,
// decrypting "enc:" values with the secret key of the active stage.
package environment

import "strings"

// Variable names as read by the local fetcher. CI runs read the same names
// with CIPrefix.
const (
	VarAPIBaseURL       = "API_BASE_URL"
	VarPortalBaseURL    = "PORTAL_BASE_URL"
	VarPortalUsername   = "PORTAL_USERNAME"
	VarPortalPassword   = "PORTAL_PASSWORD"
	VarAdminUsername    = "ADMIN_USERNAME"
	VarAdminPassword    = "ADMIN_PASSWORD"
	VarDatabaseDriver   = "DATABASE_DRIVER"
	VarDatabaseHost     = "DATABASE_HOST"
	VarDatabasePort     = "DATABASE_PORT"
	VarDatabaseName     = "DATABASE_NAME"
	VarDatabaseUser     = "DATABASE_USER"
	VarDatabasePassword = "DATABASE_PASSWORD"

	// CIPrefix is prepended to every variable name on CI runners
	CIPrefix = "CI_"

	// SecretKeyPrefix is followed by the upper-cased stage name
	SecretKeyPrefix = "SECRET_KEY_"
)

var (
	requiredNames = []string{
		VarAPIBaseURL,
		VarPortalBaseURL,
		VarPortalUsername,
		VarPortalPassword,
	}

	adminNames = []string{
		VarAdminUsername,
		VarAdminPassword,
	}

	databaseNames = []string{
		VarDatabaseDriver,
		VarDatabaseHost,
		VarDatabasePort,
		VarDatabaseName,
		VarDatabaseUser,
		VarDatabasePassword,
	}
)

// VariableName returns name as seen by the selected source
func VariableName(name string, ci bool) string {
	if ci {
		return CIPrefix + name
	}
	return name
}

// RequiredVariables lists the variables a run cannot start without
func RequiredVariables(ci bool) []string {
	return qualify(requiredNames, ci)
}

// AdminVariables lists the optional administrator credential variables
func AdminVariables(ci bool) []string {
	return qualify(adminNames, ci)
}

// DatabaseVariables lists the optional database connection variables
func DatabaseVariables(ci bool) []string {
	return qualify(databaseNames, ci)
}

func qualify(names []string, ci bool) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = VariableName(name, ci)
	}
	return out
}

// unqualify strips the CI prefix from a variable name
func unqualify(name string) string {
	return strings.TrimPrefix(name, CIPrefix)
}
