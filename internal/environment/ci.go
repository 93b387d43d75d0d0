// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

// ServiceURLs groups the base URLs of the system under test
type ServiceURLs struct {
	API    string
	Portal string
}

// DatabaseParams holds raw, possibly encrypted database variables
type DatabaseParams struct {
	Driver   string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// CIEnvironmentConfig is a read-only snapshot of the CI_-prefixed variables
// taken once when the run starts
type CIEnvironmentConfig struct {
	URLs     ServiceURLs
	Portal   Credentials
	Admin    Credentials
	Database DatabaseParams
}

// LoadCIEnvironmentConfig snapshots the CI variables through getenv
func LoadCIEnvironmentConfig(getenv func(string) string) *CIEnvironmentConfig {
	get := func(name string) string {
		return getenv(CIPrefix + name)
	}

	return &CIEnvironmentConfig{
		URLs: ServiceURLs{
			API:    get(VarAPIBaseURL),
			Portal: get(VarPortalBaseURL),
		},
		Portal: Credentials{
			Username: get(VarPortalUsername),
			Password: get(VarPortalPassword),
		},
		Admin: Credentials{
			Username: get(VarAdminUsername),
			Password: get(VarAdminPassword),
		},
		Database: DatabaseParams{
			Driver:   get(VarDatabaseDriver),
			Host:     get(VarDatabaseHost),
			Port:     get(VarDatabasePort),
			Name:     get(VarDatabaseName),
			User:     get(VarDatabaseUser),
			Password: get(VarDatabasePassword),
		},
	}
}

// Lookup returns the raw value for an unprefixed variable name
func (c *CIEnvironmentConfig) Lookup(name string) string {
	switch unqualify(name) {
	case VarAPIBaseURL:
		return c.URLs.API
	case VarPortalBaseURL:
		return c.URLs.Portal
	case VarPortalUsername:
		return c.Portal.Username
	case VarPortalPassword:
		return c.Portal.Password
	case VarAdminUsername:
		return c.Admin.Username
	case VarAdminPassword:
		return c.Admin.Password
	case VarDatabaseDriver:
		return c.Database.Driver
	case VarDatabaseHost:
		return c.Database.Host
	case VarDatabasePort:
		return c.Database.Port
	case VarDatabaseName:
		return c.Database.Name
	case VarDatabaseUser:
		return c.Database.User
	case VarDatabasePassword:
		return c.Database.Password
	default:
		return ""
	}
}

func (c *CIEnvironmentConfig) ci() bool { return true }

// CIFetcher reads variables from a CIEnvironmentConfig snapshot
type CIFetcher struct {
	fetcher
}

// NewCIFetcher creates a fetcher over cfg
func NewCIFetcher(cfg *CIEnvironmentConfig, secrets ValueResolver) *CIFetcher {
	return &CIFetcher{fetcher{src: cfg, secrets: secrets}}
}

var _ Fetcher = (*CIFetcher)(nil)
