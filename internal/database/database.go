// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package database opens the application database from resolved connection
// parameters so tests can assert on persisted state.
package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"

	"github.com/lfreleng-actions/e2e-test-kit/internal/environment"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
	"github.com/lfreleng-actions/e2e-test-kit/internal/retry"
)

// Supported driver names as they appear in DATABASE_DRIVER
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// driverNames maps DATABASE_DRIVER values onto registered sql drivers
var driverNames = map[string]string{
	DriverPostgres: "pgx",
	"postgresql":   "pgx",
	DriverMySQL:    "mysql",
	"mariadb":      "mysql",
}

// Client is a read-mostly handle on the application database
type Client struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// DriverName returns the registered sql driver for a DATABASE_DRIVER value
func DriverName(driver string) (string, error) {
	name, ok := driverNames[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return "", errors.NewConfigurationError(errors.ErrCodeUnsupportedDatabase,
			fmt.Sprintf("unsupported database driver %q", driver), nil).
			WithSuggestions("Set DATABASE_DRIVER to postgres or mysql")
	}
	return name, nil
}

// DSN builds the driver-specific connection string
func DSN(cfg environment.DatabaseConfig) (string, error) {
	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return "", err
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	switch driver {
	case "pgx":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   addr,
			Path:   "/" + cfg.Name,
		}
		return u.String(), nil
	default:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = cfg.Name
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	}
}

// Open connects and pings under the retry policy
func Open(ctx context.Context, cfg environment.DatabaseConfig, policy retry.Policy, log *logger.Logger) (*Client, error) {
	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidConfig, "failed to open database handle", err).
			WithOp("database.Open")
	}

	client := NewClient(db, log)
	if err := client.Ping(ctx, policy); err != nil {
		_ = db.Close()
		return nil, err
	}

	client.logger.Info("Database connected", "driver", cfg.Driver, "host", cfg.Host, "database", cfg.Name)
	return client, nil
}

// NewClient wraps an existing handle
func NewClient(db *sqlx.DB, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Client{db: db, logger: log}
}

// Ping checks connectivity, retrying transient failures
func (c *Client) Ping(ctx context.Context, policy retry.Policy) error {
	if policy.Logger == nil {
		policy.Logger = c.logger
	}
	return retry.Do(ctx, policy, "database ping", func(ctx context.Context) error {
		if err := c.db.PingContext(ctx); err != nil {
			return errors.NewAutomationError(errors.ErrCodeDatabaseError, "database ping failed", err).
				WithOp("Ping")
		}
		return nil
	})
}

// LatestID runs query, which must select a single column, and returns the
// first row as a string
func (c *Client) LatestID(ctx context.Context, query string, args ...interface{}) (string, error) {
	var id string
	if err := c.db.GetContext(ctx, &id, query, args...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", errors.New(errors.ErrCodeDataNotFound, "query returned no rows").WithOp("LatestID")
		}
		return "", errors.NewAutomationError(errors.ErrCodeDatabaseError, "query failed", err).
			WithOp("LatestID").
			WithRecoverable(false)
	}
	return id, nil
}

// Select runs query and scans every row into dest, a pointer to a slice
func (c *Client) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := c.db.SelectContext(ctx, dest, query, args...); err != nil {
		return errors.NewAutomationError(errors.ErrCodeDatabaseError, "query failed", err).
			WithOp("Select").
			WithRecoverable(false)
	}
	return nil
}

// Close releases the connection pool
func (c *Client) Close() error {
	return c.db.Close()
}
