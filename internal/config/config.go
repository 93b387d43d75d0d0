// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package config provides the run configuration of the test kit. It is
// resolved exactly once at process start (stage, CI detection, paths and
// retry bounds) and then passed explicitly to every component; nothing reads
// ambient process state after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
)

// Constants for repeated strings
const (
	sourceEnvironment = "environment"
	sourceFile        = "file"
	trueString        = "true"
)

// Stage selects the secret key and the base URLs used for a run
type Stage string

// Supported stages
const (
	StageDev  Stage = "dev"
	StageUAT  Stage = "uat"
	StageProd Stage = "prod"
)

// Stages lists every supported stage in promotion order
func Stages() []Stage {
	return []Stage{StageDev, StageUAT, StageProd}
}

// ParseStage converts an ENV value into a Stage
func ParseStage(value string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	if err := stage.Validate(); err != nil {
		return "", err
	}
	return stage, nil
}

// Validate fails with a configuration error naming the invalid stage
func (s Stage) Validate() error {
	switch s {
	case StageDev, StageUAT, StageProd:
		return nil
	default:
		return errors.NewConfigurationError(errors.ErrCodeInvalidStage,
			fmt.Sprintf("invalid stage %q: must be one of dev, uat, prod", string(s)), nil).
			WithContext("stage", string(s))
	}
}

// String implements fmt.Stringer
func (s Stage) String() string {
	return string(s)
}

// Configuration file constants
const (
	ConfigFileName      = "e2e-kit.yaml"
	DefaultAuthDir      = ".auth"
	DefaultTestDataFile = "test-data/test-data.json"
	DefaultLocalEnvDir  = "envs"
)

// Config holds the resolved configuration of one test run
type Config struct {
	Stage Stage `json:"stage" yaml:"stage"`
	CI    bool  `json:"ci" yaml:"ci"`

	// File locations
	AuthDir      string `json:"auth_dir" yaml:"auth_dir"`
	TestDataFile string `json:"test_data_file" yaml:"test_data_file"`
	LocalEnvDir  string `json:"local_env_dir" yaml:"local_env_dir"`

	// Lock bounds for the shared test-data store
	LockAttempts int           `json:"lock_attempts" yaml:"lock_attempts"`
	LockDelay    time.Duration `json:"lock_delay" yaml:"lock_delay"`

	// Retry policy for navigation, element actions and API waits
	RetryMaxAttempts    int           `json:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `json:"retry_initial_backoff" yaml:"retry_initial_backoff"`
	RetryBackoffFactor  float64       `json:"retry_backoff_factor" yaml:"retry_backoff_factor"`
	RetryMaxBackoff     time.Duration `json:"retry_max_backoff" yaml:"retry_max_backoff"`

	// Automation bounds
	Workers           int           `json:"workers" yaml:"workers"`
	Headless          bool          `json:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `json:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `json:"action_timeout" yaml:"action_timeout"`
	APITimeout        time.Duration `json:"api_timeout" yaml:"api_timeout"`

	// Operational settings
	Debug           bool   `json:"debug" yaml:"debug"`
	LogLevel        string `json:"log_level" yaml:"log_level"`
	MetricsTextfile string `json:"metrics_textfile" yaml:"metrics_textfile"`

	// Internal state
	ConfigSource string    `json:"-" yaml:"-"`
	ConfigFile   string    `json:"-" yaml:"-"`
	LoadTime     time.Time `json:"-" yaml:"-"`
}

// LoadOptions provides options for loading configuration
type LoadOptions struct {
	ConfigFile   string
	IgnoreEnv    bool
	IgnoreFiles  bool
	ValidateOnly bool
	// Getenv replaces os.Getenv; tests inject a map-backed lookup
	Getenv func(string) string
}

// Load creates and validates configuration from the environment and the
// optional e2e-kit.yaml in the working directory
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// Default returns the configuration before any file or environment input
func Default() *Config {
	return &Config{
		Stage:               StageDev,
		AuthDir:             DefaultAuthDir,
		TestDataFile:        DefaultTestDataFile,
		LocalEnvDir:         DefaultLocalEnvDir,
		LockAttempts:        50,
		LockDelay:           100 * time.Millisecond,
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 500 * time.Millisecond,
		RetryBackoffFactor:  2.0,
		RetryMaxBackoff:     10 * time.Second,
		Headless:            true,
		NavigationTimeout:   30 * time.Second,
		ActionTimeout:       10 * time.Second,
		APITimeout:          15 * time.Second,
		LogLevel:            "info",
		LoadTime:            time.Now(),
		ConfigSource:        "defaults",
	}
}

// LoadWithOptions creates and validates configuration with specific options.
// Precedence: defaults < file < environment.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	config := Default()

	if !opts.IgnoreFiles {
		if err := config.loadFromFile(opts.ConfigFile); err != nil {
			return nil, errors.NewConfigurationError(errors.ErrCodeConfigFileInvalid,
				"failed to load configuration file", err)
		}
	}

	if !opts.IgnoreEnv {
		config.CI = detectCI(getenv)
		if err := config.loadFromEnvironment(getenv); err != nil {
			return nil, err
		}
	}

	config.applyFinalDefaults()

	if opts.ValidateOnly {
		return config, nil
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// detectCI evaluates the CI predicate once for the whole run
func detectCI(getenv func(string) string) bool {
	if v := strings.ToLower(getenv("CI")); v == trueString || v == "1" {
		return true
	}
	for _, name := range []string{"GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE", "TF_BUILD"} {
		if getenv(name) != "" {
			return true
		}
	}
	return false
}

// loadFromEnvironment loads configuration from environment variables
func (c *Config) loadFromEnvironment(getenv func(string) string) error {
	if env := getenv("ENV"); env != "" {
		stage, err := ParseStage(env)
		if err != nil {
			return err
		}
		c.Stage = stage
		c.ConfigSource = sourceEnvironment
	}

	c.loadPathsFromEnvironment(getenv)
	if err := c.loadBoundsFromEnvironment(getenv); err != nil {
		return err
	}
	c.loadOperationalSettingsFromEnvironment(getenv)
	return nil
}

// loadPathsFromEnvironment loads file locations
func (c *Config) loadPathsFromEnvironment(getenv func(string) string) {
	if v := getenv("E2E_AUTH_DIR"); v != "" {
		c.AuthDir = v
	}
	if v := getenv("E2E_TEST_DATA_FILE"); v != "" {
		c.TestDataFile = v
	}
	if v := getenv("E2E_LOCAL_ENV_DIR"); v != "" {
		c.LocalEnvDir = v
	}
	if v := getenv("E2E_METRICS_TEXTFILE"); v != "" {
		c.MetricsTextfile = v
	}
}

// loadBoundsFromEnvironment loads lock, retry and timeout bounds. A set but
// unusable value is a configuration error naming the variable.
func (c *Config) loadBoundsFromEnvironment(getenv func(string) string) error {
	ints := []struct {
		name   string
		target *int
	}{
		{"E2E_LOCK_ATTEMPTS", &c.LockAttempts},
		{"E2E_RETRY_MAX_ATTEMPTS", &c.RetryMaxAttempts},
		{"E2E_WORKERS", &c.Workers},
	}
	for _, v := range ints {
		if err := setPositiveInt(v.name, getenv(v.name), v.target); err != nil {
			return err
		}
	}

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"E2E_LOCK_DELAY", &c.LockDelay},
		{"E2E_RETRY_INITIAL_BACKOFF", &c.RetryInitialBackoff},
		{"E2E_RETRY_MAX_BACKOFF", &c.RetryMaxBackoff},
		{"E2E_NAVIGATION_TIMEOUT", &c.NavigationTimeout},
		{"E2E_ACTION_TIMEOUT", &c.ActionTimeout},
		{"E2E_API_TIMEOUT", &c.APITimeout},
	}
	for _, v := range durations {
		if err := setPositiveDuration(v.name, getenv(v.name), v.target); err != nil {
			return err
		}
	}

	if v := getenv("E2E_RETRY_BACKOFF_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 1 {
			return invalidEnvValue("E2E_RETRY_BACKOFF_FACTOR", v, "a number >= 1", err)
		}
		c.RetryBackoffFactor = f
	}
	if v := getenv("E2E_HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return invalidEnvValue("E2E_HEADLESS", v, "true or false", err)
		}
		c.Headless = headless
	}
	return nil
}

// loadOperationalSettingsFromEnvironment loads debug and log settings
func (c *Config) loadOperationalSettingsFromEnvironment(getenv func(string) string) {
	if debug := getenv("DEBUG"); debug == trueString || getenv("RUNNER_DEBUG") == "1" {
		c.Debug = true
		c.LogLevel = "debug"
	}
	if logLevel := getenv("E2E_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
}

func setPositiveInt(name, value string, target *int) error {
	if value == "" {
		return nil
	}
	v, err := strconv.Atoi(value)
	if err != nil || v <= 0 {
		return invalidEnvValue(name, value, "a positive integer", err)
	}
	*target = v
	return nil
}

func setPositiveDuration(name, value string, target *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return invalidEnvValue(name, value, "a positive duration such as 250ms", err)
	}
	*target = d
	return nil
}

func invalidEnvValue(name, value, want string, cause error) error {
	return errors.NewConfigurationError(errors.ErrCodeInvalidConfig,
		fmt.Sprintf("invalid value %q for %s: want %s", value, name, want), cause).
		WithContext("variable", name)
}

// loadFromFile loads configuration from a YAML file
func (c *Config) loadFromFile(configFile string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ConfigFileName
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if configFile != "" {
			return fmt.Errorf("config file %s does not exist", configFile)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	fileConfig := &Config{}
	if err := yaml.Unmarshal(data, fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	c.mergeConfig(fileConfig)
	c.ConfigSource = sourceFile
	c.ConfigFile = configPath
	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = ConfigFileName
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// CI is detected per run and never persisted
	saveConfig := *c
	saveConfig.CI = false

	data, err := yaml.Marshal(&saveConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyFinalDefaults applies defaults that depend on other resolved values
func (c *Config) applyFinalDefaults() {
	if c.Stage == "" {
		c.Stage = StageDev
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers(c.CI)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// defaultWorkers keeps CI runners conservative and uses half the cores locally
func defaultWorkers(ci bool) int {
	if ci {
		return 2
	}
	if n := runtime.NumCPU() / 2; n > 1 {
		return n
	}
	return 1
}

// mergeConfig merges another config into this one (other config has higher precedence)
func (c *Config) mergeConfig(other *Config) {
	if other == nil {
		return
	}

	if other.Stage != "" {
		c.Stage = other.Stage
	}
	if other.AuthDir != "" {
		c.AuthDir = other.AuthDir
	}
	if other.TestDataFile != "" {
		c.TestDataFile = other.TestDataFile
	}
	if other.LocalEnvDir != "" {
		c.LocalEnvDir = other.LocalEnvDir
	}
	if other.LockAttempts != 0 {
		c.LockAttempts = other.LockAttempts
	}
	if other.LockDelay != 0 {
		c.LockDelay = other.LockDelay
	}
	if other.RetryMaxAttempts != 0 {
		c.RetryMaxAttempts = other.RetryMaxAttempts
	}
	if other.RetryInitialBackoff != 0 {
		c.RetryInitialBackoff = other.RetryInitialBackoff
	}
	if other.RetryBackoffFactor != 0 {
		c.RetryBackoffFactor = other.RetryBackoffFactor
	}
	if other.RetryMaxBackoff != 0 {
		c.RetryMaxBackoff = other.RetryMaxBackoff
	}
	if other.Workers != 0 {
		c.Workers = other.Workers
	}
	if other.NavigationTimeout != 0 {
		c.NavigationTimeout = other.NavigationTimeout
	}
	if other.ActionTimeout != 0 {
		c.ActionTimeout = other.ActionTimeout
	}
	if other.APITimeout != 0 {
		c.APITimeout = other.APITimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MetricsTextfile != "" {
		c.MetricsTextfile = other.MetricsTextfile
	}
	if other.Debug {
		c.Debug = true
	}
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Stage.Validate(); err != nil {
		return err
	}

	var problems []string
	if c.AuthDir == "" {
		problems = append(problems, "auth_dir is required")
	}
	if c.TestDataFile == "" {
		problems = append(problems, "test_data_file is required")
	}
	if c.LockAttempts <= 0 {
		problems = append(problems, "lock_attempts must be positive")
	}
	if c.LockDelay <= 0 {
		problems = append(problems, "lock_delay must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		problems = append(problems, "retry_max_attempts must be positive")
	}
	if c.RetryInitialBackoff <= 0 {
		problems = append(problems, "retry_initial_backoff must be positive")
	}
	if c.RetryBackoffFactor < 1 {
		problems = append(problems, "retry_backoff_factor must be at least 1")
	}
	if c.RetryMaxBackoff < c.RetryInitialBackoff {
		problems = append(problems, "retry_max_backoff must not be below retry_initial_backoff")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.NavigationTimeout <= 0 || c.ActionTimeout <= 0 || c.APITimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if err := validateLogLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.NewConfigurationError(errors.ErrCodeConfigValidation,
			"configuration validation failed: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// validateLogLevel validates the log level setting
func validateLogLevel(level string) error {
	validLogLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, l := range validLogLevels {
		if level == l {
			return nil
		}
	}
	return fmt.Errorf("invalid log_level %q: must be one of %v", level, validLogLevels)
}

// LockDir returns the sibling directory used as the test-data lock token
func (c *Config) LockDir() string {
	return c.TestDataFile + ".lock"
}

// Source names the variable source selected for the run
func (c *Config) Source() string {
	if c.CI {
		return "ci"
	}
	return "local"
}

// SanitizeForLogging returns a version of the config safe for logging
func (c *Config) SanitizeForLogging() map[string]interface{} {
	return map[string]interface{}{
		"stage":                 c.Stage.String(),
		"ci":                    c.CI,
		"auth_dir":              c.AuthDir,
		"test_data_file":        c.TestDataFile,
		"local_env_dir":         c.LocalEnvDir,
		"lock_attempts":         c.LockAttempts,
		"lock_delay":            c.LockDelay.String(),
		"retry_max_attempts":    c.RetryMaxAttempts,
		"retry_initial_backoff": c.RetryInitialBackoff.String(),
		"retry_backoff_factor":  c.RetryBackoffFactor,
		"retry_max_backoff":     c.RetryMaxBackoff.String(),
		"workers":               c.Workers,
		"headless":              c.Headless,
		"navigation_timeout":    c.NavigationTimeout.String(),
		"action_timeout":        c.ActionTimeout.String(),
		"api_timeout":           c.APITimeout.String(),
		"debug":                 c.Debug,
		"log_level":             c.LogLevel,
		"metrics_textfile":      c.MetricsTextfile,
		"config_source":         c.ConfigSource,
		"config_file":           c.ConfigFile,
		"load_time":             c.LoadTime.Format(time.RFC3339),
	}
}
