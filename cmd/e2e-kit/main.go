// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package main provides e2e-kit, the command line companion of the test
// harness: global setup, value encryption, shared test-data and auth-state
// maintenance.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lfreleng-actions/e2e-test-kit/internal/app"
	"github.com/lfreleng-actions/e2e-test-kit/internal/config"
	"github.com/lfreleng-actions/e2e-test-kit/internal/environment"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
	"github.com/lfreleng-actions/e2e-test-kit/internal/output"
	"github.com/lfreleng-actions/e2e-test-kit/internal/secrets"
)

// Version information set at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// cli carries the process dependencies and persistent flags of one invocation
type cli struct {
	getenv func(string) string
	fs     afero.Fs
	keys   environment.KeySource

	configFile      string
	debug           bool
	logFormat       string
	logFile         string
	metricsTextfile string
}

func newCLI() *cli {
	return &cli{getenv: os.Getenv, fs: afero.NewOsFs()}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "e2e-kit",
		Short: "Environment, secret and shared test-data tooling for the e2e suite",
		Long: `e2e-kit prepares and maintains an end-to-end test run.

It resolves the run environment from CI variables or the local stage file,
decrypts enc: values with the stage secret key, resets the cached browser
session and manages the lock-guarded shared test-data file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Path to configuration file (default ./"+config.ConfigFileName+" when present)")
	flags.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&c.logFormat, "log-format", FormatJSON, "Log format (json, text)")
	flags.StringVar(&c.logFile, "log-file", "", "Also write logs to this file (ignored in CI)")
	flags.StringVar(&c.metricsTextfile, "metrics-textfile", "", "Write prometheus metrics to this file on exit")

	root.AddCommand(
		newSetupCmd(c),
		newEncryptCmd(c),
		newDecryptCmd(c),
		newDataCmd(c),
		newAuthCmd(c),
		newConfigCmd(c),
		newKeyCmd(c),
		newVersionCmd(),
	)

	root.Example = `  # Validate and resolve the environment, reset the auth state
  ENV=uat e2e-kit setup

  # Encrypt a value for the uat stage (reads the value from stdin)
  echo -n 'plainpass' | e2e-kit encrypt --stage uat -

  # Share generated ids between workers
  e2e-kit data save users user_01hx
  e2e-kit data get users

  # Inspect the effective configuration
  e2e-kit config show --format yaml`

	return root
}

// loadConfig resolves the run configuration and applies the persistent flags
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ConfigFile: c.configFile,
		Getenv:     c.getenv,
	})
	if err != nil {
		return nil, fmt.Errorf(ErrFailedToLoadConfiguration, err)
	}
	if c.metricsTextfile != "" {
		cfg.MetricsTextfile = c.metricsTextfile
	}
	if c.debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (c *cli) newLogger(cfg *config.Config, out io.Writer) (*logger.Logger, error) {
	log, err := logger.NewWithConfig(logger.Config{
		Level:              logger.ParseLevel(cfg.LogLevel),
		Debug:              cfg.Debug,
		Format:             c.logFormat,
		LogFile:            c.logFile,
		DisableFileLogging: cfg.CI,
		Output:             out,
	})
	if err != nil {
		return nil, fmt.Errorf(ErrFailedToInitializeLogger, err)
	}
	return log, nil
}

// withHarness runs fn against a fully wired Harness and closes it after
func (c *cli) withHarness(cmd *cobra.Command, fn func(*app.Harness) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	log, err := c.newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = log.Cleanup() }()

	h, err := app.New(cfg, log, app.Options{Fs: c.fs, Getenv: c.getenv, Keys: c.keys})
	if err != nil {
		return fmt.Errorf(ErrHarnessInitializationFailed, err)
	}

	runErr := fn(h)
	if closeErr := h.Close(); closeErr != nil {
		log.Warn("Harness shutdown incomplete", "error", closeErr.Error())
	}
	return runErr
}

func newSetupCmd(c *cli) *cobra.Command {
	var format string
	var github bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Run global setup: validate, resolve and decrypt the environment, reset auth state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withHarness(cmd, func(h *app.Harness) error {
				report, err := h.GlobalSetup(cmd.Context())
				if err != nil {
					return err
				}
				if github {
					gh := output.NewGitHubActions(h.Logger(), output.ConfigFromEnv(c.getenv, c.fs, cmd.OutOrStdout()))
					if err := publishSetup(gh, h, report); err != nil {
						return err
					}
				}
				if format == FormatJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Source:     %s\n", report.Source)
				fmt.Fprintf(out, "Stage:      %s\n", report.Stage)
				fmt.Fprintf(out, "API:        %s\n", report.APIBaseURL)
				fmt.Fprintf(out, "Portal:     %s\n", report.PortalBaseURL)
				fmt.Fprintf(out, "Auth state: %s\n", report.AuthStatePath)
				fmt.Fprintf(out, "Test data:  %s\n", report.TestDataFile)
				fmt.Fprintf(out, "Admin:      %t\n", report.AdminConfigured)
				fmt.Fprintf(out, "Database:   %t\n", report.DatabaseConfigured)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", FormatText, "Output format (text, json)")
	cmd.Flags().BoolVar(&github, "github", false, "Mask resolved credentials and write step outputs to GITHUB_OUTPUT")
	return cmd
}

// publishSetup masks every resolved credential before any step output is written
func publishSetup(gh *output.GitHubActions, h *app.Harness, report *app.SetupReport) error {
	resolver := h.Resolver()

	portal, err := resolver.PortalCredentials()
	if err != nil {
		return err
	}
	gh.MaskValue(portal.Username)
	gh.MaskValue(portal.Password)

	if report.AdminConfigured {
		admin, err := resolver.AdminCredentials()
		if err != nil {
			return err
		}
		gh.MaskValue(admin.Username)
		gh.MaskValue(admin.Password)
	}
	if report.DatabaseConfigured {
		db, err := resolver.Database()
		if err != nil {
			return err
		}
		gh.MaskValue(db.Password)
	}

	outputs := []struct{ name, value string }{
		{"stage", report.Stage},
		{"api_base_url", report.APIBaseURL},
		{"portal_base_url", report.PortalBaseURL},
		{"auth_state_path", report.AuthStatePath},
		{"test_data_file", report.TestDataFile},
	}
	for _, o := range outputs {
		if err := gh.SetOutput(o.name, o.value); err != nil {
			return err
		}
	}
	return nil
}

// stageResolver binds a secret resolver to the run stage or --stage
func (c *cli) stageResolver(cmd *cobra.Command, stageFlag string) (*environment.SecretResolver, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	stage := cfg.Stage
	if stageFlag != "" {
		if stage, err = config.ParseStage(stageFlag); err != nil {
			return nil, nil, err
		}
	}
	log, err := c.newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	keys := c.keys
	if keys == nil {
		keys = environment.KeySourceFor(cfg.CI, c.getenv, environment.DefaultKeyringService)
	}
	resolver := environment.NewSecretResolver(stage, keys, secrets.NewService(log))
	cleanup := func() {
		_ = resolver.Close()
		_ = log.Cleanup()
	}
	return resolver, cleanup, nil
}

func newEncryptCmd(c *cli) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "encrypt <value|->",
		Short: "Encrypt a value with the stage secret key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readValue(cmd, args[0])
			if err != nil {
				return err
			}
			resolver, cleanup, err := c.stageResolver(cmd, stage)
			if err != nil {
				return err
			}
			defer cleanup()

			envelope, err := resolver.Encrypt(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), envelope)
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Stage whose key seals the value (default: ENV)")
	return cmd
}

func newDecryptCmd(c *cli) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "decrypt <value|->",
		Short: "Decrypt an enc: value with the stage secret key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readValue(cmd, args[0])
			if err != nil {
				return err
			}
			if !secrets.IsEncrypted(value) {
				return errors.NewCredentialError(errors.ErrCodeMalformedEnvelope,
					"value is not encrypted (missing the "+secrets.Marker+" marker)", nil).WithOp("decrypt")
			}
			resolver, cleanup, err := c.stageResolver(cmd, stage)
			if err != nil {
				return err
			}
			defer cleanup()

			plaintext, err := resolver.Resolve(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Stage whose key opens the value (default: ENV)")
	return cmd
}

func newDataCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Read and append shared test data",
	}

	save := &cobra.Command{
		Use:   "save <section> <value>",
		Short: "Append a value to a section under the file lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withHarness(cmd, func(h *app.Harness) error {
				if err := h.Store().Save(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", args[1], args[0])
				return nil
			})
		},
	}

	var all bool
	get := &cobra.Command{
		Use:   "get <section>",
		Short: "Print the most recent value of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withHarness(cmd, func(h *app.Harness) error {
				if all {
					values, err := h.Store().GetAll(args[0])
					if err != nil {
						return err
					}
					for _, v := range values {
						fmt.Fprintln(cmd.OutOrStdout(), v)
					}
					return nil
				}
				value, err := h.Store().Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
	get.Flags().BoolVar(&all, "all", false, "Print every value in insertion order")

	var format string
	list := &cobra.Command{
		Use:   "list",
		Short: "List sections and their value counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withHarness(cmd, func(h *app.Harness) error {
				doc, err := h.Store().Snapshot()
				if err != nil {
					return err
				}
				if format == FormatJSON {
					return writeJSON(cmd.OutOrStdout(), doc)
				}
				names := make([]string, 0, len(doc))
				for name := range doc {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", name, len(doc[name]))
				}
				return nil
			})
		},
	}
	list.Flags().StringVarP(&format, "format", "f", FormatText, "Output format (text, json)")

	cmd.AddCommand(save, get, list)
	return cmd
}

func newAuthCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect or reset the cached browser session",
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the auth-state file of this run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withHarness(cmd, func(h *app.Harness) error {
				fmt.Fprintln(cmd.OutOrStdout(), h.AuthState().ResolveAuthStateFilePath())
				return nil
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the auth-state file with an empty session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withHarness(cmd, func(h *app.Harness) error {
				if err := h.AuthState().InitializeEmptyAuthStateFile(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", h.AuthState().ResolveAuthStateFilePath())
				return nil
			})
		},
	}

	cmd.AddCommand(path, reset)
	return cmd
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			data, err := config.Render(cfg, format)
			if err != nil {
				return fmt.Errorf(ErrFailedToExportConfiguration, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringVarP(&format, "format", "f", FormatYAML, "Output format (yaml, json)")

	validate := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := config.ConfigFileName
			if c.configFile != "" {
				configFile = c.configFile
			}
			if len(args) > 0 {
				configFile = args[0]
			}
			if err := config.ValidateConfigFile(configFile); err != nil {
				return fmt.Errorf(ErrConfigurationValidationFailed, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file %s is valid\n", configFile)
			return nil
		},
	}

	var output, stage string
	initCmd := &cobra.Command{
		Use:   "init [template]",
		Short: "Create a configuration file from a template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template := "local"
			if len(args) > 0 {
				template = args[0]
			}
			if err := config.CreateConfigFromTemplate(template, output, config.Stage(strings.ToLower(stage))); err != nil {
				return fmt.Errorf(ErrFailedToCreateConfiguration, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration created at %s using template '%s'\n", output, template)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", config.ConfigFileName, "Output path for configuration file")
	initCmd.Flags().StringVar(&stage, "stage", "", "Stage to write into the file")

	templates := &cobra.Command{
		Use:   "templates",
		Short: "List configuration templates",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range config.ListTemplates() {
				template, _ := config.GetTemplate(name)
				fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %s\n", name, template.Description)
			}
		},
	}

	cmd.AddCommand(show, validate, initCmd, templates)
	return cmd
}

func newKeyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage local stage secret keys in the OS keyring",
	}

	var service string
	store := &cobra.Command{
		Use:   "store <stage> <key|->",
		Short: "Store the secret key of a stage in the OS keyring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := config.ParseStage(args[0])
			if err != nil {
				return err
			}
			key, err := readValue(cmd, args[1])
			if err != nil {
				return err
			}
			if err := (environment.KeyringKeySource{Service: service}).StoreInKeyring(stage, key); err != nil {
				return err
			}
			variable, _ := environment.SecretKeyVariable(stage)
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in keyring service %s\n", variable, service)
			return nil
		},
	}
	store.Flags().StringVar(&service, "service", environment.DefaultKeyringService, "Keyring service name")

	cmd.AddCommand(store)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version := GetVersion()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "e2e-kit\n")
			fmt.Fprintf(out, "Version: %s\n", version["version"])
			fmt.Fprintf(out, "Build Time: %s\n", version["build_time"])
			fmt.Fprintf(out, "Git Commit: %s\n", version["git_commit"])
			fmt.Fprintf(out, "Go: %s (%s)\n", version["go_version"], version["platform"])
		},
	}
}

// readValue returns arg, or the first line of stdin when arg is "-"
func readValue(cmd *cobra.Command, arg string) (string, error) {
	if arg != stdinArg {
		return arg, nil
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf(ErrFailedToReadValue, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// GetVersion returns version information
func GetVersion() map[string]string {
	return app.GetVersionInfo(Version, BuildTime, GitCommit)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(newCLI()).ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.FormatErrorForUser(err))
		os.Exit(1)
	}
}
