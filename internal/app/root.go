package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/clickcheck/internal/logger"
)

var (
	dbPath     string
	configPath string
	verbose    bool

	// RootCmd is the root command for clickcheck
	RootCmd = &cobra.Command{
		Use:   "clickcheck",
		Short: "Check installed click packages for updates",
		Long: `clickcheck asks the click catalog which installed packages have newer
revisions and acquires a signed download token for each available update.

Credentials are read from ~/.config/clickcheck/credentials.yaml. Without them
updates are still listed, but no download tokens can be obtained.

Quick Start:
  1. clickcheck status
  2. clickcheck check
  3. clickcheck watch --daemon  # re-check once a day

Examples:
  # Check every installed package
  clickcheck check

  # Check a single package and print JSON
  clickcheck check com.example.app -o json

  # Show the last results and whether a check is due
  clickcheck status`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := ""
			if verbose {
				level = "debug"
			}
			return setupLogger(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/clickcheck/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.clickcheck/clickcheck.db)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(watchCmd)
}

// ExitError makes the process exit with Code after printing Err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command
func Execute() error {
	defer logger.Logger().Sync() //nolint:errcheck
	return RootCmd.Execute()
}

func setupLogger(level string) error {
	z, err := logger.New(level)
	if err != nil {
		return err
	}
	logger.Init(z.Sugar())
	return nil
}

// getDBPath returns the database path: the --db flag, then the configured
// path, then ~/.clickcheck/clickcheck.db.
func getDBPath(configured string) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if configured != "" {
		return configured, nil
	}

	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "clickcheck.db"), nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.pid"), nil
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.log"), nil
}

// dataDir returns ~/.clickcheck, creating it if needed.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".clickcheck")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create clickcheck directory: %w", err)
	}
	return dir, nil
}
