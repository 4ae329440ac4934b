// Command restoredrill runs randomized restore drills against a backup program:
// it generates versions of a test directory, backs each one up, then restores
// every version and compares it with the recorded snapshot.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/restoredrill/internal/config"
	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/logger"
)

// Exit codes
const (
	exitOK       = 0
	exitError    = 1
	exitMismatch = 2
	exitLocked   = 3
)

var (
	argConfig   string
	argLogLevel string
	argVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "restoredrill",
	Short:         "randomized differential testing for backup and restore",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&argConfig, "config", "c", "", "configuration file (default: search ., ./configs and the user config dir)")
	rootCmd.PersistentFlags().StringVar(&argLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&argVerbose, "verbose", "v", false, "shorthand for --log-level debug")
}

// loadConfig reads the configuration and initializes the global logger.
// Callers must defer logger.Shutdown.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(argConfig)
	if err != nil {
		return nil, err
	}

	switch {
	case argVerbose:
		cfg.Log.Level = "debug"
	case argLogLevel != "":
		cfg.Log.Level = argLogLevel
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrMismatch):
		return exitMismatch
	case errors.Is(err, domain.ErrRunInProgress):
		return exitLocked
	default:
		return exitError
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, domain.ErrMismatch) {
		fmt.Fprintf(os.Stderr, "restoredrill: %v\n", err)
	}
	os.Exit(exitCode(err))
}
