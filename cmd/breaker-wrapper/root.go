package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/hookbreaker/internal/config"
	"github.com/boshu2/hookbreaker/internal/logging"
	"github.com/boshu2/hookbreaker/internal/store"
)

var (
	// Global flags
	verbose   bool
	output    string
	cfgFile   string
	storePath string
	logPath   string
)

// rootCmd wraps a command when given one after "--"; otherwise it dispatches
// to the admin subcommands.
var rootCmd = &cobra.Command{
	Use:   "breaker-wrapper [flags] -- <command> [args...]",
	Short: "Circuit breaker for automation hooks",
	Long: `breaker-wrapper runs a hook command and suspends it after repeated failures.

A command that fails failure_threshold times in a row is disabled for
cooldown_seconds. While disabled, the wrapper prints a skip response and
exits 0 so the pipeline continues. After the cooldown one probe run is
allowed; success_threshold successes close the breaker again.

Wrapping:
  breaker-wrapper -- ./scripts/lint.sh --fix
  breaker-wrapper run --event post-edit -- make test

Administration:
  health       Show breaker state for every tracked command
  reset        Clear state for one command or all commands
  enable       Force a disabled command back on
  metrics      Print Prometheus metrics
  config       Show resolved configuration
  version      Show version information`,
	Args:             cobra.ArbitraryArgs,
	SilenceUsage:     true,
	SilenceErrors:    true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) { syncConfigFlagToEnv() },
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		// Only arguments after "--" name a command to wrap.
		if cmd.ArgsLenAtDash() != 0 {
			return fmt.Errorf("unknown command %q for %q (wrap commands after --)", args[0], cmd.CommandPath())
		}
		return runWrapped(cmd, args)
	},
}

// exitCodeError carries the wrapped command's exit code to Execute.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and exits with the wrapped command's code,
// or 1 on a wrapper error.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exitErr exitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err) //nolint:errcheck // last words before exit
	os.Exit(1)
}

func init() {
	bindRootFlags()
}

// bindRootFlags registers the root command's flags.
func bindRootFlags() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table, yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .hookbreaker/config.yaml, then ~/.hookbreaker/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Breaker state file (default: ~/.hookbreaker/state.json)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-file", "", "Invocation log file (default: ~/.hookbreaker/breaker.log)")

	addRunFlags(rootCmd)
	// Everything after the first positional argument belongs to the wrapped command.
	rootCmd.Flags().SetInterspersed(false)
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("HOOKBREAKER_CONFIG", path) //nolint:errcheck // best effort
}

func overrides() *config.Overrides {
	return &config.Overrides{
		StorePath:             storePath,
		LogPath:               logPath,
		CommandTimeoutSeconds: runTimeout,
	}
}

// loadAdminConfig loads and validates configuration. Admin commands treat
// invalid configuration as fatal.
func loadAdminConfig() (*config.Config, error) {
	cfg, err := config.Load(overrides())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) *store.FileStore {
	return store.NewFileStore(cfg.StorePath, store.WithLockTimeout(cfg.LockTimeout()))
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.NewOrNop(logging.Options{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Verbose:    verbose,
	})
}
