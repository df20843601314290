package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/hookbreaker/internal/logging"
)

var resetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset <key> | --all",
	Short: "Clear breaker state",
	Long: `Reset a command's breaker to a fresh closed state, discarding its counters.

With --all, every command is cleared. This also repairs a corrupt state file.

Examples:
  breaker-wrapper reset "./scripts/lint.sh --fix"
  breaker-wrapper reset --all`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Reset every tracked command")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	switch {
	case resetAll && len(args) > 0:
		return errors.New("reset takes a key or --all, not both")
	case !resetAll && len(args) != 1:
		return errors.New("reset requires exactly one key, or --all")
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck // nothing to do on a failed flush

	fs := openStore(cfg)
	if resetAll {
		if err := fs.ResetAll(cmd.Context()); err != nil {
			return fmt.Errorf("reset all: %w", err)
		}
		logger.Info("admin", zap.String(logging.FieldDecision, "reset_all"))
		fmt.Fprintln(cmd.OutOrStdout(), "Reset all breakers") //nolint:errcheck // CLI output
		return nil
	}

	key := args[0]
	if err := fs.Reset(cmd.Context(), key); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	logger.Info("admin", zap.String(logging.FieldDecision, "reset"), zap.String(logging.FieldKey, key))
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", key) //nolint:errcheck // CLI output
	return nil
}
