package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/hookbreaker/internal/logging"
)

var enableForce bool

var enableCmd = &cobra.Command{
	Use:   "enable <key> --force",
	Short: "Force a disabled command back on",
	Long: `Close a command's breaker immediately, skipping the remaining cooldown.

This is an operator override, recorded in the log as such. Lifetime failure
counts are kept. --force is required.

Example:
  breaker-wrapper enable "./scripts/lint.sh --fix" --force`,
	Args: cobra.ExactArgs(1),
	RunE: runEnable,
}

func init() {
	enableCmd.Flags().BoolVar(&enableForce, "force", false, "Confirm the override")
	rootCmd.AddCommand(enableCmd)
}

func runEnable(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !enableForce {
		return fmt.Errorf("refusing to enable %q without --force", key)
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck // nothing to do on a failed flush

	st, err := openStore(cfg).ForceEnable(cmd.Context(), key)
	if err != nil {
		return fmt.Errorf("enable: %w", err)
	}
	logger.Info("admin",
		zap.String(logging.FieldDecision, "operator_override"),
		zap.String(logging.FieldKey, key),
		zap.String(logging.FieldState, st.State.String()),
		zap.Int("failure_count", st.FailureCount),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Enabled %s (%d lifetime failures)\n", key, st.FailureCount) //nolint:errcheck // CLI output
	return nil
}
