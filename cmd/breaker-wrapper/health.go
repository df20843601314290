package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/hookbreaker/internal/health"
	"github.com/boshu2/hookbreaker/internal/store"
)

var healthCmd = &cobra.Command{
	Use:   "health [key]",
	Short: "Show breaker state",
	Long: `Show the breaker state of every tracked command, disabled commands first.

Disabled commands show their failure count, last error, how long they have
been disabled and when the next probe run is allowed.

Exits non-zero when the state store cannot be read or the key is unknown.

Examples:
  breaker-wrapper health
  breaker-wrapper health "./scripts/lint.sh --fix"
  breaker-wrapper health -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}

	r, err := health.Load(openStore(cfg), cfg.StorePath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("read breaker state: %w", err)
	}

	if len(args) == 1 {
		e, ok := r.Find(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", store.ErrKeyNotFound, args[0])
		}
		r.Hooks = []health.Entry{e}
	}

	return health.Render(cmd.OutOrStdout(), r, output)
}
