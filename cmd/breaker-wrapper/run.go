package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boshu2/hookbreaker/internal/config"
	"github.com/boshu2/hookbreaker/internal/executor"
)

var (
	runEvent   string
	runTimeout int
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run a command behind the breaker",
	Long: `Run a hook command, tracking its failures.

The command's own exit code is passed through. When the breaker for the
command is open, the command is not run; instead this is printed and the
wrapper exits 0:

  {"result":"continue","message":"command disabled due to repeated failures"}

If the breaker state cannot be read or written, the command runs anyway.

Examples:
  breaker-wrapper run -- ./scripts/validate.sh
  breaker-wrapper run --event pre-commit --timeout 60 -- make lint`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWrapped,
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runEvent, "event", "", "Trigger event name recorded in the log")
	cmd.Flags().IntVar(&runTimeout, "timeout", 0, "Command timeout in seconds (default: command_timeout_seconds)")
}

func runWrapped(cmd *cobra.Command, args []string) error {
	cfg, cfgErr := config.LoadLenient(overrides())
	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck // nothing to do on a failed flush
	if cfgErr != nil {
		logger.Warn("invalid configuration, using built-in breaker policy", zap.Error(cfgErr))
	}

	runner := &executor.ProcessRunner{
		Stdin:   cmd.InOrStdin(),
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
		Timeout: cfg.CommandTimeout(),
	}
	ex := executor.New(openStore(cfg), runner, cfg.Policy(),
		executor.WithLogger(logger),
		executor.WithOutput(cmd.OutOrStdout()),
		executor.WithMaxErrorLength(cfg.MaxErrorLength),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := ex.Execute(ctx, executor.Invocation{Argv: args, Event: runEvent})
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return exitCodeError{code: out.ExitCode}
	}
	return nil
}
