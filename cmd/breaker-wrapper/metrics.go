package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/hookbreaker/internal/metrics"
)

var metricsTextfile string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print Prometheus metrics",
	Long: `Print breaker state in the Prometheus text exposition format.

With --textfile the metrics are written atomically to a file, for
node_exporter's textfile collector (run it from cron or a systemd timer).

Examples:
  breaker-wrapper metrics
  breaker-wrapper metrics --textfile /var/lib/node_exporter/hookbreaker.prom`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().StringVar(&metricsTextfile, "textfile", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}

	reg, err := metrics.NewRegistry(openStore(cfg), time.Now)
	if err != nil {
		return err
	}
	if metricsTextfile != "" {
		if err := metrics.WriteTextfile(metricsTextfile, reg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", metricsTextfile) //nolint:errcheck // CLI output
		return nil
	}
	return metrics.WriteText(cmd.OutOrStdout(), reg)
}
