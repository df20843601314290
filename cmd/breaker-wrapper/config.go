package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/boshu2/hookbreaker/internal/config"
	"github.com/boshu2/hookbreaker/internal/formatter"
)

var configShow bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `View the resolved breaker configuration.

Configuration priority (highest to lowest):
  1. Command-line flags (--store, --log-file, --timeout)
  2. Environment variables (HOOKBREAKER_*)
  3. Project config (.hookbreaker/config.yaml, or $HOOKBREAKER_CONFIG)
  4. Home config (~/.hookbreaker/config.yaml)
  5. Defaults

Config files may be .yaml, .yml, .toml or .json.

Examples:
  breaker-wrapper config --show
  breaker-wrapper config --show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
	rootCmd.AddCommand(configCmd)
}

type configOutput struct {
	Valid  bool                   `json:"valid" yaml:"valid"`
	Error  string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Fields []config.ResolvedField `json:"fields" yaml:"fields"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	cfg, src, err := config.LoadWithSources(overrides())
	if err != nil {
		return err
	}
	out := configOutput{Valid: true, Fields: config.Resolve(cfg, src)}
	validateErr := cfg.Validate()
	if validateErr != nil {
		out.Valid = false
		out.Error = validateErr.Error()
	}

	w := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(out); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		if err := printConfigTable(w, out); err != nil {
			return err
		}
	}
	return validateErr
}

func printConfigTable(w io.Writer, out configOutput) error {
	//nolint:errcheck // CLI output
	fmt.Fprintln(w, "Breaker Configuration")
	//nolint:errcheck // CLI output
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w) //nolint:errcheck // CLI output

	home, project := config.Files()
	fmt.Fprintln(w, "Config files:") //nolint:errcheck // CLI output
	for _, f := range []struct{ label, path string }{{"Home", home}, {"Project", project}} {
		if f.path == "" {
			fmt.Fprintf(w, "  ✗ %-8s (not found)\n", f.label+":") //nolint:errcheck // CLI output
			continue
		}
		fmt.Fprintf(w, "  ✓ %-8s %s\n", f.label+":", f.path) //nolint:errcheck // CLI output
	}
	fmt.Fprintln(w) //nolint:errcheck // CLI output

	tbl := formatter.NewTable(w, "SETTING", "VALUE", "SOURCE").SetMaxWidth(1, 60)
	for _, f := range out.Fields {
		tbl.AddRow(f.Name, config.FormatValue(f.Value), string(f.Source))
	}
	if err := tbl.Render(); err != nil {
		return err
	}

	var set []string
	for _, name := range config.EnvVars() {
		if v, ok := os.LookupEnv(name); ok {
			set = append(set, fmt.Sprintf("  %s=%s", name, v))
		}
	}
	if len(set) > 0 {
		fmt.Fprintln(w, "\nEnvironment variables:") //nolint:errcheck // CLI output
		for _, line := range set {
			fmt.Fprintln(w, line) //nolint:errcheck // CLI output
		}
	}

	if !out.Valid {
		fmt.Fprintf(w, "\nInvalid: %s\n", out.Error) //nolint:errcheck // CLI output
	}
	return nil
}
