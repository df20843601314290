package health

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/hookbreaker/internal/formatter"
)

// Output formats accepted by Render.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// lastErrorWidth keeps the table readable on an 120-column terminal.
const lastErrorWidth = 60

// Render writes r to w in format. Unknown formats fall back to the table.
func Render(w io.Writer, r *Report, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close() //nolint:errcheck // flush error surfaces through Encode
		return enc.Encode(r)
	default:
		return renderTable(w, r)
	}
}

func renderTable(w io.Writer, r *Report) error {
	s := r.Stats
	//nolint:errcheck // CLI output
	fmt.Fprintf(w, "Breaker health: %d tracked, %d disabled, %d executions, %d failures\n",
		s.HooksTracked, s.HooksDisabled, s.TotalExecutions, s.TotalFailures)
	if r.StorePath != "" {
		fmt.Fprintf(w, "Store: %s\n", r.StorePath) //nolint:errcheck // CLI output
	}
	if len(r.Hooks) == 0 {
		_, err := fmt.Fprintln(w, "\nNo hooks tracked")
		return err
	}
	fmt.Fprintln(w) //nolint:errcheck // CLI output

	tbl := formatter.NewTable(w, "KEY", "STATE", "FAILURES", "STREAK", "DISABLED FOR", "RETRY IN", "LAST ERROR").
		SetMaxWidth(0, 40).
		SetMaxWidth(6, lastErrorWidth)
	for _, e := range r.Hooks {
		tbl.AddRow(
			e.Key,
			e.State.String(),
			strconv.Itoa(e.FailureCount),
			streak(e),
			openDuration(e, e.DisabledForSeconds),
			openDuration(e, e.RetryInSeconds),
			e.LastError,
		)
	}
	return tbl.Render()
}

func streak(e Entry) string {
	switch {
	case e.ConsecutiveFailures > 0:
		return fmt.Sprintf("%d fail", e.ConsecutiveFailures)
	case e.ConsecutiveSuccesses > 0:
		return fmt.Sprintf("%d ok", e.ConsecutiveSuccesses)
	default:
		return "-"
	}
}

func openDuration(e Entry, seconds int64) string {
	if e.DisabledAt == nil || e.RetryAfter == nil {
		return "-"
	}
	return FormatDuration(time.Duration(seconds) * time.Second)
}
