// Package health builds the read-only view of breaker state shown by the
// health command.
package health

import (
	"fmt"
	"sort"
	"time"

	"github.com/boshu2/hookbreaker/internal/breaker"
	"github.com/boshu2/hookbreaker/internal/store"
)

// Entry is one tracked command in the report.
type Entry struct {
	Key                  string        `json:"key" yaml:"key"`
	State                breaker.State `json:"state" yaml:"state"`
	FailureCount         int           `json:"failure_count" yaml:"failure_count"`
	ExecutionCount       int           `json:"execution_count" yaml:"execution_count"`
	ConsecutiveFailures  int           `json:"consecutive_failures" yaml:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes" yaml:"consecutive_successes"`
	LastError            string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	FirstFailureAt       *time.Time    `json:"first_failure_at,omitempty" yaml:"first_failure_at,omitempty"`
	LastFailureAt        *time.Time    `json:"last_failure_at,omitempty" yaml:"last_failure_at,omitempty"`
	LastSuccessAt        *time.Time    `json:"last_success_at,omitempty" yaml:"last_success_at,omitempty"`
	DisabledAt           *time.Time    `json:"disabled_at,omitempty" yaml:"disabled_at,omitempty"`
	RetryAfter           *time.Time    `json:"retry_after,omitempty" yaml:"retry_after,omitempty"`

	// Set only for open breakers.
	DisabledForSeconds int64 `json:"disabled_for_seconds,omitempty" yaml:"disabled_for_seconds,omitempty"`
	RetryInSeconds     int64 `json:"retry_in_seconds,omitempty" yaml:"retry_in_seconds,omitempty"`
}

// Report is the health snapshot of the whole store.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	StorePath   string            `json:"store_path" yaml:"store_path"`
	Stats       store.GlobalStats `json:"global_stats" yaml:"global_stats"`
	Hooks       []Entry           `json:"hooks" yaml:"hooks"`
}

// Open returns the entries whose breaker is open.
func (r *Report) Open() []Entry {
	var open []Entry
	for _, e := range r.Hooks {
		if e.State == breaker.StateOpen {
			open = append(open, e)
		}
	}
	return open
}

// Find returns the entry for key.
func (r *Report) Find(key string) (Entry, bool) {
	for _, e := range r.Hooks {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Build assembles a report. Open breakers sort first, then half-open, then
// closed; keys sort alphabetically within a state.
func Build(hooks map[string]breaker.HookState, stats store.GlobalStats, now time.Time) *Report {
	r := &Report{GeneratedAt: now, Stats: stats, Hooks: make([]Entry, 0, len(hooks))}
	for key, st := range hooks {
		if st.Key == "" {
			st.Key = key
		}
		r.Hooks = append(r.Hooks, newEntry(st, now))
	}
	sort.Slice(r.Hooks, func(i, j int) bool {
		a, b := r.Hooks[i], r.Hooks[j]
		if stateRank(a.State) != stateRank(b.State) {
			return stateRank(a.State) < stateRank(b.State)
		}
		return a.Key < b.Key
	})
	return r
}

// Snapshotter reads the whole store in one pass.
type Snapshotter interface {
	Snapshot() (*store.Document, error)
}

// Load reads the store once and builds a report. Errors from an unreadable
// store are returned unchanged so callers can match store.ErrStoreUnavailable.
func Load(s Snapshotter, path string, now time.Time) (*Report, error) {
	doc, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	r := Build(doc.Hooks, store.ComputeStats(doc.Hooks, doc.GlobalStats.LastUpdated), now)
	r.StorePath = path
	return r, nil
}

func newEntry(st breaker.HookState, now time.Time) Entry {
	e := Entry{
		Key:                  st.Key,
		State:                st.State,
		FailureCount:         st.FailureCount,
		ExecutionCount:       st.ExecutionCount,
		ConsecutiveFailures:  st.ConsecutiveFailures,
		ConsecutiveSuccesses: st.ConsecutiveSuccesses,
		FirstFailureAt:       st.FirstFailureAt,
		LastFailureAt:        st.LastFailureAt,
		LastSuccessAt:        st.LastSuccessAt,
		DisabledAt:           st.DisabledAt,
		RetryAfter:           st.RetryAfter,
	}
	if st.LastError != nil {
		e.LastError = *st.LastError
	}
	if st.IsOpen() {
		e.DisabledForSeconds = int64(st.DisabledFor(now) / time.Second)
		e.RetryInSeconds = int64((st.Remaining(now) + time.Second - 1) / time.Second)
	}
	return e
}

func stateRank(s breaker.State) int {
	switch s {
	case breaker.StateOpen:
		return 0
	case breaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// FormatDuration renders d compactly (e.g., "45s", "4m05s", "2h10m", "3d04h").
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%02dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}
