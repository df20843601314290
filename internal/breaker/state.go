// Package breaker implements the circuit breaker state machine that suspends
// hook commands after repeated failures.
//
// Everything in this package is pure: functions take a HookState, a Policy
// and the current time, and return a new HookState. Persistence lives in
// internal/store and process handling in internal/executor.
package breaker

import (
	"fmt"
	"time"
)

// State is the breaker position for a single command key.
type State string

const (
	// StateClosed is normal operation: the command always runs.
	StateClosed State = "closed"

	// StateOpen means the command is suspended until RetryAfter.
	StateOpen State = "open"

	// StateHalfOpen permits a trial execution to test recovery.
	StateHalfOpen State = "half_open"
)

// String returns the wire name of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateClosed, StateOpen, StateHalfOpen:
		return true
	default:
		return false
	}
}

// ParseState converts a wire name back into a State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return st, nil
}

// HookState is the persisted health record of one command key.
type HookState struct {
	// Key is the identity of the wrapped command.
	Key string `json:"key"`

	// State is the breaker position.
	State State `json:"state"`

	// FailureCount is the lifetime number of failures. Never reset by transitions.
	FailureCount int `json:"failure_count"`

	// ExecutionCount is the lifetime number of recorded executions.
	ExecutionCount int `json:"execution_count"`

	// ConsecutiveFailures and ConsecutiveSuccesses are mutually exclusive streaks.
	ConsecutiveFailures  int `json:"consecutive_failures"`
	ConsecutiveSuccesses int `json:"consecutive_successes"`

	FirstFailureAt *time.Time `json:"first_failure_at"`
	LastFailureAt  *time.Time `json:"last_failure_at"`
	LastSuccessAt  *time.Time `json:"last_success_at"`

	// LastError is the truncated message of the most recent failure.
	LastError *string `json:"last_error"`

	// DisabledAt and RetryAfter are set only while the state is open.
	DisabledAt *time.Time `json:"disabled_at"`
	RetryAfter *time.Time `json:"retry_after"`

	// ProbeStartedAt marks a half-open trial that is still running.
	ProbeStartedAt *time.Time `json:"probe_started_at,omitempty"`
}

// NewHookState returns the default closed state for key.
func NewHookState(key string) HookState {
	return HookState{Key: key, State: StateClosed}
}

// IsOpen reports whether the breaker is suspending the command.
func (h HookState) IsOpen() bool {
	return h.State == StateOpen
}

// IsZero reports whether h carries no history at all.
func (h HookState) IsZero() bool {
	return h.State == "" || (h.State == StateClosed && h.ExecutionCount == 0 && h.FailureCount == 0 &&
		h.ConsecutiveFailures == 0 && h.ConsecutiveSuccesses == 0)
}

// Equal reports whether two states carry the same values.
func (h HookState) Equal(o HookState) bool {
	return h.Key == o.Key &&
		h.State == o.State &&
		h.FailureCount == o.FailureCount &&
		h.ExecutionCount == o.ExecutionCount &&
		h.ConsecutiveFailures == o.ConsecutiveFailures &&
		h.ConsecutiveSuccesses == o.ConsecutiveSuccesses &&
		timeEqual(h.FirstFailureAt, o.FirstFailureAt) &&
		timeEqual(h.LastFailureAt, o.LastFailureAt) &&
		timeEqual(h.LastSuccessAt, o.LastSuccessAt) &&
		stringEqual(h.LastError, o.LastError) &&
		timeEqual(h.DisabledAt, o.DisabledAt) &&
		timeEqual(h.RetryAfter, o.RetryAfter) &&
		timeEqual(h.ProbeStartedAt, o.ProbeStartedAt)
}

// Validate checks the structural invariants of a persisted state.
func (h HookState) Validate() error {
	if !h.State.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownState, h.State)
	}
	if h.ConsecutiveFailures > 0 && h.ConsecutiveSuccesses > 0 {
		return ErrStreakConflict
	}
	if h.State == StateOpen {
		if h.DisabledAt == nil || h.RetryAfter == nil {
			return ErrOpenWithoutWindow
		}
		if h.RetryAfter.Before(*h.DisabledAt) {
			return ErrOpenWithoutWindow
		}
	}
	return nil
}

// Remaining returns how long an open breaker still has to wait at now.
// Zero for any other state or once the cooldown has elapsed.
func (h HookState) Remaining(now time.Time) time.Duration {
	if h.State != StateOpen || h.RetryAfter == nil {
		return 0
	}
	if d := h.RetryAfter.Sub(now); d > 0 {
		return d
	}
	return 0
}

// DisabledFor returns how long the breaker has been open at now.
func (h HookState) DisabledFor(now time.Time) time.Duration {
	if h.State != StateOpen || h.DisabledAt == nil {
		return 0
	}
	if d := now.Sub(*h.DisabledAt); d > 0 {
		return d
	}
	return 0
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func stringEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtr(t time.Time) *time.Time {
	return &t
}
