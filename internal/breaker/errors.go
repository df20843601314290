package breaker

import "errors"

// Sentinel errors for persisted-state validation.
var (
	// ErrUnknownState is returned for a state name outside closed/open/half_open.
	ErrUnknownState = errors.New("unknown breaker state")

	// ErrStreakConflict is returned when both streak counters are non-zero.
	ErrStreakConflict = errors.New("consecutive failures and successes are both non-zero")

	// ErrOpenWithoutWindow is returned for an open state missing a valid cooldown window.
	ErrOpenWithoutWindow = errors.New("open state requires disabled_at <= retry_after")
)
