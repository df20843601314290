package breaker

import "time"

// Default policy values.
const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = 300 * time.Second
	DefaultSuccessThreshold = 2
)

// Policy is the engine's view of the configuration.
type Policy struct {
	// Enabled turns breaking on. When false every command runs untracked.
	Enabled bool

	// FailureThreshold is the consecutive failure count that opens a closed breaker.
	FailureThreshold int

	// Cooldown is the delay between opening and the next permitted probe.
	Cooldown time.Duration

	// SuccessThreshold is the consecutive success count that closes a half-open breaker.
	SuccessThreshold int

	// Excluded keys always run and are never tracked.
	Excluded map[string]struct{}

	// ProbeLease is how long a half-open probe counts as in flight.
	// Zero disables the single-probe guard.
	ProbeLease time.Duration
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:          true,
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
		SuccessThreshold: DefaultSuccessThreshold,
	}
}

// Exclude returns a copy of p with keys added to the excluded set.
func (p Policy) Exclude(keys ...string) Policy {
	excluded := make(map[string]struct{}, len(p.Excluded)+len(keys))
	for k := range p.Excluded {
		excluded[k] = struct{}{}
	}
	for _, k := range keys {
		excluded[k] = struct{}{}
	}
	p.Excluded = excluded
	return p
}

// IsExcluded reports whether key is in the excluded set.
func (p Policy) IsExcluded(key string) bool {
	_, ok := p.Excluded[key]
	return ok
}

// Tracks reports whether the engine applies to key at all.
func (p Policy) Tracks(key string) bool {
	return p.Enabled && !p.IsExcluded(key)
}

// ShouldExecute decides whether the command for st may run at now.
//
// The returned state must be persisted before executing: an open breaker
// whose cooldown has elapsed comes back half-open with a probe marker set.
func ShouldExecute(st HookState, p Policy, now time.Time) (bool, HookState) {
	if !p.Tracks(st.Key) {
		return true, st
	}

	switch st.State {
	case StateOpen:
		if st.RetryAfter != nil && now.Before(*st.RetryAfter) {
			return false, st
		}
		next := st
		next.State = StateHalfOpen
		next.ProbeStartedAt = timePtr(now)
		return true, next
	case StateHalfOpen:
		if probeInFlight(st, p, now) {
			return false, st
		}
		next := st
		next.ProbeStartedAt = timePtr(now)
		return true, next
	default:
		if st.State == "" {
			st.State = StateClosed
		}
		return true, st
	}
}

func probeInFlight(st HookState, p Policy, now time.Time) bool {
	if p.ProbeLease <= 0 || st.ProbeStartedAt == nil {
		return false
	}
	return now.Before(st.ProbeStartedAt.Add(p.ProbeLease))
}

// RecordResult folds one execution outcome into st.
func RecordResult(st HookState, success bool, errMsg string, p Policy, now time.Time) HookState {
	if !p.Tracks(st.Key) {
		return st
	}

	next := st
	if next.State == "" {
		next.State = StateClosed
	}
	next.ExecutionCount++
	next.ProbeStartedAt = nil

	if success {
		next.ConsecutiveSuccesses++
		next.ConsecutiveFailures = 0
		next.LastSuccessAt = timePtr(now)
		if next.State == StateHalfOpen && next.ConsecutiveSuccesses >= p.SuccessThreshold {
			next.State = StateClosed
			next.DisabledAt = nil
			next.RetryAfter = nil
		}
		return next
	}

	next.ConsecutiveFailures++
	next.ConsecutiveSuccesses = 0
	next.FailureCount++
	next.LastFailureAt = timePtr(now)
	if next.FirstFailureAt == nil {
		next.FirstFailureAt = timePtr(now)
	}
	msg := errMsg
	next.LastError = &msg

	switch next.State {
	case StateHalfOpen:
		trip(&next, p, now)
	case StateClosed:
		if next.ConsecutiveFailures >= p.FailureThreshold {
			trip(&next, p, now)
		}
	}
	return next
}

func trip(st *HookState, p Policy, now time.Time) {
	st.State = StateOpen
	st.DisabledAt = timePtr(now)
	st.RetryAfter = timePtr(now.Add(p.Cooldown))
}

// Reset returns the default closed state for st's key.
func Reset(st HookState) HookState {
	return NewHookState(st.Key)
}

// ForceEnable closes st immediately, bypassing the cooldown. Lifetime
// counters and timestamps are kept for the health report.
func ForceEnable(st HookState) HookState {
	next := st
	next.State = StateClosed
	next.ConsecutiveFailures = 0
	next.ConsecutiveSuccesses = 0
	next.DisabledAt = nil
	next.RetryAfter = nil
	next.ProbeStartedAt = nil
	return next
}
