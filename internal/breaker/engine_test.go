package breaker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() Policy {
	return Policy{
		Enabled:          true,
		FailureThreshold: 3,
		Cooldown:         300 * time.Second,
		SuccessThreshold: 2,
	}
}

func failN(st HookState, p Policy, n int, at time.Time) HookState {
	for i := 0; i < n; i++ {
		st = RecordResult(st, false, "exit status 1", p, at)
	}
	return st
}

func TestRecordResult_OpensAtThreshold(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name     string
		failures int
		want     State
	}{
		{"one failure stays closed", 1, StateClosed},
		{"two failures stay closed", 2, StateClosed},
		{"third failure opens", 3, StateOpen},
		{"fourth failure keeps open", 4, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := failN(NewHookState("validate"), p, tt.failures, t0)
			assert.Equal(t, tt.want, st.State)
			assert.Equal(t, tt.failures, st.FailureCount)
		})
	}
}

func TestRecordResult_OpenSetsCooldownWindow(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("validate"), p, 3, t0)

	require.Equal(t, StateOpen, st.State)
	require.NotNil(t, st.DisabledAt)
	require.NotNil(t, st.RetryAfter)
	assert.True(t, st.DisabledAt.Equal(t0))
	assert.True(t, st.RetryAfter.Equal(t0.Add(300*time.Second)))
	assert.True(t, st.RetryAfter.After(*st.DisabledAt))
	require.NotNil(t, st.LastError)
	assert.Equal(t, "exit status 1", *st.LastError)
	assert.NoError(t, st.Validate())
}

func TestShouldExecute_CooldownBoundary(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("validate"), p, 3, t0)

	ok, next := ShouldExecute(st, p, t0)
	assert.False(t, ok, "immediately after opening")
	assert.Equal(t, StateOpen, next.State)

	ok, next = ShouldExecute(st, p, t0.Add(299*time.Second))
	assert.False(t, ok, "one second before retry_after")
	assert.Equal(t, StateOpen, next.State)

	ok, next = ShouldExecute(st, p, t0.Add(300*time.Second))
	assert.True(t, ok, "at retry_after")
	assert.Equal(t, StateHalfOpen, next.State)
	require.NotNil(t, next.ProbeStartedAt)
}

func TestShouldExecute_ClosedAndHalfOpenAllow(t *testing.T) {
	p := testPolicy()

	ok, next := ShouldExecute(NewHookState("lint"), p, t0)
	assert.True(t, ok)
	assert.Equal(t, StateClosed, next.State)

	half := HookState{Key: "lint", State: StateHalfOpen}
	ok, next = ShouldExecute(half, p, t0)
	assert.True(t, ok)
	assert.Equal(t, StateHalfOpen, next.State)
}

func TestShouldExecute_ProbeLease(t *testing.T) {
	p := testPolicy()
	p.ProbeLease = 30 * time.Second
	st := failN(NewHookState("review"), p, 3, t0)

	ok, half := ShouldExecute(st, p, t0.Add(p.Cooldown))
	require.True(t, ok)

	ok, _ = ShouldExecute(half, p, t0.Add(p.Cooldown+time.Second))
	assert.False(t, ok, "second probe while the first is in flight")

	ok, again := ShouldExecute(half, p, t0.Add(p.Cooldown+31*time.Second))
	assert.True(t, ok, "lease expired, a new probe may start")
	assert.True(t, again.ProbeStartedAt.Equal(t0.Add(p.Cooldown+31*time.Second)))
}

func TestRecordResult_HalfOpenRecovery(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("review"), p, 3, t0)
	_, st = ShouldExecute(st, p, t0.Add(p.Cooldown))

	st = RecordResult(st, true, "", p, t0.Add(p.Cooldown+time.Second))
	assert.Equal(t, StateHalfOpen, st.State, "one success is below success_threshold")
	assert.Nil(t, st.ProbeStartedAt)
	assert.NotNil(t, st.RetryAfter)

	st = RecordResult(st, true, "", p, t0.Add(p.Cooldown+2*time.Second))
	assert.Equal(t, StateClosed, st.State)
	assert.Nil(t, st.DisabledAt)
	assert.Nil(t, st.RetryAfter)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 2, st.ConsecutiveSuccesses)
	assert.Equal(t, 3, st.FailureCount, "lifetime failures survive recovery")
}

func TestRecordResult_HalfOpenFailureReopens(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("review"), p, 3, t0)
	probeAt := t0.Add(p.Cooldown)
	_, st = ShouldExecute(st, p, probeAt)
	st = RecordResult(st, true, "", p, probeAt)
	require.Equal(t, StateHalfOpen, st.State)

	failAt := probeAt.Add(10 * time.Second)
	st = RecordResult(st, false, "boom", p, failAt)
	assert.Equal(t, StateOpen, st.State)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, 0, st.ConsecutiveSuccesses)
	assert.True(t, st.DisabledAt.Equal(failAt))
	assert.True(t, st.RetryAfter.Equal(failAt.Add(p.Cooldown)))
}

func TestRecordResult_SuccessKeepsClosed(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("fmt"), p, 2, t0)
	st = RecordResult(st, true, "", p, t0.Add(time.Second))

	assert.Equal(t, StateClosed, st.State)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 1, st.ConsecutiveSuccesses)
	assert.Equal(t, 3, st.ExecutionCount)
}

func TestUntrackedKeysAreLeftAlone(t *testing.T) {
	excluded := testPolicy().Exclude("classify")
	disabled := testPolicy()
	disabled.Enabled = false

	for name, p := range map[string]Policy{"excluded": excluded, "disabled": disabled} {
		t.Run(name, func(t *testing.T) {
			st := NewHookState("classify")
			st = failN(st, p, 10, t0)
			assert.Equal(t, NewHookState("classify"), st)

			open := HookState{Key: "classify", State: StateOpen, DisabledAt: &t0, RetryAfter: timePtr(t0.Add(time.Hour))}
			ok, next := ShouldExecute(open, p, t0)
			assert.True(t, ok)
			assert.Equal(t, open, next)
		})
	}
}

func TestRecordResult_StreaksMutuallyExclusive(t *testing.T) {
	p := testPolicy()
	p.ProbeLease = time.Minute
	rng := rand.New(rand.NewSource(42))

	st := NewHookState("random")
	now := t0
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.Intn(120)) * time.Second)
		ok, next := ShouldExecute(st, p, now)
		st = next
		if !ok {
			continue
		}
		st = RecordResult(st, rng.Intn(3) == 0, "failed", p, now)

		require.False(t, st.ConsecutiveFailures > 0 && st.ConsecutiveSuccesses > 0, "step %d", i)
		require.NoError(t, st.Validate(), "step %d", i)
		if st.State == StateClosed {
			require.Less(t, st.ConsecutiveFailures, p.FailureThreshold, "step %d", i)
		}
	}
}

func TestForceEnable(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("review"), p, 5, t0)
	require.Equal(t, StateOpen, st.State)

	st = ForceEnable(st)
	assert.Equal(t, StateClosed, st.State)
	assert.Nil(t, st.DisabledAt)
	assert.Nil(t, st.RetryAfter)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 5, st.FailureCount)

	ok, _ := ShouldExecute(st, p, t0)
	assert.True(t, ok)
}

func TestReset(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("review"), p, 5, t0)
	assert.Equal(t, NewHookState("review"), Reset(st))
}

func TestHookState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		st      HookState
		wantErr error
	}{
		{"default", NewHookState("a"), nil},
		{"unknown state", HookState{Key: "a", State: "melted"}, ErrUnknownState},
		{"streak conflict", HookState{Key: "a", State: StateClosed, ConsecutiveFailures: 1, ConsecutiveSuccesses: 1}, ErrStreakConflict},
		{"open without window", HookState{Key: "a", State: StateOpen}, ErrOpenWithoutWindow},
		{"open with inverted window", HookState{Key: "a", State: StateOpen, DisabledAt: timePtr(t0), RetryAfter: timePtr(t0.Add(-time.Second))}, ErrOpenWithoutWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.st.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHookState_RemainingAndDisabledFor(t *testing.T) {
	p := testPolicy()
	st := failN(NewHookState("x"), p, 3, t0)

	assert.Equal(t, 200*time.Second, st.Remaining(t0.Add(100*time.Second)))
	assert.Equal(t, 100*time.Second, st.DisabledFor(t0.Add(100*time.Second)))
	assert.Zero(t, st.Remaining(t0.Add(time.Hour)))
	assert.Zero(t, NewHookState("y").Remaining(t0))
}

func TestParseState(t *testing.T) {
	st, err := ParseState("half_open")
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, st)

	_, err = ParseState("ajar")
	assert.ErrorIs(t, err, ErrUnknownState)
}
