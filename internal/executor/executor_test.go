package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/hookbreaker/internal/breaker"
	"github.com/boshu2/hookbreaker/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedRunner returns the queued exit codes in order, then zeros.
type scriptedRunner struct {
	codes []int
	calls [][]string
}

func (r *scriptedRunner) Run(_ context.Context, argv []string) Result {
	r.calls = append(r.calls, argv)
	code := 0
	if len(r.codes) > 0 {
		code, r.codes = r.codes[0], r.codes[1:]
	}
	res := Result{ExitCode: code, Elapsed: time.Millisecond}
	if code != 0 {
		res.Stderr = "lint failed\n"
	}
	return res
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingStore struct{ err error }

func (s failingStore) Update(context.Context, string, store.UpdateFunc) (breaker.HookState, error) {
	return breaker.HookState{}, s.err
}

func newExecutor(t *testing.T, runner Runner, p breaker.Policy, clk *clock) (*Executor, *store.FileStore, *bytes.Buffer) {
	t.Helper()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"), store.WithClock(clk.Now))
	var out bytes.Buffer
	e := New(fs, runner, p, WithClock(clk.Now), WithOutput(&out))
	return e, fs, &out
}

func decodeSkip(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(b, &payload))
	return payload
}

func TestExecute_EndToEndScenario(t *testing.T) {
	p := breaker.DefaultPolicy()
	p.FailureThreshold = 1
	p.Cooldown = 5 * time.Second
	p.SuccessThreshold = 1

	clk := &clock{now: t0}
	runner := &scriptedRunner{codes: []int{2, 0, 0}}
	e, fs, out := newExecutor(t, runner, p, clk)
	ctx := context.Background()
	inv := Invocation{Argv: []string{"X"}, Event: "post-edit"}

	// Run 1 fails and opens the breaker.
	o, err := e.Execute(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, DecisionExecuted, o.Decision)
	assert.Equal(t, 2, o.ExitCode)
	assert.Equal(t, breaker.StateOpen, o.State.State)
	require.NotNil(t, o.State.RetryAfter)
	assert.True(t, o.State.RetryAfter.Equal(t0.Add(5*time.Second)))
	require.NotNil(t, o.State.LastError)
	assert.Equal(t, "exit status 2: lint failed", *o.State.LastError)

	// Run 2 at t+1 is skipped.
	clk.Advance(time.Second)
	o, err = e.Execute(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, DecisionSkipped, o.Decision)
	assert.Equal(t, 0, o.ExitCode)
	assert.Nil(t, o.Result)
	assert.Equal(t, map[string]any{
		"result":  "continue",
		"message": "command disabled due to repeated failures",
	}, decodeSkip(t, out.Bytes()))
	assert.Len(t, runner.calls, 1)

	// Run 3 at t+6 probes and closes.
	clk.Advance(5 * time.Second)
	o, err = e.Execute(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, DecisionExecuted, o.Decision)
	assert.Equal(t, breaker.StateClosed, o.State.State)
	assert.Nil(t, o.State.DisabledAt)
	assert.Nil(t, o.State.RetryAfter)

	// Run 4 at t+7 runs as closed.
	clk.Advance(time.Second)
	o, err = e.Execute(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, DecisionExecuted, o.Decision)
	assert.Equal(t, breaker.StateClosed, o.State.State)
	assert.Len(t, runner.calls, 3)

	persisted, err := fs.Load("X")
	require.NoError(t, err)
	assert.Equal(t, 3, persisted.ExecutionCount)
	assert.Equal(t, 1, persisted.FailureCount)
	assert.Nil(t, persisted.ProbeStartedAt)
}

func TestExecute_PassesExitCodeThrough(t *testing.T) {
	clk := &clock{now: t0}
	e, _, out := newExecutor(t, &scriptedRunner{codes: []int{7}}, breaker.DefaultPolicy(), clk)

	o, err := e.Execute(context.Background(), Invocation{Argv: []string{"check.sh", "--all"}})
	require.NoError(t, err)
	assert.Equal(t, 7, o.ExitCode)
	assert.Equal(t, "check.sh --all", o.Key)
	assert.Equal(t, breaker.StateClosed, o.State.State)
	assert.Equal(t, 1, o.State.ConsecutiveFailures)
	assert.Empty(t, out.String(), "nothing written on the run path")
	assert.NotEmpty(t, o.InvocationID)
}

func TestExecute_ExcludedNeverPersisted(t *testing.T) {
	p := breaker.DefaultPolicy().Exclude("format.sh")
	p.FailureThreshold = 1
	clk := &clock{now: t0}
	runner := &scriptedRunner{codes: []int{1, 1, 1}}
	e, fs, _ := newExecutor(t, runner, p, clk)

	for i := 0; i < 3; i++ {
		o, err := e.Execute(context.Background(), Invocation{Argv: []string{"format.sh"}})
		require.NoError(t, err)
		assert.Equal(t, DecisionExcluded, o.Decision)
		assert.Equal(t, 1, o.ExitCode)
	}
	assert.Len(t, runner.calls, 3)

	all, err := fs.LoadAll()
	require.NoError(t, err)
	assert.NotContains(t, all, "format.sh")
}

func TestExecute_DisabledIsUntracked(t *testing.T) {
	p := breaker.DefaultPolicy()
	p.Enabled = false
	clk := &clock{now: t0}
	e, fs, _ := newExecutor(t, &scriptedRunner{codes: []int{1}}, p, clk)

	o, err := e.Execute(context.Background(), Invocation{Argv: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, DecisionUntracked, o.Decision)

	_, err = os.Stat(fs.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_CorruptStoreFailsOpen(t *testing.T) {
	p := breaker.DefaultPolicy()
	p.FailureThreshold = 1
	clk := &clock{now: t0}
	runner := &scriptedRunner{codes: []int{3, 3}}
	e, fs, out := newExecutor(t, runner, p, clk)
	require.NoError(t, os.WriteFile(fs.Path, []byte("{not json"), 0o600))

	for i := 0; i < 2; i++ {
		o, err := e.Execute(context.Background(), Invocation{Argv: []string{"x"}})
		require.NoError(t, err)
		assert.True(t, o.Degraded)
		assert.Equal(t, DecisionExecuted, o.Decision)
		assert.Equal(t, 3, o.ExitCode)
	}
	assert.Len(t, runner.calls, 2, "never skipped while the store is unusable")
	assert.Empty(t, out.String())

	data, err := os.ReadFile(fs.Path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "corrupt store left untouched")
}

func TestExecute_LockUnavailableFailsOpen(t *testing.T) {
	runner := &scriptedRunner{}
	lockErr := errors.Join(store.ErrStoreUnavailable, store.ErrLockTimeout)
	e := New(failingStore{err: lockErr}, runner, breaker.DefaultPolicy(), WithOutput(&bytes.Buffer{}))

	o, err := e.Execute(context.Background(), Invocation{Argv: []string{"x"}})
	require.NoError(t, err)
	assert.True(t, o.Degraded)
	assert.Equal(t, 0, o.ExitCode)
	assert.Len(t, runner.calls, 1)
}

func TestExecute_NoCommand(t *testing.T) {
	e := New(failingStore{}, &scriptedRunner{}, breaker.DefaultPolicy())
	_, err := e.Execute(context.Background(), Invocation{})
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestExecute_TruncatesLastError(t *testing.T) {
	clk := &clock{now: t0}
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"), store.WithClock(clk.Now))
	runner := runnerFunc(func(context.Context, []string) Result {
		return Result{ExitCode: 1, Stderr: string(bytes.Repeat([]byte("e"), 2000))}
	})
	e := New(fs, runner, breaker.DefaultPolicy(), WithClock(clk.Now), WithMaxErrorLength(64))

	o, err := e.Execute(context.Background(), Invocation{Argv: []string{"noisy"}})
	require.NoError(t, err)
	require.NotNil(t, o.State.LastError)
	assert.Len(t, *o.State.LastError, 64)
}

func TestExecute_HalfOpenProbeBlocksSecondCaller(t *testing.T) {
	p := breaker.DefaultPolicy()
	p.FailureThreshold = 1
	p.Cooldown = time.Second
	p.ProbeLease = time.Minute
	clk := &clock{now: t0}
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"), store.WithClock(clk.Now))
	var out bytes.Buffer

	var second Outcome
	var inner *Executor
	probe := runnerFunc(func(ctx context.Context, argv []string) Result {
		// A concurrent invocation arrives while the probe runs.
		var err error
		second, err = inner.Execute(ctx, Invocation{Argv: argv})
		require.NoError(t, err)
		return Result{}
	})
	inner = New(fs, &scriptedRunner{}, p, WithClock(clk.Now), WithOutput(&out))
	outer := New(fs, probe, p, WithClock(clk.Now), WithOutput(&bytes.Buffer{}))

	_, err := New(fs, &scriptedRunner{codes: []int{1}}, p, WithClock(clk.Now)).
		Execute(context.Background(), Invocation{Argv: []string{"flaky"}})
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	o, err := outer.Execute(context.Background(), Invocation{Argv: []string{"flaky"}})
	require.NoError(t, err)
	assert.Equal(t, DecisionExecuted, o.Decision)
	assert.Equal(t, DecisionSkipped, second.Decision)
	assert.Equal(t, breaker.StateHalfOpen, o.State.State)
	assert.Equal(t, 1, o.State.ConsecutiveSuccesses)
}

type runnerFunc func(ctx context.Context, argv []string) Result

func (f runnerFunc) Run(ctx context.Context, argv []string) Result { return f(ctx, argv) }
