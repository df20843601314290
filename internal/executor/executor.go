// Package executor wraps a hook command with the circuit breaker: it asks
// the engine whether the command may run, runs it, records the outcome and
// hands the command's exit code back to the caller.
package executor

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boshu2/hookbreaker/internal/breaker"
	"github.com/boshu2/hookbreaker/internal/logging"
	"github.com/boshu2/hookbreaker/internal/store"
)

// DefaultMaxErrorLength caps the failure message stored as last_error.
const DefaultMaxErrorLength = 500

// Decision is what the executor did with an invocation.
type Decision string

const (
	DecisionExecuted  Decision = "executed"
	DecisionSkipped   Decision = "skipped"
	DecisionExcluded  Decision = "force-excluded"
	DecisionUntracked Decision = "untracked"
)

// StateStore is the slice of store.Store the executor needs.
type StateStore interface {
	Update(ctx context.Context, key string, fn store.UpdateFunc) (breaker.HookState, error)
}

// Invocation is one trigger of a hook command.
type Invocation struct {
	Argv  []string
	Event string
}

// Outcome summarizes one invocation.
type Outcome struct {
	InvocationID string
	Key          string
	Decision     Decision

	// ExitCode is what the wrapper should exit with: the command's own code,
	// or 0 when the command was skipped.
	ExitCode int

	// State is the breaker state after the invocation. Zero when untracked
	// or when the store could not be used.
	State breaker.HookState

	// Result is nil when the command was skipped.
	Result *Result

	// Degraded is set when the store was unavailable and the command ran
	// without breaker protection.
	Degraded bool
}

// Executor runs commands behind the breaker.
type Executor struct {
	store  StateStore
	runner Runner
	policy breaker.Policy

	logger         *zap.Logger
	out            io.Writer
	now            func() time.Time
	newID          func() string
	maxErrorLength int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the invocation logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithOutput sets where the skip payload is written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) {
		if w != nil {
			e.out = w
		}
	}
}

// WithClock sets the clock used for breaker decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithMaxErrorLength caps the recorded failure message.
func WithMaxErrorLength(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxErrorLength = n
		}
	}
}

// New creates an Executor.
func New(st StateStore, runner Runner, policy breaker.Policy, opts ...Option) *Executor {
	e := &Executor{
		store:          st,
		runner:         runner,
		policy:         policy,
		logger:         zap.NewNop(),
		out:            os.Stdout,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		maxErrorLength: DefaultMaxErrorLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one invocation. The only error is ErrNoCommand; every store
// problem degrades to running the command unprotected.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (Outcome, error) {
	if len(inv.Argv) == 0 {
		return Outcome{}, ErrNoCommand
	}

	key := CommandKey(inv.Argv)
	out := Outcome{InvocationID: e.newID(), Key: key}
	log := e.logger.With(
		zap.String(logging.FieldInvocation, out.InvocationID),
		zap.String(logging.FieldEvent, inv.Event),
		zap.String(logging.FieldKey, key),
	)

	if !e.policy.Tracks(key) {
		out.Decision = DecisionUntracked
		if e.policy.IsExcluded(key) {
			out.Decision = DecisionExcluded
		}
		res := e.runner.Run(ctx, inv.Argv)
		out.Result = &res
		out.ExitCode = res.ExitCode
		e.logOutcome(log, out, "")
		return out, nil
	}

	var (
		allowed bool
		from    breaker.State
	)
	st, err := e.store.Update(ctx, key, func(cur breaker.HookState) (breaker.HookState, error) {
		from = cur.State
		ok, next := breaker.ShouldExecute(cur, e.policy, e.now())
		allowed = ok
		return next, nil
	})
	if err != nil {
		log.Warn("breaker state unavailable, running unprotected", zap.Error(err))
		out.Degraded = true
		allowed = true
		from = ""
	} else {
		out.State = st
	}

	if !allowed {
		out.Decision = DecisionSkipped
		if err := WriteSkip(e.out); err != nil {
			log.Warn("write skip response", zap.Error(err))
		}
		e.logOutcome(log, out, from)
		return out, nil
	}

	out.Decision = DecisionExecuted
	res := e.runner.Run(ctx, inv.Argv)
	out.Result = &res
	out.ExitCode = res.ExitCode

	if out.Degraded {
		e.logOutcome(log, out, from)
		return out, nil
	}

	msg := ""
	if !res.Success() {
		msg = truncate(res.Message(), e.maxErrorLength)
	}
	// An interrupted command is still recorded.
	recordCtx := context.WithoutCancel(ctx)
	st, err = e.store.Update(recordCtx, key, func(cur breaker.HookState) (breaker.HookState, error) {
		return breaker.RecordResult(cur, res.Success(), msg, e.policy, e.now()), nil
	})
	if err != nil {
		log.Warn("record result", zap.Error(err))
		out.Degraded = true
	} else {
		out.State = st
	}
	e.logOutcome(log, out, from)
	return out, nil
}

func (e *Executor) logOutcome(log *zap.Logger, out Outcome, from breaker.State) {
	fields := []zap.Field{
		zap.String(logging.FieldDecision, string(out.Decision)),
		zap.Int("exit_code", out.ExitCode),
		zap.Bool("degraded", out.Degraded),
	}
	if out.State.State != "" {
		fields = append(fields,
			zap.String(logging.FieldState, out.State.State.String()),
			zap.Int("failure_count", out.State.FailureCount),
			zap.Int("consecutive_failures", out.State.ConsecutiveFailures),
			zap.Int("consecutive_successes", out.State.ConsecutiveSuccesses),
		)
		if from != "" && from != out.State.State {
			fields = append(fields, zap.String("transition", from.String()+"->"+out.State.State.String()))
		}
		if out.State.RetryAfter != nil {
			fields = append(fields, zap.Time("retry_after", *out.State.RetryAfter))
		}
	}
	if out.Result != nil {
		fields = append(fields,
			zap.Duration("duration", out.Result.Elapsed),
			zap.Bool("timed_out", out.Result.TimedOut),
		)
		if out.Result.Err != nil {
			fields = append(fields, zap.NamedError("spawn_error", out.Result.Err))
		}
	}

	if out.Degraded {
		log.Warn("invocation", fields...)
		return
	}
	log.Info("invocation", fields...)
}

// truncate limits s to n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

