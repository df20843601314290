package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Exit codes reported when the wrapped command never produced one.
const (
	ExitTimeout    = 124
	ExitNotRunning = 126
	ExitNotFound   = 127
	exitSignalBase = 128
)

const (
	// DefaultTimeout bounds a wrapped command when none is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultCaptureLimit is the stderr tail kept for the failure message.
	DefaultCaptureLimit = 4096

	// DefaultWaitDelay is how long Wait lingers on open pipes after a kill.
	DefaultWaitDelay = 2 * time.Second
)

// Result is the outcome of one wrapped command.
type Result struct {
	ExitCode int
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool

	// Err is set when the command could not be started.
	Err error

	timeout time.Duration
}

// Success reports whether the command ran to a zero exit.
func (r Result) Success() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Message describes a failed result, followed by the captured stderr tail.
func (r Result) Message() string {
	var head string
	switch {
	case r.Err != nil:
		head = r.Err.Error()
	case r.TimedOut:
		head = fmt.Sprintf("timed out after %s", r.timeout)
	default:
		head = fmt.Sprintf("exit status %d", r.ExitCode)
	}
	if tail := strings.TrimSpace(r.Stderr); tail != "" {
		return head + ": " + tail
	}
	return head
}

// Runner runs a command line to completion.
type Runner interface {
	Run(ctx context.Context, argv []string) Result
}

// ProcessRunner runs commands as child processes in their own process group.
type ProcessRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Timeout is the hard limit for one command. Zero means DefaultTimeout.
	Timeout time.Duration

	// CaptureLimit bounds the stderr tail kept in Result.Stderr.
	CaptureLimit int

	// WaitDelay bounds the wait for inherited pipes after the group is killed.
	WaitDelay time.Duration
}

var _ Runner = (*ProcessRunner)(nil)

// Run executes argv. It never returns an error: spawn failures, non-zero
// exits and timeouts are all reported through Result.
func (r *ProcessRunner) Run(ctx context.Context, argv []string) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.CaptureLimit
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	waitDelay := r.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}

	res := Result{timeout: timeout}
	if len(argv) == 0 {
		res.Err = ErrNoCommand
		res.ExitCode = ExitNotFound
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tail := &tailBuffer{limit: limit}
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(r.Stderr, tail)
	} else {
		cmd.Stderr = tail
	}
	configureCommandProcess(cmd)
	cmd.Cancel = func() error { return terminateCommandProcess(cmd) }
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Elapsed = time.Since(start)
		res.Err = err
		res.ExitCode = startExitCode(err)
		return res
	}
	err := cmd.Wait()
	res.Elapsed = time.Since(start)
	res.Stderr = tail.String()

	if err == nil {
		return res
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		res.ExitCode = ExitTimeout
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitStatus(exitErr)
		return res
	}
	res.Err = err
	res.ExitCode = ExitNotRunning
	return res
}

// startExitCode follows the shell convention for commands that never ran.
func startExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return ExitNotFound
	}
	return ExitNotRunning
}

func exitStatus(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return exitSignalBase + int(ws.Signal())
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return ExitNotRunning
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.ToValidUTF8(string(t.buf), "")
}
