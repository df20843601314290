package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sys/unix"
)

// fileLock is an advisory exclusive flock on a sibling lock file. The data
// file itself is replaced by rename on every write, so it cannot carry the lock.
type fileLock struct {
	f *os.File
}

// acquireLock polls a non-blocking flock until it succeeds or timeout elapses.
func acquireLock(ctx context.Context, path string, timeout, poll time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock %s: %w", ErrStoreUnavailable, path, err)
	}

	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(poll))
	err = retry.Do(ctx, backoff, func(_ context.Context) error {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		_ = f.Close() //nolint:errcheck // cleanup in error path
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return nil, fmt.Errorf("%w: %w after %s", ErrStoreUnavailable, ErrLockTimeout, timeout)
		}
		return nil, fmt.Errorf("%w: lock %s: %w", ErrStoreUnavailable, path, err)
	}
	return &fileLock{f: f}, nil
}

// release unlocks and closes the lock file.
func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN) //nolint:errcheck // unlock best-effort, close releases too
	_ = l.f.Close()                              //nolint:errcheck // lock file holds no data
}
