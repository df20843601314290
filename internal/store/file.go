package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/boshu2/hookbreaker/internal/breaker"
)

const (
	// DefaultLockTimeout bounds the wait for the store lock.
	DefaultLockTimeout = 500 * time.Millisecond

	// DefaultPollInterval is the delay between lock attempts.
	DefaultPollInterval = 10 * time.Millisecond

	// LockSuffix is appended to the store path to name the lock file.
	LockSuffix = ".lock"
)

// FileStore implements Store on a single JSON document.
type FileStore struct {
	// Path is the state document (e.g., ~/.hookbreaker/state.json).
	Path string

	lockTimeout  time.Duration
	pollInterval time.Duration
	now          func() time.Time

	mu sync.Mutex
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*FileStore)

// WithLockTimeout sets the bounded wait for the store lock.
func WithLockTimeout(d time.Duration) FileStoreOption {
	return func(fs *FileStore) {
		if d > 0 {
			fs.lockTimeout = d
		}
	}
}

// WithPollInterval sets the delay between lock attempts.
func WithPollInterval(d time.Duration) FileStoreOption {
	return func(fs *FileStore) {
		if d > 0 {
			fs.pollInterval = d
		}
	}
}

// WithClock sets the clock used for last_updated.
func WithClock(now func() time.Time) FileStoreOption {
	return func(fs *FileStore) {
		fs.now = now
	}
}

// NewFileStore creates a file-based store at path.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	fs := &FileStore{
		Path:         path,
		lockTimeout:  DefaultLockTimeout,
		pollInterval: DefaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

var _ Store = (*FileStore)(nil)

// Load returns the state for key. A missing file or key yields the default
// closed state. Reads need no lock: writers replace the file by rename.
func (fs *FileStore) Load(key string) (breaker.HookState, error) {
	if strings.TrimSpace(key) == "" {
		return breaker.HookState{}, ErrEmptyKey
	}
	doc, err := fs.read()
	if err != nil {
		return breaker.NewHookState(key), err
	}
	if st, ok := doc.Hooks[key]; ok {
		return st, nil
	}
	return breaker.NewHookState(key), nil
}

// LoadAll returns every tracked key.
func (fs *FileStore) LoadAll() (map[string]breaker.HookState, error) {
	doc, err := fs.read()
	if err != nil {
		return nil, err
	}
	return doc.Hooks, nil
}

// GlobalStats returns aggregate counters recomputed from the hooks.
func (fs *FileStore) GlobalStats() (GlobalStats, error) {
	doc, err := fs.Snapshot()
	if err != nil {
		return GlobalStats{}, err
	}
	return doc.GlobalStats, nil
}

// Snapshot reads the document once. Its GlobalStats are recomputed from the
// hooks it carries, keeping the stored last_updated.
func (fs *FileStore) Snapshot() (*Document, error) {
	doc, err := fs.read()
	if err != nil {
		return nil, err
	}
	doc.GlobalStats = ComputeStats(doc.Hooks, doc.GlobalStats.LastUpdated)
	return doc, nil
}

// Save replaces the state for key.
func (fs *FileStore) Save(ctx context.Context, key string, st breaker.HookState) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	st.Key = key
	return fs.mutate(ctx, func(doc *Document) (bool, error) {
		doc.Hooks[key] = st
		return true, nil
	})
}

// Update applies fn to the current state of key under the store lock. The
// document is only rewritten when fn changes the state.
func (fs *FileStore) Update(ctx context.Context, key string, fn UpdateFunc) (breaker.HookState, error) {
	if strings.TrimSpace(key) == "" {
		return breaker.HookState{}, ErrEmptyKey
	}
	var result breaker.HookState
	err := fs.mutate(ctx, func(doc *Document) (bool, error) {
		cur, ok := doc.Hooks[key]
		if !ok {
			cur = breaker.NewHookState(key)
		}
		next, err := fn(cur)
		if err != nil {
			return false, err
		}
		next.Key = key
		result = next
		if ok && next.Equal(cur) {
			return false, nil
		}
		if !ok && next.IsZero() {
			return false, nil
		}
		doc.Hooks[key] = next
		return true, nil
	})
	return result, err
}

// Reset restores key to the default closed state.
func (fs *FileStore) Reset(ctx context.Context, key string) error {
	return fs.mutate(ctx, func(doc *Document) (bool, error) {
		st, ok := doc.Hooks[key]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		doc.Hooks[key] = breaker.Reset(st)
		return true, nil
	})
}

// ForceEnable closes key immediately, bypassing the cooldown.
func (fs *FileStore) ForceEnable(ctx context.Context, key string) (breaker.HookState, error) {
	var result breaker.HookState
	err := fs.mutate(ctx, func(doc *Document) (bool, error) {
		st, ok := doc.Hooks[key]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		result = breaker.ForceEnable(st)
		doc.Hooks[key] = result
		return true, nil
	})
	return result, err
}

// ResetAll clears every key. It does not read the existing document, so it
// also repairs a corrupt store.
func (fs *FileStore) ResetAll(ctx context.Context) error {
	return fs.withLock(ctx, func() error {
		return fs.write(NewDocument())
	})
}

// mutate runs fn over the current document inside the critical section and
// writes the result when fn reports a change.
func (fs *FileStore) mutate(ctx context.Context, fn func(doc *Document) (bool, error)) error {
	return fs.withLock(ctx, func() error {
		doc, err := fs.read()
		if err != nil {
			return err
		}
		changed, err := fn(doc)
		if err != nil || !changed {
			return err
		}
		return fs.write(doc)
	})
}

// withLock serializes in-process callers and holds the cross-process flock.
func (fs *FileStore) withLock(ctx context.Context, fn func() error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.Path), 0o700); err != nil {
		return fmt.Errorf("%w: create store directory: %w", ErrStoreUnavailable, err)
	}

	lock, err := acquireLock(ctx, fs.Path+LockSuffix, fs.lockTimeout, fs.pollInterval)
	if err != nil {
		return err
	}
	defer lock.release()

	return fn()
}

// read parses the document. A missing or empty file is an empty document.
func (fs *FileStore) read() (*Document, error) {
	data, err := os.ReadFile(fs.Path)
	if os.IsNotExist(err) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStoreUnavailable, fs.Path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return NewDocument(), nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrStoreUnavailable, ErrCorrupt, err)
	}
	if doc.Hooks == nil {
		doc.Hooks = make(map[string]breaker.HookState)
	}
	for key, st := range doc.Hooks {
		if st.Key == "" {
			st.Key = key
		}
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w: hook %q: %w", ErrStoreUnavailable, ErrCorrupt, key, err)
		}
		doc.Hooks[key] = st
	}
	return &doc, nil
}

// write recomputes the stats and atomically replaces the document.
func (fs *FileStore) write(doc *Document) error {
	doc.Version = DocumentVersion
	doc.GlobalStats = ComputeStats(doc.Hooks, fs.now())

	err := atomicWrite(fs.Path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// atomicWrite writes to a temp file and renames atomically.
func atomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}
