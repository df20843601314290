package store

import "errors"

// Sentinel errors for the store package. Callers match with errors.Is.
var (
	// ErrStoreUnavailable wraps every condition under which the store cannot
	// be trusted: lock timeout, corrupt document, permission errors.
	// Executors fail open on it.
	ErrStoreUnavailable = errors.New("breaker store unavailable")

	// ErrLockTimeout is returned when the store lock is not acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for store lock")

	// ErrCorrupt is returned when the document cannot be parsed.
	ErrCorrupt = errors.New("store document is corrupt")

	// ErrKeyNotFound is returned by admin operations on an unknown key.
	ErrKeyNotFound = errors.New("command key not found")

	// ErrEmptyKey is returned when a key is blank.
	ErrEmptyKey = errors.New("command key is required")
)
