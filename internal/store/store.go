// Package store persists breaker state for every command key in a single
// JSON document shared by all wrapper processes on the host.
package store

import (
	"context"
	"time"

	"github.com/boshu2/hookbreaker/internal/breaker"
)

// DocumentVersion is the schema version written to new documents.
const DocumentVersion = 1

// Document is the on-disk layout of the state file.
type Document struct {
	// Version is the schema version.
	Version int `json:"version"`

	// Hooks maps command key to its breaker state.
	Hooks map[string]breaker.HookState `json:"hooks"`

	// GlobalStats is recomputed from Hooks on every write.
	GlobalStats GlobalStats `json:"global_stats"`
}

// GlobalStats aggregates the hook collection. It is derived, never authoritative.
type GlobalStats struct {
	TotalExecutions int       `json:"total_executions" yaml:"total_executions"`
	TotalFailures   int       `json:"total_failures" yaml:"total_failures"`
	HooksDisabled   int       `json:"hooks_disabled" yaml:"hooks_disabled"`
	HooksTracked    int       `json:"hooks_tracked" yaml:"hooks_tracked"`
	LastUpdated     time.Time `json:"last_updated" yaml:"last_updated"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Version: DocumentVersion,
		Hooks:   make(map[string]breaker.HookState),
	}
}

// ComputeStats derives GlobalStats from hooks.
func ComputeStats(hooks map[string]breaker.HookState, now time.Time) GlobalStats {
	stats := GlobalStats{LastUpdated: now, HooksTracked: len(hooks)}
	for _, h := range hooks {
		stats.TotalExecutions += h.ExecutionCount
		stats.TotalFailures += h.FailureCount
		if h.IsOpen() {
			stats.HooksDisabled++
		}
	}
	return stats
}

// UpdateFunc receives the current state of a key and returns its replacement.
// Returning an error aborts the write.
type UpdateFunc func(current breaker.HookState) (breaker.HookState, error)

// Store is the persistence interface for breaker state.
type Store interface {
	// Load returns the state for key, or the default closed state if absent.
	Load(key string) (breaker.HookState, error)

	// Save replaces the state for key without touching other keys.
	Save(ctx context.Context, key string, st breaker.HookState) error

	// Update applies fn to the current state of key inside one critical section.
	Update(ctx context.Context, key string, fn UpdateFunc) (breaker.HookState, error)

	// LoadAll returns every tracked key.
	LoadAll() (map[string]breaker.HookState, error)

	// GlobalStats returns the aggregate counters.
	GlobalStats() (GlobalStats, error)

	// Snapshot returns every key and the matching counters from one read.
	Snapshot() (*Document, error)

	// Reset restores key to the default closed state. ErrKeyNotFound if absent.
	Reset(ctx context.Context, key string) error

	// ResetAll clears every key.
	ResetAll(ctx context.Context) error

	// ForceEnable closes key immediately, bypassing the cooldown. ErrKeyNotFound if absent.
	ForceEnable(ctx context.Context, key string) (breaker.HookState, error)
}
