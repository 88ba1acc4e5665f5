package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/tutor/pkg/resilience"
)

// ErrUnavailable is wrapped by every infrastructure failure a Store returns.
// The failure itself is a *resilience.InfraError, so callers can match either.
var ErrUnavailable = errors.New("rate limit store unavailable")

// Store defines the shared rate-limit counter store.
// Implementations must be thread-safe and support concurrent access from
// multiple processes where the backing medium allows it.
type Store interface {
	// Get returns the entry for identifier, or nil when none exists.
	Get(ctx context.Context, identifier string) (*RateLimitEntry, error)

	// Put unconditionally writes a fresh window for entry.Identifier and
	// bumps its version so in-flight compare-and-swaps against the old
	// window fail.
	Put(ctx context.Context, entry *RateLimitEntry) error

	// CompareAndSwap replaces the entry only if its current version equals
	// expectedVersion. It reports false when another writer got there first
	// or the entry no longer exists. next.Version is ignored.
	CompareAndSwap(ctx context.Context, identifier string, expectedVersion int64, next *RateLimitEntry) (bool, error)

	// Delete removes the entry. No-op if it doesn't exist.
	Delete(ctx context.Context, identifier string) error

	// Cleanup removes entries whose window ended before olderThan.
	// Returns the number of entries deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// RateLimitEntry is the persisted fixed-window counter for one identifier.
type RateLimitEntry struct {
	// Identifier is the rate-limited key, typically "<scope>:<user-or-ip>".
	Identifier string

	// Count is the number of requests admitted in the current window.
	Count int

	// WindowResetAt is when the current window ends.
	WindowResetAt time.Time

	// LastAccessAt is when the entry was last read for a check.
	LastAccessAt time.Time

	// Version increases on every write and guards compare-and-swap.
	Version int64
}

// Expired reports whether the window has passed at now. An expired entry is
// logically a zero count.
func (e *RateLimitEntry) Expired(now time.Time) bool {
	return !now.Before(e.WindowResetAt)
}

// Clone returns a copy of the entry.
func (e *RateLimitEntry) Clone() *RateLimitEntry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// unavailable wraps a backend failure as an infrastructure error.
func unavailable(op string, err error) error {
	return resilience.NewInfraError(op, fmt.Errorf("%w: %w", ErrUnavailable, err))
}

func validateIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	return nil
}
