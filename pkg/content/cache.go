package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/tutor/pkg/resilience"
)

// ErrStoragePressure means the cache has no room for a new entry.
// The orchestrator reacts by purging entries past the retention window and
// retrying the write once.
var ErrStoragePressure = errors.New("content cache storage pressure")

// Cache is the read/write-through store behind the orchestrator.
// Payloads are opaque bytes; encoding belongs to the caller.
// Backend failures are returned as *resilience.InfraError.
type Cache interface {
	// Get returns the entry for key, or nil when none exists.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores payload under key with timestamp at, replacing any
	// previous entry. It returns an error wrapping ErrStoragePressure when
	// the cache is full.
	Set(ctx context.Context, key string, payload []byte, at time.Time) error

	// Purge removes entries older than olderThan and returns the count.
	Purge(ctx context.Context, olderThan time.Time) (int, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error
}

// Entry is one cached payload.
type Entry struct {
	Key       string
	Payload   []byte
	Timestamp time.Time
}

// MemoryCache is a capped in-process Cache.
//
// MemoryCache is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int

	unavailable atomic.Bool
}

// NewMemoryCache creates a cache holding at most maxEntries entries.
// Default: 1,000
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

// SetUnavailable simulates an outage: while set, every operation fails
// with an infrastructure error.
func (c *MemoryCache) SetUnavailable(down bool) {
	c.unavailable.Store(down)
}

func (c *MemoryCache) check(op string) error {
	if c.unavailable.Load() {
		return resilience.NewInfraError(op, errors.New("cache unreachable"))
	}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	if err := c.check("cache.get"); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	clone := *e
	clone.Payload = append([]byte(nil), e.Payload...)
	return &clone, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, payload []byte, at time.Time) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if err := c.check("cache.set"); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		return fmt.Errorf("cache.set %q: %w (%d entries)", key, ErrStoragePressure, len(c.entries))
	}

	c.entries[key] = &Entry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		Timestamp: at,
	}
	return nil
}

func (c *MemoryCache) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	if err := c.check("cache.purge"); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deleted := 0
	for key, e := range c.entries {
		if e.Timestamp.Before(olderThan) {
			delete(c.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ping fails while the cache is marked unavailable.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return c.check("cache.ping")
}

func (c *MemoryCache) Close() error {
	return nil
}
