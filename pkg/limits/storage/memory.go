package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LocalCache is a process-local Store used as the rate limiter's fallback
// when the shared store is unreachable. It never returns infrastructure
// errors.
//
// The cache is capped at MaxEntries. When full, entries whose window has
// passed are dropped first, then the least recently accessed entry.
//
// LocalCache is thread-safe and supports concurrent access using sync.RWMutex.
type LocalCache struct {
	// entries maps identifier to its counter.
	entries map[string]*RateLimitEntry

	// mu protects access to entries.
	mu sync.RWMutex

	// maxEntries is the maximum number of entries before eviction (LRU).
	maxEntries int

	// cleanupInterval is how often to drop expired windows.
	cleanupInterval time.Duration

	now func() time.Time

	evictions atomic.Int64

	// done signals the cleanup goroutine to stop.
	done      chan struct{}
	closeOnce sync.Once
}

// LocalCacheConfig configures a LocalCache.
type LocalCacheConfig struct {
	// MaxEntries is the maximum number of counters to hold.
	// Default: 10,000
	MaxEntries int

	// CleanupInterval is how often expired windows are removed.
	// Zero applies the default; a negative value disables the loop.
	// Default: 1 minute
	CleanupInterval time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// NewLocalCache creates a local cache with default settings.
func NewLocalCache() *LocalCache {
	return NewLocalCacheWithConfig(LocalCacheConfig{})
}

// NewLocalCacheWithConfig creates a local cache with custom configuration.
func NewLocalCacheWithConfig(cfg LocalCacheConfig) *LocalCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &LocalCache{
		entries:         make(map[string]*RateLimitEntry),
		maxEntries:      cfg.MaxEntries,
		cleanupInterval: cfg.CleanupInterval,
		now:             cfg.Now,
		done:            make(chan struct{}),
	}

	if c.cleanupInterval > 0 {
		go c.cleanupLoop()
	}

	return c
}

// Get returns a copy of the entry for identifier, or nil.
func (c *LocalCache) Get(ctx context.Context, identifier string) (*RateLimitEntry, error) {
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entries[identifier].Clone(), nil
}

// Put writes a fresh window for entry.Identifier.
func (c *LocalCache) Put(ctx context.Context, entry *RateLimitEntry) error {
	if entry == nil {
		return errors.New("entry cannot be nil")
	}
	if err := validateIdentifier(entry.Identifier); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var version int64 = 1
	if existing, ok := c.entries[entry.Identifier]; ok {
		version = existing.Version + 1
	} else if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	stored := entry.Clone()
	stored.Version = version
	c.entries[entry.Identifier] = stored
	return nil
}

// CompareAndSwap replaces the entry if its version matches.
func (c *LocalCache) CompareAndSwap(ctx context.Context, identifier string, expectedVersion int64, next *RateLimitEntry) (bool, error) {
	if next == nil {
		return false, errors.New("entry cannot be nil")
	}
	if err := validateIdentifier(identifier); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.entries[identifier]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}

	stored := next.Clone()
	stored.Identifier = identifier
	stored.Version = expectedVersion + 1
	c.entries[identifier] = stored
	return true, nil
}

// Delete removes the entry for identifier.
func (c *LocalCache) Delete(ctx context.Context, identifier string) error {
	if err := validateIdentifier(identifier); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, identifier)
	return nil
}

// Cleanup removes entries whose window ended before olderThan.
func (c *LocalCache) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted := 0
	for id, entry := range c.entries {
		if entry.WindowResetAt.Before(olderThan) {
			delete(c.entries, id)
			deleted++
		}
	}

	return deleted, nil
}

// Ping always succeeds.
func (c *LocalCache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup loop. Close is idempotent.
func (c *LocalCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Size returns the current number of counters.
func (c *LocalCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Evictions returns how many entries were evicted to make room.
func (c *LocalCache) Evictions() int64 {
	return c.evictions.Load()
}

// evictLocked makes room for one entry. Expired windows go first; if none
// are expired the least recently accessed entry is dropped.
// Caller must hold write lock.
func (c *LocalCache) evictLocked() {
	now := c.now()
	for id, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, id)
			c.evictions.Add(1)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}

	var (
		oldestID    string
		oldestTime  time.Time
		foundOldest bool
	)

	for id, entry := range c.entries {
		if !foundOldest || entry.LastAccessAt.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.LastAccessAt
			foundOldest = true
		}
	}

	if foundOldest {
		delete(c.entries, oldestID)
		c.evictions.Add(1)
	}
}

// cleanupLoop runs periodic removal of expired windows.
func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = c.Cleanup(context.Background(), c.now())
		case <-c.done:
			return
		}
	}
}

// MemoryStore is an in-process shared store for single-instance deployments
// and tests. SetUnavailable simulates an outage: while set, every operation
// fails with an infrastructure error.
type MemoryStore struct {
	*LocalCache
	unavailable atomic.Bool
}

// NewMemoryStore creates an in-memory shared store.
func NewMemoryStore(cfg LocalCacheConfig) *MemoryStore {
	return &MemoryStore{LocalCache: NewLocalCacheWithConfig(cfg)}
}

// SetUnavailable toggles the simulated outage.
func (m *MemoryStore) SetUnavailable(down bool) {
	m.unavailable.Store(down)
}

func (m *MemoryStore) check(op string) error {
	if m.unavailable.Load() {
		return unavailable(op, errors.New("connection refused"))
	}
	return nil
}

// Get returns a copy of the entry for identifier, or nil.
func (m *MemoryStore) Get(ctx context.Context, identifier string) (*RateLimitEntry, error) {
	if err := m.check("ratelimit.get"); err != nil {
		return nil, err
	}
	return m.LocalCache.Get(ctx, identifier)
}

// Put writes a fresh window.
func (m *MemoryStore) Put(ctx context.Context, entry *RateLimitEntry) error {
	if err := m.check("ratelimit.put"); err != nil {
		return err
	}
	return m.LocalCache.Put(ctx, entry)
}

// CompareAndSwap replaces the entry if its version matches.
func (m *MemoryStore) CompareAndSwap(ctx context.Context, identifier string, expectedVersion int64, next *RateLimitEntry) (bool, error) {
	if err := m.check("ratelimit.cas"); err != nil {
		return false, err
	}
	return m.LocalCache.CompareAndSwap(ctx, identifier, expectedVersion, next)
}

// Delete removes the entry for identifier.
func (m *MemoryStore) Delete(ctx context.Context, identifier string) error {
	if err := m.check("ratelimit.delete"); err != nil {
		return err
	}
	return m.LocalCache.Delete(ctx, identifier)
}

// Cleanup removes entries whose window ended before olderThan.
func (m *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	if err := m.check("ratelimit.cleanup"); err != nil {
		return 0, err
	}
	return m.LocalCache.Cleanup(ctx, olderThan)
}

// Ping fails while the store is marked unavailable.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return m.check("ratelimit.ping")
}
