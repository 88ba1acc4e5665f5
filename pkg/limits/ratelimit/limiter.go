package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tutor/pkg/limits/storage"
	"mercator-hq/tutor/pkg/resilience"
)

// Limiter enforces "at most limit requests per window per identifier" across
// every process sharing the same store.
//
// # Algorithm
//
// Fixed window per identifier, evaluated against the shared store:
//
//  1. No entry, or its window has passed: write a fresh window with count 1
//     and allow.
//  2. count >= limit: deny without mutating.
//  3. Otherwise conditionally increment guarded by the entry version. If
//     another process updated first the check is denied rather than retried,
//     trading exact fairness for never over-admitting.
//
// When the shared store fails with an infrastructure error the whole check
// is replayed on a bounded process-local cache and the Decision is marked
// Degraded. Local counts are per process, so a fleet of N processes may admit
// up to N*limit requests per window while degraded.
type Limiter struct {
	store   storage.Store
	local   *storage.LocalCache
	logger  *slog.Logger
	metrics Metrics

	// mu guards config; only the defaults change after construction.
	mu     sync.RWMutex
	config Config
}

// NewLimiter creates a limiter over the shared store.
//
// Example:
//
//	limiter := ratelimit.NewLimiter(store, ratelimit.Config{
//	    DefaultLimit:  20,
//	    DefaultWindow: time.Minute,
//	}, logger, nil)
//	defer limiter.Close()
//
//	decision, err := limiter.Check(ctx, "chat:user-42", 20, time.Minute)
func NewLimiter(store storage.Store, config Config, logger *slog.Logger, metrics Metrics) *Limiter {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 20
	}
	if config.DefaultWindow <= 0 {
		config.DefaultWindow = time.Minute
	}
	if config.LocalMaxEntries <= 0 {
		config.LocalMaxEntries = 10000
	}
	if config.LocalCleanupInterval == 0 {
		config.LocalCleanupInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Limiter{
		store: store,
		local: storage.NewLocalCacheWithConfig(storage.LocalCacheConfig{
			MaxEntries:      config.LocalMaxEntries,
			CleanupInterval: config.LocalCleanupInterval,
			Now:             config.Now,
		}),
		config:  config,
		logger:  logger.With("component", "ratelimit"),
		metrics: metrics,
	}
}

// Check evaluates one request for identifier and records it when allowed.
//
// Errors are returned only for invalid arguments (empty identifier,
// limit < 1, window <= 0) and for a ctx that ended during the check. Store
// outages never surface as errors; they produce a Degraded decision from
// the local fallback.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) (*Decision, error) {
	if err := validate(identifier, limit, window); err != nil {
		return nil, err
	}

	now := l.config.Now()

	decision, err := evaluate(ctx, l.store, identifier, limit, window, now)
	if err == nil {
		l.metrics.RecordRateLimitCheck("shared", result(decision))
		return decision, nil
	}
	// A caller that went away is not a store outage.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !resilience.IsInfraError(err) {
		return nil, err
	}

	l.logger.Warn("shared rate limit store unavailable, using local fallback",
		"identifier", identifier,
		"error", err,
	)
	l.metrics.RecordRateLimitFallback()

	decision, err = evaluate(ctx, l.local, identifier, limit, window, now)
	if err != nil {
		return nil, err
	}
	decision.Degraded = true
	l.metrics.RecordRateLimitCheck("local", result(decision))

	return decision, nil
}

// CheckDefault checks identifier against the current default limit and window.
func (l *Limiter) CheckDefault(ctx context.Context, identifier string) (*Decision, error) {
	l.mu.RLock()
	limit, window := l.config.DefaultLimit, l.config.DefaultWindow
	l.mu.RUnlock()

	return l.Check(ctx, identifier, limit, window)
}

// SetDefaults replaces the limit and window used by CheckDefault. Windows
// already open keep their reset time; the new limit applies to their next
// check.
func (l *Limiter) SetDefaults(limit int, window time.Duration) error {
	if limit < 1 {
		return fmt.Errorf("limit must be >= 1, got %d", limit)
	}
	if window <= 0 {
		return fmt.Errorf("window must be positive, got %s", window)
	}

	l.mu.Lock()
	changed := l.config.DefaultLimit != limit || l.config.DefaultWindow != window
	l.config.DefaultLimit = limit
	l.config.DefaultWindow = window
	l.mu.Unlock()

	if changed {
		l.logger.Info("rate limit defaults updated", "limit", limit, "window", window)
	}
	return nil
}

// GetRemaining returns how many requests identifier has left in its current
// window. It never consumes quota.
func (l *Limiter) GetRemaining(ctx context.Context, identifier string, limit int) int {
	entry := l.lookup(ctx, identifier)
	if entry == nil || entry.Expired(l.config.Now()) {
		return limit
	}
	return max(0, limit-entry.Count)
}

// GetResetTime returns when identifier's current window ends. It reports
// false when there is no active window.
func (l *Limiter) GetResetTime(ctx context.Context, identifier string) (time.Time, bool) {
	entry := l.lookup(ctx, identifier)
	if entry == nil || entry.Expired(l.config.Now()) {
		return time.Time{}, false
	}
	return entry.WindowResetAt, true
}

// Reset clears identifier from the shared store and the local fallback.
// The local copy is always cleared; a shared store failure is returned.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	_ = l.local.Delete(ctx, identifier)

	if err := l.store.Delete(ctx, identifier); err != nil {
		return fmt.Errorf("reset %q: %w", identifier, err)
	}

	l.logger.Info("rate limit reset", "identifier", identifier)
	return nil
}

// Config returns the limiter configuration with defaults applied.
func (l *Limiter) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Close stops the local fallback. The shared store is owned by the caller.
func (l *Limiter) Close() error {
	return l.local.Close()
}

// lookup reads the entry from the shared store, falling back to the local
// cache when the store is unreachable.
func (l *Limiter) lookup(ctx context.Context, identifier string) *storage.RateLimitEntry {
	if identifier == "" {
		return nil
	}

	entry, err := l.store.Get(ctx, identifier)
	if err == nil {
		return entry
	}

	l.logger.Debug("shared rate limit store unavailable for read", "identifier", identifier, "error", err)

	entry, _ = l.local.Get(ctx, identifier)
	return entry
}

// evaluate runs one fixed-window check against s.
func evaluate(ctx context.Context, s storage.Store, identifier string, limit int, window time.Duration, now time.Time) (*Decision, error) {
	entry, err := s.Get(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if entry == nil || entry.Expired(now) {
		fresh := &storage.RateLimitEntry{
			Identifier:    identifier,
			Count:         1,
			WindowResetAt: now.Add(window),
			LastAccessAt:  now,
		}
		if err := s.Put(ctx, fresh); err != nil {
			return nil, err
		}
		return &Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - 1,
			ResetAt:   fresh.WindowResetAt,
		}, nil
	}

	if entry.Count >= limit {
		return &Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    entry.WindowResetAt,
			RetryAfter: entry.WindowResetAt.Sub(now),
			Reason:     ReasonLimitExceeded,
		}, nil
	}

	next := entry.Clone()
	next.Count++
	next.LastAccessAt = now

	swapped, err := s.CompareAndSwap(ctx, identifier, entry.Version, next)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Lost the race. The window still has room, so only a short wait is hinted.
		return &Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  max(0, limit-entry.Count-1),
			ResetAt:    entry.WindowResetAt,
			RetryAfter: min(time.Second, entry.WindowResetAt.Sub(now)),
			Reason:     ReasonConcurrentUpdate,
		}, nil
	}

	return &Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - next.Count,
		ResetAt:   entry.WindowResetAt,
	}, nil
}

func validate(identifier string, limit int, window time.Duration) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if limit < 1 {
		return fmt.Errorf("limit must be >= 1, got %d", limit)
	}
	if window <= 0 {
		return fmt.Errorf("window must be positive, got %s", window)
	}
	return nil
}

func result(d *Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return "denied"
}
