package content

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Source tells where a result's content came from.
type Source string

const (
	SourcePrimary Source = "primary"
	SourceCache   Source = "cache"
	SourceStatic  Source = "static"
)

// ContentResult is the tagged outcome of GetWithFallback.
type ContentResult[T any] struct {
	Content T

	Source Source

	// IsFallback is true for cache and static results.
	IsFallback bool

	// ProducedAt is when the content was generated: now for primary and
	// static results, the cache entry timestamp for cached ones.
	ProducedAt time.Time

	// Err is the primary failure that was absorbed, nil for primary results.
	Err error
}

// Codec encodes content for the cache.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// JSONCodec encodes content with encoding/json.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Marshal(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// Config configures an Orchestrator.
type Config struct {
	// MaxAge is the oldest cache entry served as a fallback.
	// Default: 24 hours
	MaxAge time.Duration

	// Retention is the age past which entries are purged under storage
	// pressure.
	// Default: 7 days
	Retention time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Metrics receives orchestrator observations. A nil Metrics disables recording.
type Metrics interface {
	RecordContentResult(source string)
	RecordCacheLookup(hit bool)
	RecordCacheEvictions(n int)
	RecordCacheWriteFailure()
}

type noopMetrics struct{}

func (noopMetrics) RecordContentResult(source string) {}
func (noopMetrics) RecordCacheLookup(hit bool)        {}
func (noopMetrics) RecordCacheEvictions(n int)        {}
func (noopMetrics) RecordCacheWriteFailure()          {}

// Orchestrator composes a primary generator with a write-through cache and
// a static default.
//
// # Fallback Chain
//
//  1. generate succeeds: the value is written through to the cache and
//     returned with SourcePrimary.
//  2. generate fails: a cache entry no older than MaxAge is returned with
//     SourceCache.
//  3. otherwise the static default for the key is returned with SourceStatic.
//
// GetWithFallback never fails. Cache failures on either path are logged
// and counted, never surfaced.
type Orchestrator[T any] struct {
	cache    Cache
	defaults *Defaults[T]
	codec    Codec[T]
	config   Config
	logger   *slog.Logger
	metrics  Metrics
}

// NewOrchestrator creates an orchestrator. A nil codec selects JSONCodec.
func NewOrchestrator[T any](cache Cache, defaults *Defaults[T], config Config, codec Codec[T], logger *slog.Logger, metrics Metrics) *Orchestrator[T] {
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if defaults == nil {
		defaults = NewDefaults[T](nil)
	}
	if codec == nil {
		codec = JSONCodec[T]{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Orchestrator[T]{
		cache:    cache,
		defaults: defaults,
		codec:    codec,
		config:   config,
		logger:   logger.With("component", "content"),
		metrics:  metrics,
	}
}

// GetWithFallback returns content for key, falling back to the cache and
// then to the static default when generate fails.
//
// Example:
//
//	res := orch.GetWithFallback(ctx, "lesson:day-3:es", func(ctx context.Context) (Lesson, error) {
//	    return generator.Generate(ctx, 3, "es")
//	})
//	if res.IsFallback {
//	    // show "using saved/offline content"
//	}
func (o *Orchestrator[T]) GetWithFallback(ctx context.Context, key string, generate func(ctx context.Context) (T, error)) ContentResult[T] {
	value, err := generate(ctx)
	if err == nil {
		now := o.config.Now()
		o.writeThrough(ctx, key, value, now)
		o.metrics.RecordContentResult(string(SourcePrimary))
		return ContentResult[T]{
			Content:    value,
			Source:     SourcePrimary,
			ProducedAt: now,
		}
	}

	o.logger.Warn("primary content generation failed, falling back", "key", key, "error", err)

	if cached, at, ok := o.readCache(ctx, key); ok {
		o.metrics.RecordContentResult(string(SourceCache))
		return ContentResult[T]{
			Content:    cached,
			Source:     SourceCache,
			IsFallback: true,
			ProducedAt: at,
			Err:        err,
		}
	}

	o.logger.Warn("no usable cached content, serving static default", "key", key)
	o.metrics.RecordContentResult(string(SourceStatic))

	return ContentResult[T]{
		Content:    o.defaults.Resolve(key),
		Source:     SourceStatic,
		IsFallback: true,
		ProducedAt: o.config.Now(),
		Err:        err,
	}
}

// Purge removes cache entries older than the retention window.
func (o *Orchestrator[T]) Purge(ctx context.Context) (int, error) {
	n, err := o.cache.Purge(ctx, o.config.Now().Add(-o.config.Retention))
	if n > 0 {
		o.metrics.RecordCacheEvictions(n)
	}
	return n, err
}

// readCache returns a fresh cached value for key.
func (o *Orchestrator[T]) readCache(ctx context.Context, key string) (T, time.Time, bool) {
	var zero T

	entry, err := o.cache.Get(ctx, key)
	if err != nil {
		o.logger.Warn("content cache read failed", "key", key, "error", err)
		o.metrics.RecordCacheLookup(false)
		return zero, time.Time{}, false
	}
	if entry == nil {
		o.metrics.RecordCacheLookup(false)
		return zero, time.Time{}, false
	}
	if o.config.Now().Sub(entry.Timestamp) > o.config.MaxAge {
		o.logger.Debug("cached content too old", "key", key, "timestamp", entry.Timestamp)
		o.metrics.RecordCacheLookup(false)
		return zero, time.Time{}, false
	}

	value, err := o.codec.Unmarshal(entry.Payload)
	if err != nil {
		o.logger.Warn("cached content undecodable", "key", key, "error", err)
		o.metrics.RecordCacheLookup(false)
		return zero, time.Time{}, false
	}

	o.metrics.RecordCacheLookup(true)
	return value, entry.Timestamp, true
}

// writeThrough stores value, purging past-retention entries once if the
// cache is full.
func (o *Orchestrator[T]) writeThrough(ctx context.Context, key string, value T, now time.Time) {
	payload, err := o.codec.Marshal(value)
	if err != nil {
		o.logger.Warn("content not encodable, skipping cache write", "key", key, "error", err)
		o.metrics.RecordCacheWriteFailure()
		return
	}

	err = o.cache.Set(ctx, key, payload, now)
	if errors.Is(err, ErrStoragePressure) {
		purged, perr := o.cache.Purge(ctx, now.Add(-o.config.Retention))
		if perr != nil {
			o.logger.Warn("content cache purge failed", "error", perr)
		}
		if purged > 0 {
			o.metrics.RecordCacheEvictions(purged)
		}
		o.logger.Info("content cache under pressure, purged expired entries", "purged", purged)

		err = o.cache.Set(ctx, key, payload, now)
	}
	if err != nil {
		o.logger.Warn("content cache write failed", "key", key, "error", err)
		o.metrics.RecordCacheWriteFailure()
	}
}
