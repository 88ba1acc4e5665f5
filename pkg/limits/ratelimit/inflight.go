package ratelimit

import (
	"sync"
	"sync/atomic"
)

// InFlightLimiter caps how many calls to an upstream one process runs at the
// same time. It is a counting semaphore on atomics; callers that fail to
// acquire are expected to degrade rather than wait.
//
// A limit <= 0 disables the cap.
type InFlightLimiter struct {
	limit   int64
	current atomic.Int64
}

// NewInFlightLimiter creates a limiter admitting up to limit concurrent calls.
func NewInFlightLimiter(limit int) *InFlightLimiter {
	return &InFlightLimiter{limit: int64(limit)}
}

// TryAcquire takes a slot without blocking. On success the returned release
// func must be called once the call finishes; calling it more than once is
// harmless.
//
//	release, ok := guard.TryAcquire()
//	if !ok {
//	    return fallback()
//	}
//	defer release()
func (l *InFlightLimiter) TryAcquire() (release func(), ok bool) {
	if l.limit <= 0 {
		return func() {}, true
	}

	if l.current.Add(1) > l.limit {
		l.current.Add(-1)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.current.Add(-1) })
	}, true
}

// InFlight returns the number of calls currently holding a slot.
func (l *InFlightLimiter) InFlight() int64 {
	return l.current.Load()
}

// Limit returns the configured cap.
func (l *InFlightLimiter) Limit() int64 {
	return l.limit
}
