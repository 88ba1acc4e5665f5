// Package storage provides the rate-limit counter stores.
//
// # Overview
//
// The Store interface holds fixed-window counters keyed by identifier and
// supports optimistic concurrency through a per-entry version:
//
//   - SQLiteStore: shared by every process opening the same database file
//   - MemoryStore: in-process shared store with outage simulation for tests
//   - LocalCache: bounded process-local fallback used while the shared store
//     is unreachable
//
// # Usage
//
//	store, err := storage.NewSQLiteStore(storage.SQLiteStoreConfig{
//	    DB: database.Config{Path: "data/ratelimit.db"},
//	})
//
//	entry, err := store.Get(ctx, "chat:user-42")
//	next := entry.Clone()
//	next.Count++
//	swapped, err := store.CompareAndSwap(ctx, entry.Identifier, entry.Version, next)
//
// # Errors
//
// Backend failures are returned as *resilience.InfraError wrapping
// ErrUnavailable. Invalid arguments are plain errors.
//
// # Thread Safety
//
// All stores are thread-safe and support concurrent access from multiple
// goroutines.
package storage
