package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/tutor/pkg/database"
	"mercator-hq/tutor/pkg/resilience"
)

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// storeFactories returns every Store implementation under contract test.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"local": func(t *testing.T) Store {
			return NewLocalCacheWithConfig(LocalCacheConfig{CleanupInterval: -1})
		},
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(LocalCacheConfig{CleanupInterval: -1})
		},
		"sqlite": func(t *testing.T) Store {
			return newTestSQLiteStore(t, database.DriverModernc)
		},
		"sqlite3": func(t *testing.T) Store {
			return newTestSQLiteStore(t, database.DriverMattn)
		},
	}
}

func newTestSQLiteStore(t *testing.T, driver string) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(SQLiteStoreConfig{
		DB: database.Config{
			Driver: driver,
			Path:   filepath.Join(t.TempDir(), "ratelimit.db"),
		},
		MaintenanceInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func freshEntry(id string, count int) *RateLimitEntry {
	return &RateLimitEntry{
		Identifier:    id,
		Count:         count,
		WindowResetAt: testEpoch.Add(time.Minute),
		LastAccessAt:  testEpoch,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			missing, err := store.Get(ctx, "chat:nobody")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if missing != nil {
				t.Errorf("Expected nil for missing entry, got %+v", missing)
			}

			if err := store.Put(ctx, freshEntry("chat:u1", 1)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			got, err := store.Get(ctx, "chat:u1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got == nil {
				t.Fatal("Expected entry, got nil")
			}
			if got.Count != 1 {
				t.Errorf("Expected count 1, got %d", got.Count)
			}
			if !got.WindowResetAt.Equal(testEpoch.Add(time.Minute)) {
				t.Errorf("Expected reset %v, got %v", testEpoch.Add(time.Minute), got.WindowResetAt)
			}
			if !got.LastAccessAt.Equal(testEpoch) {
				t.Errorf("Expected last access %v, got %v", testEpoch, got.LastAccessAt)
			}
			if got.Version != 1 {
				t.Errorf("Expected version 1, got %d", got.Version)
			}
		})
	}
}

func TestStore_PutBumpsVersion(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			_ = store.Put(ctx, freshEntry("chat:u1", 3))
			before, _ := store.Get(ctx, "chat:u1")

			if err := store.Put(ctx, freshEntry("chat:u1", 1)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			ok, err := store.CompareAndSwap(ctx, "chat:u1", before.Version, freshEntry("chat:u1", 4))
			if err != nil {
				t.Fatalf("CompareAndSwap failed: %v", err)
			}
			if ok {
				t.Error("Expected swap against a replaced window to fail")
			}

			after, _ := store.Get(ctx, "chat:u1")
			if after.Count != 1 {
				t.Errorf("Expected count 1 from the fresh window, got %d", after.Count)
			}
		})
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			ok, err := store.CompareAndSwap(ctx, "chat:absent", 1, freshEntry("chat:absent", 2))
			if err != nil {
				t.Fatalf("CompareAndSwap failed: %v", err)
			}
			if ok {
				t.Error("Expected swap on missing entry to fail")
			}

			_ = store.Put(ctx, freshEntry("chat:u1", 1))
			current, _ := store.Get(ctx, "chat:u1")

			next := current.Clone()
			next.Count = 2
			ok, err = store.CompareAndSwap(ctx, "chat:u1", current.Version, next)
			if err != nil {
				t.Fatalf("CompareAndSwap failed: %v", err)
			}
			if !ok {
				t.Fatal("Expected swap with current version to succeed")
			}

			// Same expected version again is now stale.
			next.Count = 3
			ok, _ = store.CompareAndSwap(ctx, "chat:u1", current.Version, next)
			if ok {
				t.Error("Expected swap with stale version to fail")
			}

			got, _ := store.Get(ctx, "chat:u1")
			if got.Count != 2 {
				t.Errorf("Expected count 2, got %d", got.Count)
			}
			if got.Version != current.Version+1 {
				t.Errorf("Expected version %d, got %d", current.Version+1, got.Version)
			}
		})
	}
}

func TestStore_ConcurrentCompareAndSwapSingleWinner(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			_ = store.Put(ctx, freshEntry("chat:race", 1))
			current, _ := store.Get(ctx, "chat:race")

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					next := current.Clone()
					next.Count++
					ok, err := store.CompareAndSwap(ctx, "chat:race", current.Version, next)
					if err != nil {
						t.Errorf("CompareAndSwap failed: %v", err)
					}
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			if wins.Load() != 1 {
				t.Errorf("Expected exactly 1 winner, got %d", wins.Load())
			}
		})
	}
}

func TestStore_DeleteAndCleanup(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			for i := 0; i < 4; i++ {
				e := freshEntry(fmt.Sprintf("chat:u%d", i), 1)
				e.WindowResetAt = testEpoch.Add(time.Duration(i) * time.Minute)
				if err := store.Put(ctx, e); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			if err := store.Delete(ctx, "chat:u3"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := store.Delete(ctx, "chat:u3"); err != nil {
				t.Errorf("Delete of missing entry should be a no-op, got %v", err)
			}

			deleted, err := store.Cleanup(ctx, testEpoch.Add(90*time.Second))
			if err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if deleted != 2 {
				t.Errorf("Expected 2 expired windows removed, got %d", deleted)
			}

			remaining, _ := store.Get(ctx, "chat:u2")
			if remaining == nil {
				t.Error("Expected chat:u2 to survive cleanup")
			}
		})
	}
}

func TestStore_InvalidArguments(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			ctx := context.Background()

			if _, err := store.Get(ctx, ""); err == nil {
				t.Error("Expected error for empty identifier on Get")
			}
			if err := store.Put(ctx, nil); err == nil {
				t.Error("Expected error for nil entry on Put")
			}
			if err := store.Put(ctx, &RateLimitEntry{}); err == nil {
				t.Error("Expected error for empty identifier on Put")
			}
			if _, err := store.CompareAndSwap(ctx, "", 1, freshEntry("x", 1)); err == nil {
				t.Error("Expected error for empty identifier on CompareAndSwap")
			}
			if err := store.Ping(ctx); err != nil {
				t.Errorf("Ping failed: %v", err)
			}
		})
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewLocalCacheWithConfig(LocalCacheConfig{CleanupInterval: -1})
	defer store.Close()
	ctx := context.Background()

	_ = store.Put(ctx, freshEntry("chat:u1", 1))
	got, _ := store.Get(ctx, "chat:u1")
	got.Count = 99

	again, _ := store.Get(ctx, "chat:u1")
	if again.Count != 1 {
		t.Errorf("Expected stored count unaffected by caller mutation, got %d", again.Count)
	}
}

func TestLocalCache_EvictsExpiredFirst(t *testing.T) {
	now := testEpoch
	cache := NewLocalCacheWithConfig(LocalCacheConfig{
		MaxEntries:      3,
		CleanupInterval: -1,
		Now:             func() time.Time { return now },
	})
	defer cache.Close()
	ctx := context.Background()

	expired := freshEntry("chat:expired", 1)
	expired.WindowResetAt = testEpoch.Add(-time.Second)
	expired.LastAccessAt = testEpoch.Add(time.Minute) // most recently used, still expired

	_ = cache.Put(ctx, freshEntry("chat:a", 1))
	_ = cache.Put(ctx, expired)
	_ = cache.Put(ctx, freshEntry("chat:b", 1))
	_ = cache.Put(ctx, freshEntry("chat:c", 1))

	if cache.Size() != 3 {
		t.Errorf("Expected size 3, got %d", cache.Size())
	}
	if e, _ := cache.Get(ctx, "chat:expired"); e != nil {
		t.Error("Expected expired entry to be evicted first")
	}
	if e, _ := cache.Get(ctx, "chat:a"); e == nil {
		t.Error("Expected live entry chat:a to survive")
	}
	if cache.Evictions() != 1 {
		t.Errorf("Expected 1 eviction, got %d", cache.Evictions())
	}
}

func TestLocalCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	cache := NewLocalCacheWithConfig(LocalCacheConfig{
		MaxEntries:      2,
		CleanupInterval: -1,
		Now:             func() time.Time { return testEpoch },
	})
	defer cache.Close()
	ctx := context.Background()

	old := freshEntry("chat:old", 1)
	old.LastAccessAt = testEpoch.Add(-time.Hour)
	recent := freshEntry("chat:recent", 1)

	_ = cache.Put(ctx, old)
	_ = cache.Put(ctx, recent)
	_ = cache.Put(ctx, freshEntry("chat:new", 1))

	if e, _ := cache.Get(ctx, "chat:old"); e != nil {
		t.Error("Expected least recently accessed entry to be evicted")
	}
	if e, _ := cache.Get(ctx, "chat:recent"); e == nil {
		t.Error("Expected recent entry to survive")
	}
	if e, _ := cache.Get(ctx, "chat:new"); e == nil {
		t.Error("Expected new entry to be stored")
	}
}

func TestLocalCache_UpdateDoesNotEvict(t *testing.T) {
	cache := NewLocalCacheWithConfig(LocalCacheConfig{MaxEntries: 1, CleanupInterval: -1})
	defer cache.Close()
	ctx := context.Background()

	_ = cache.Put(ctx, freshEntry("chat:u1", 1))
	_ = cache.Put(ctx, freshEntry("chat:u1", 1))

	if cache.Evictions() != 0 {
		t.Errorf("Expected no evictions when replacing an existing key, got %d", cache.Evictions())
	}
}

func TestLocalCache_CleanupLoop(t *testing.T) {
	cache := NewLocalCacheWithConfig(LocalCacheConfig{
		CleanupInterval: 10 * time.Millisecond,
		Now:             func() time.Time { return testEpoch.Add(time.Hour) },
	})
	defer cache.Close()

	_ = cache.Put(context.Background(), freshEntry("chat:u1", 1))

	deadline := time.Now().Add(2 * time.Second)
	for cache.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cache.Size() != 0 {
		t.Errorf("Expected cleanup loop to remove expired entry, size %d", cache.Size())
	}
}

func TestLocalCache_CloseIdempotent(t *testing.T) {
	cache := NewLocalCache()
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestMemoryStore_Unavailable(t *testing.T) {
	store := NewMemoryStore(LocalCacheConfig{CleanupInterval: -1})
	defer store.Close()
	ctx := context.Background()

	_ = store.Put(ctx, freshEntry("chat:u1", 1))
	store.SetUnavailable(true)

	checks := map[string]error{}
	_, checks["get"] = store.Get(ctx, "chat:u1")
	checks["put"] = store.Put(ctx, freshEntry("chat:u1", 1))
	_, checks["cas"] = store.CompareAndSwap(ctx, "chat:u1", 1, freshEntry("chat:u1", 2))
	checks["delete"] = store.Delete(ctx, "chat:u1")
	_, checks["cleanup"] = store.Cleanup(ctx, testEpoch)
	checks["ping"] = store.Ping(ctx)

	for op, err := range checks {
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("%s: expected ErrUnavailable, got %v", op, err)
		}
		if !resilience.IsInfraError(err) {
			t.Errorf("%s: expected InfraError, got %T", op, err)
		}
	}

	store.SetUnavailable(false)
	got, err := store.Get(ctx, "chat:u1")
	if err != nil || got == nil {
		t.Errorf("Expected entry to survive outage, got %v, %v", got, err)
	}
}
