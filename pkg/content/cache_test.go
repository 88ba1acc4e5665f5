package content

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/tutor/pkg/database"
	"mercator-hq/tutor/pkg/resilience"
)

func newCaches(t *testing.T, maxEntries int) map[string]Cache {
	t.Helper()

	caches := map[string]Cache{"memory": NewMemoryCache(maxEntries)}
	for _, driver := range []string{database.DriverModernc, database.DriverMattn} {
		c, err := NewSQLiteCache(SQLiteCacheConfig{
			DB:         database.Config{Driver: driver, Path: filepath.Join(t.TempDir(), "cache.db")},
			MaxEntries: maxEntries,
		})
		if err != nil {
			t.Fatalf("NewSQLiteCache(%s) error = %v", driver, err)
		}
		caches["sqlite/"+driver] = c
	}

	t.Cleanup(func() {
		for _, c := range caches {
			c.Close()
		}
	})
	return caches
}

func TestCache_Contract(t *testing.T) {
	for name, cache := range newCaches(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

			entry, err := cache.Get(ctx, "missing")
			if err != nil || entry != nil {
				t.Fatalf("Get(missing) = %v, %v; want nil, nil", entry, err)
			}

			if err := cache.Set(ctx, "k", []byte("v1"), at); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := cache.Set(ctx, "k", []byte("v2"), at.Add(time.Minute)); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}

			entry, err = cache.Get(ctx, "k")
			if err != nil || entry == nil {
				t.Fatalf("Get(k) = %v, %v", entry, err)
			}
			if string(entry.Payload) != "v2" {
				t.Errorf("Payload = %q, want v2", entry.Payload)
			}
			if !entry.Timestamp.Equal(at.Add(time.Minute)) {
				t.Errorf("Timestamp = %v, want %v", entry.Timestamp, at.Add(time.Minute))
			}

			if err := cache.Set(ctx, "", []byte("x"), at); err == nil {
				t.Error("Set with empty key should fail")
			}
		})
	}
}

func TestCache_StoragePressure(t *testing.T) {
	for name, cache := range newCaches(t, 2) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			for _, key := range []string{"a", "b"} {
				if err := cache.Set(ctx, key, []byte(key), now); err != nil {
					t.Fatalf("Set(%s) error = %v", key, err)
				}
			}

			err := cache.Set(ctx, "c", []byte("c"), now)
			if !errors.Is(err, ErrStoragePressure) {
				t.Fatalf("Set over capacity = %v, want ErrStoragePressure", err)
			}

			if err := cache.Set(ctx, "a", []byte("a2"), now); err != nil {
				t.Errorf("replacing an existing key at capacity should succeed, got %v", err)
			}
		})
	}
}

func TestCache_Purge(t *testing.T) {
	for name, cache := range newCaches(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

			mustSet := func(key string, at time.Time) {
				if err := cache.Set(ctx, key, []byte(key), at); err != nil {
					t.Fatalf("Set(%s) error = %v", key, err)
				}
			}
			mustSet("before", cutoff.Add(-time.Second))
			mustSet("at", cutoff)
			mustSet("after", cutoff.Add(time.Second))

			n, err := cache.Purge(ctx, cutoff)
			if err != nil {
				t.Fatalf("Purge() error = %v", err)
			}
			if n != 1 {
				t.Errorf("Purge() = %d, want 1", n)
			}

			for key, wantPresent := range map[string]bool{"before": false, "at": true, "after": true} {
				entry, _ := cache.Get(ctx, key)
				if (entry != nil) != wantPresent {
					t.Errorf("%s present = %v, want %v", key, entry != nil, wantPresent)
				}
			}
		})
	}
}

func TestMemoryCache_Unavailable(t *testing.T) {
	cache := NewMemoryCache(10)
	cache.SetUnavailable(true)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "k"); !resilience.IsInfraError(err) {
		t.Errorf("Get() error = %v, want infra error", err)
	}
	if err := cache.Set(ctx, "k", nil, time.Now()); !resilience.IsInfraError(err) {
		t.Errorf("Set() error = %v, want infra error", err)
	}
	if err := cache.Ping(ctx); err == nil {
		t.Error("Ping() should fail while unavailable")
	}

	cache.SetUnavailable(false)
	if err := cache.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v after recovery", err)
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	cache := NewMemoryCache(10)
	ctx := context.Background()
	if err := cache.Set(ctx, "k", []byte("abc"), time.Now()); err != nil {
		t.Fatal(err)
	}

	entry, _ := cache.Get(ctx, "k")
	entry.Payload[0] = 'z'

	again, _ := cache.Get(ctx, "k")
	if string(again.Payload) != "abc" {
		t.Errorf("stored payload mutated through Get: %q", again.Payload)
	}
}

func TestSQLiteCache_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	at := time.Date(2026, 2, 2, 2, 2, 2, 2, time.UTC)

	c, err := NewSQLiteCache(SQLiteCacheConfig{DB: database.Config{Path: path}})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "lesson:1", []byte(`{"title":"x"}`), at); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	c, err = NewSQLiteCache(SQLiteCacheConfig{DB: database.Config{Path: path}})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	entry, err := c.Get(ctx, "lesson:1")
	if err != nil || entry == nil {
		t.Fatalf("Get() after reopen = %v, %v", entry, err)
	}
	if !entry.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", entry.Timestamp, at)
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
