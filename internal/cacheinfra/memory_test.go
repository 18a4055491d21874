package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestStore(t *testing.T, capacity int) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(Config{Capacity: capacity}, nil)
	if err != nil {
		t.Fatalf("NewMemoryStore() failed: %v", err)
	}
	return store
}

func TestMemoryStore_GetOrFetch_CachesWithinTTL(t *testing.T) {
	store := newTestStore(t, 10)
	calls := 0
	fetch := func(ctx context.Context) (any, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		got, err := store.GetOrFetch(context.Background(), "k", time.Minute, fetch)
		if err != nil {
			t.Fatalf("GetOrFetch() failed: %v", err)
		}
		if got != "value" {
			t.Fatalf("expected %q, got %v", "value", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
}

func TestMemoryStore_GetOrFetch_RefetchesAfterExpiry(t *testing.T) {
	store := newTestStore(t, 10)
	calls := 0
	fetch := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	if _, err := store.GetOrFetch(context.Background(), "k", 50*time.Millisecond, fetch); err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	got, err := store.GetOrFetch(context.Background(), "k", 50*time.Millisecond, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch() after expiry failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 fetches, got %d", calls)
	}
	if got != 2 {
		t.Errorf("expected refetched value 2, got %v", got)
	}
}

func TestMemoryStore_GetOrFetch_StaleFallback(t *testing.T) {
	store := newTestStore(t, 10)
	store.Set("k", "stale", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	got, err := store.GetOrFetch(context.Background(), "k", time.Minute, func(ctx context.Context) (any, error) {
		return nil, errors.New("backend down")
	})
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if got != "stale" {
		t.Errorf("expected stale value, got %v", got)
	}
}

func TestMemoryStore_GetOrFetch_ErrorWithoutFallback(t *testing.T) {
	store := newTestStore(t, 10)
	wantErr := errors.New("backend down")

	_, err := store.GetOrFetch(context.Background(), "missing", time.Minute, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected fetch error to propagate, got %v", err)
	}
}

func TestMemoryStore_Set_EvictsOldestAtCapacity(t *testing.T) {
	store := newTestStore(t, 3)
	store.Set("a", 1, time.Minute)
	store.Set("b", 2, time.Minute)
	store.Set("c", 3, time.Minute)
	store.Set("d", 4, time.Minute)

	if store.Len() != 3 {
		t.Fatalf("expected len 3, got %d", store.Len())
	}
	if _, err := store.GetOrFetch(context.Background(), "a", time.Minute, func(ctx context.Context) (any, error) {
		return "refetched", nil
	}); err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}
	// "a" was evicted, so the fetch ran and restored it (evicting "b" in
	// turn); the newest entry must still be cached.
	got, _ := store.GetOrFetch(context.Background(), "d", time.Minute, func(ctx context.Context) (any, error) {
		return "wrong", nil
	})
	if got != 4 {
		t.Errorf("expected d to survive eviction, got %v", got)
	}
}

func TestMemoryStore_Set_OverwriteDoesNotEvict(t *testing.T) {
	store := newTestStore(t, 2)
	store.Set("a", 1, time.Minute)
	store.Set("b", 2, time.Minute)
	store.Set("a", 10, time.Minute)

	if store.Len() != 2 {
		t.Errorf("expected len 2 after overwrite, got %d", store.Len())
	}
	got, _ := store.GetOrFetch(context.Background(), "b", time.Minute, func(ctx context.Context) (any, error) {
		return "wrong", nil
	})
	if got != 2 {
		t.Errorf("overwrite must not evict, got %v for b", got)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := newTestStore(t, 10)
	store.Set("k", "v", time.Minute)

	if !store.Delete("k") {
		t.Error("expected Delete to report existing key")
	}
	if store.Delete("k") {
		t.Error("expected Delete to report missing key")
	}
}

func TestMemoryStore_InvalidatePattern(t *testing.T) {
	store := newTestStore(t, 10)
	store.Set("services::find_by_id::1", 1, time.Minute)
	store.Set("services::find_many::all", 2, time.Minute)
	store.Set("projects::find_by_id::1", 3, time.Minute)

	removed, err := store.InvalidatePattern("^services::")
	if err != nil {
		t.Fatalf("InvalidatePattern() failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", store.Len())
	}
}

func TestMemoryStore_InvalidatePattern_BadRegex(t *testing.T) {
	store := newTestStore(t, 10)
	if _, err := store.InvalidatePattern("("); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := newTestStore(t, 10)
	for i := 0; i < 5; i++ {
		store.Set(fmt.Sprintf("k%d", i), i, time.Minute)
	}
	store.Clear()
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", store.Len())
	}
}

func TestMemoryStore_SweepRemovesExpired(t *testing.T) {
	store, err := NewMemoryStore(Config{Capacity: 10, CleanupInterval: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewMemoryStore() failed: %v", err)
	}
	store.Set("short", 1, 10*time.Millisecond)
	store.Set("long", 2, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartSweep(ctx)

	deadline := time.Now().Add(time.Second)
	for store.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if store.Len() != 1 {
		t.Errorf("expected sweep to remove expired entry, len=%d", store.Len())
	}
}
