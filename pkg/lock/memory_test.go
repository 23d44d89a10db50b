package lock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquire_Exclusive(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()
	key := ResourceKey("66f1a2b3c4d5e6f7a8b9c0d1")

	ok, err := store.Acquire(ctx, key, "holder-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	ok, err = store.Acquire(ctx, key, "holder-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second acquire to fail while lock is held")
	}
}

func TestAcquire_ConcurrentSingleWinner(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()
	key := ResourceKey("66f1a2b3c4d5e6f7a8b9c0d1")

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := store.Acquire(ctx, key, "holder", time.Minute)
			if err != nil {
				t.Errorf("attempt %d: unexpected error: %v", n, err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

func TestAcquire_AfterTTLElapsed(t *testing.T) {
	store := NewMemoryLockStore()
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()
	key := ResourceKey("66f1a2b3c4d5e6f7a8b9c0d1")

	ok, _ := store.Acquire(ctx, key, "crashed-holder", 10*time.Second)
	if !ok {
		t.Fatal("expected acquire to succeed")
	}

	// Holder never releases. Before the TTL passes the key stays taken.
	current = current.Add(9 * time.Second)
	if ok, _ = store.Acquire(ctx, key, "new-holder", 10*time.Second); ok {
		t.Fatal("expected acquire to fail before TTL elapsed")
	}

	current = current.Add(2 * time.Second)
	if ok, _ = store.Acquire(ctx, key, "new-holder", 10*time.Second); !ok {
		t.Fatal("expected acquire to succeed after TTL elapsed")
	}
}

func TestRelease_OnlyHolderReleases(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()
	key := ResourceKey("66f1a2b3c4d5e6f7a8b9c0d1")

	if ok, _ := store.Acquire(ctx, key, "holder-1", time.Minute); !ok {
		t.Fatal("expected acquire to succeed")
	}

	// A non-holder release is a no-op, not an error.
	if err := store.Release(ctx, key, "someone-else"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := store.Acquire(ctx, key, "holder-2", time.Minute); ok {
		t.Fatal("expected lock to still be held after foreign release")
	}

	if err := store.Release(ctx, key, "holder-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := store.Acquire(ctx, key, "holder-2", time.Minute); !ok {
		t.Fatal("expected acquire to succeed after holder released")
	}
}

func TestRelease_StaleIsSuccess(t *testing.T) {
	store := NewMemoryLockStore()
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()
	key := ResourceKey("66f1a2b3c4d5e6f7a8b9c0d1")

	if ok, _ := store.Acquire(ctx, key, "holder-1", 5*time.Second); !ok {
		t.Fatal("expected acquire to succeed")
	}

	current = current.Add(6 * time.Second)
	if ok, _ := store.Acquire(ctx, key, "holder-2", time.Minute); !ok {
		t.Fatal("expected takeover after expiry")
	}

	// holder-1 releasing after its TTL expired must not disturb holder-2.
	if err := store.Release(ctx, key, "holder-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := store.Acquire(ctx, key, "holder-3", time.Minute); ok {
		t.Fatal("stale release must not free the new holder's lock")
	}
}
