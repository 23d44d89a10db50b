package lock

import (
	"context"
	"fmt"
	"time"
)

// LockStore grants short-lived exclusive holds on resource keys. At most one
// live hold exists per key at any instant, enforced by the backing store.
//
// Acquire never blocks: it returns false immediately on contention, pushing
// retry policy to the caller. A holder that crashes without releasing is
// reclaimed after the TTL; that is the normal path, not an exception.
type LockStore interface {
	// Acquire atomically claims key for holder with the given TTL.
	// Returns false if another un-expired holder currently owns the key.
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)

	// Release frees key if holder still owns it. Releasing a lock you do
	// not hold, or one that already expired, is a no-op success: the
	// outcome is identical either way.
	Release(ctx context.Context, key, holder string) error
}

// ResourceKey is the lock key shared by booking commits and capacity
// rewrites on the same resource, so the two write paths cannot race.
func ResourceKey(resourceID string) string {
	return fmt.Sprintf("lock:resource:%s", resourceID)
}
