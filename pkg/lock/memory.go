package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	holder    string
	expiresAt time.Time
}

// MemoryLockStore is a mutex-guarded in-process LockStore for tests and
// single-node runs. Expired entries are lazily overwritten on the next
// Acquire of the same key.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{
		locks: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (s *MemoryLockStore) Acquire(_ context.Context, key, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.locks[key]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}

	s.locks[key] = memoryEntry{
		holder:    holder,
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

func (s *MemoryLockStore) Release(_ context.Context, key, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.locks[key]; ok && entry.holder == holder {
		delete(s.locks, key)
	}
	return nil
}
