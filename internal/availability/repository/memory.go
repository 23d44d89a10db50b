package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	availerrors "deskhive/internal/availability/errors"
	"deskhive/pkg/model"
)

// MemorySlotStore is a mutex-guarded in-process SlotStore for tests and
// single-node runs. Each mutation holds the store lock for its whole
// check-and-update, giving the same atomicity as the Mongo conditional
// updates.
type MemorySlotStore struct {
	mu     sync.Mutex
	slots  map[string]*model.AvailabilitySlot
	nextID int
}

func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{
		slots: make(map[string]*model.AvailabilitySlot),
	}
}

func (s *MemorySlotStore) Create(_ context.Context, slot *model.AvailabilitySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot.ID == "" {
		s.nextID++
		slot.ID = fmt.Sprintf("%024x", s.nextID)
	}
	slot.CreatedAt = time.Now().UTC()

	copied := *slot
	s.slots[slot.ID] = &copied
	return nil
}

func (s *MemorySlotStore) FindByID(_ context.Context, id string) (*model.AvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, availerrors.ErrNotFound
	}
	copied := *slot
	return &copied, nil
}

func (s *MemorySlotStore) FindByResource(_ context.Context, resourceID string) ([]*model.AvailabilitySlot, error) {
	return s.filter(func(slot *model.AvailabilitySlot) bool {
		return slot.ResourceID == resourceID
	}), nil
}

func (s *MemorySlotStore) FindByBranch(_ context.Context, branchID string) ([]*model.AvailabilitySlot, error) {
	return s.filter(func(slot *model.AvailabilitySlot) bool {
		return slot.BranchID == branchID
	}), nil
}

func (s *MemorySlotStore) filter(keep func(*model.AvailabilitySlot) bool) []*model.AvailabilitySlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.AvailabilitySlot
	for _, slot := range s.slots {
		if keep(slot) {
			copied := *slot
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (s *MemorySlotStore) Reserve(_ context.Context, resourceID, slotID string, units int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok || slot.ResourceID != resourceID {
		return availerrors.ErrNotFound
	}
	if slot.Blocked {
		return availerrors.ErrSlotBlocked
	}
	if slot.AvailableUnits < units {
		return availerrors.ErrInsufficientUnits
	}

	slot.AvailableUnits -= units
	return nil
}

func (s *MemorySlotStore) Release(_ context.Context, resourceID, slotID string, units int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok || slot.ResourceID != resourceID {
		return availerrors.ErrNotFound
	}
	if slot.AvailableUnits+units > slot.TotalUnits {
		return availerrors.ErrOverRelease
	}

	slot.AvailableUnits += units
	return nil
}

func (s *MemorySlotStore) ToggleBlock(_ context.Context, slotID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return false, availerrors.ErrNotFound
	}

	slot.Blocked = !slot.Blocked
	return slot.Blocked, nil
}

func (s *MemorySlotStore) Rebase(_ context.Context, resourceID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		if slot.ResourceID == resourceID {
			slot.AvailableUnits += delta
			slot.TotalUnits += delta
		}
	}
	return nil
}
