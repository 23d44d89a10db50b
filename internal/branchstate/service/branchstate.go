package service

import (
	"context"
	"sync"
	"time"

	availrepo "deskhive/internal/availability/repository"
	"deskhive/pkg/config"
	apperrors "deskhive/pkg/errors"
	"deskhive/pkg/events"
	"deskhive/pkg/kafka"
	"deskhive/pkg/model"
)

// BranchStateService projects the availability ledger into a per-branch
// occupancy signal. States are cached and invalidated by booking events, so
// a read between the commit and the event arriving may be briefly stale.
// That is acceptable: the label is advisory, the ledger stays authoritative.
type BranchStateService interface {
	GetState(ctx context.Context, branchID string) (*model.BranchState, error)

	// Invalidate drops the cached state for a branch. The next read
	// recomputes from the ledger.
	Invalidate(branchID string)
}

type branchStateService struct {
	slots availrepo.SlotStore
	cfg   *config.Config
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]*model.BranchState
}

func NewBranchStateService(slots availrepo.SlotStore, cfg *config.Config) BranchStateService {
	return &branchStateService{
		slots: slots,
		cfg:   cfg,
		now:   time.Now,
		cache: make(map[string]*model.BranchState),
	}
}

func (s *branchStateService) GetState(ctx context.Context, branchID string) (*model.BranchState, error) {
	if branchID == "" {
		return nil, apperrors.InvalidInput("Branch ID cannot be empty")
	}

	s.mu.RLock()
	if state, ok := s.cache[branchID]; ok {
		copied := *state
		s.mu.RUnlock()
		return &copied, nil
	}
	s.mu.RUnlock()

	slots, err := s.slots.FindByBranch(ctx, branchID)
	if err != nil {
		s.cfg.Log.Error("Failed to load branch slots", "branch_id", branchID, "error", err)
		return nil, apperrors.Internal("Failed to compute branch state", err)
	}
	if len(slots) == 0 {
		return nil, apperrors.NotFoundWithID("Branch", branchID)
	}

	state := s.project(branchID, slots)

	s.mu.Lock()
	s.cache[branchID] = state
	s.mu.Unlock()

	copied := *state
	return &copied, nil
}

func (s *branchStateService) Invalidate(branchID string) {
	s.mu.Lock()
	delete(s.cache, branchID)
	s.mu.Unlock()
}

func (s *branchStateService) project(branchID string, slots []*model.AvailabilitySlot) *model.BranchState {
	reserved, total := 0, 0
	for _, slot := range slots {
		reserved += slot.ReservedUnits()
		total += slot.TotalUnits
	}

	pct := 0
	if total > 0 {
		pct = reserved * 100 / total
	}

	return &model.BranchState{
		BranchID:      branchID,
		ReservedUnits: reserved,
		TotalUnits:    total,
		OccupancyPct:  pct,
		Label:         s.label(pct),
		ComputedAt:    s.now().UTC(),
	}
}

func (s *branchStateService) label(pct int) string {
	switch {
	case pct >= s.cfg.BusyThreshold:
		return model.OccupancyBusy
	case pct >= s.cfg.ModerateThreshold:
		return model.OccupancyModerate
	default:
		return model.OccupancyCalm
	}
}

// NewBookingEventHandler returns the consumer callback that keeps the cache
// honest: any event on the bookings topic that names a branch drops that
// branch's cached state. Slot block toggles ride the same topic, so only the
// branch_id field is read.
func NewBookingEventHandler(svc BranchStateService, cfg *config.Config) kafka.MessageHandler {
	return func(_ context.Context, msg kafka.Message) error {
		var event events.BookingEvent
		if err := msg.DecodeValue(&event); err != nil {
			cfg.Log.Warn("Dropping undecodable event", "event_id", msg.GetEventID(), "error", err)
			return nil
		}
		if event.BranchID == "" {
			return nil
		}

		svc.Invalidate(event.BranchID)
		return nil
	}
}
