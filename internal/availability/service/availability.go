package service

import (
	"context"
	"errors"
	"time"

	availerrors "deskhive/internal/availability/errors"
	"deskhive/internal/availability/repository"
	"deskhive/internal/availability/validator"
	"deskhive/pkg/config"
	apperrors "deskhive/pkg/errors"
	"deskhive/pkg/events"
	"deskhive/pkg/kafka"
	"deskhive/pkg/model"
)

// EventPublisher is the slice of the Kafka producer the availability
// operations need. Nil when eventing is disabled.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// AvailabilityService exposes the browsing and vendor-facing slot
// operations. Commit-time reserve/release is not reachable from here; only
// the booking and approval engines mutate units, under the resource lock.
type AvailabilityService interface {
	CreateSlot(ctx context.Context, slot *model.AvailabilitySlot) error
	GetByID(ctx context.Context, id string) (*model.AvailabilitySlot, error)
	ListByResource(ctx context.Context, resourceID string) ([]*model.AvailabilitySlot, error)
	ToggleBlock(ctx context.Context, slotID string) (*model.AvailabilitySlot, error)
}

type availabilityService struct {
	slots     repository.SlotStore
	validator *validator.SlotValidator
	publisher EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

func NewAvailabilityService(slots repository.SlotStore, v *validator.SlotValidator, publisher EventPublisher, cfg *config.Config) AvailabilityService {
	return &availabilityService{
		slots:     slots,
		validator: v,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *availabilityService) CreateSlot(ctx context.Context, slot *model.AvailabilitySlot) error {
	if slot.TotalUnits > 0 && slot.AvailableUnits == 0 && !slot.Blocked {
		// A freshly opened slot starts fully available.
		slot.AvailableUnits = slot.TotalUnits
	}

	if err := s.validator.Validate(slot); err != nil {
		s.cfg.Log.Warn("Slot validation failed", "error", err)
		return apperrors.Validation("Slot validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.slots.Create(ctx, slot); err != nil {
		s.cfg.Log.Error("Failed to create slot", "resource_id", slot.ResourceID, "error", err)
		return apperrors.Internal("Failed to create slot", err)
	}

	s.cfg.Log.Info("Availability slot created",
		"slot_id", slot.ID,
		"resource_id", slot.ResourceID,
		"start_time", slot.StartTime,
		"total_units", slot.TotalUnits,
	)
	return nil
}

func (s *availabilityService) GetByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		return nil, translateSlotError(err, id)
	}
	return slot, nil
}

func (s *availabilityService) ListByResource(ctx context.Context, resourceID string) ([]*model.AvailabilitySlot, error) {
	if resourceID == "" {
		return nil, apperrors.InvalidInput("resource_id is required")
	}

	slots, err := s.slots.FindByResource(ctx, resourceID)
	if err != nil {
		s.cfg.Log.Error("Failed to list slots", "resource_id", resourceID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve availability", err)
	}
	return slots, nil
}

func (s *availabilityService) ToggleBlock(ctx context.Context, slotID string) (*model.AvailabilitySlot, error) {
	if slotID == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	blocked, err := s.slots.ToggleBlock(ctx, slotID)
	if err != nil {
		return nil, translateSlotError(err, slotID)
	}

	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, translateSlotError(err, slotID)
	}

	s.cfg.Log.Info("Slot block flag toggled",
		"slot_id", slotID,
		"blocked", blocked,
	)
	s.publishSlotEvent(ctx, slot)
	return slot, nil
}

// publishSlotEvent is best-effort; a failed publish only means a downstream
// projection stays stale until the next booking event on the branch.
func (s *availabilityService) publishSlotEvent(ctx context.Context, slot *model.AvailabilitySlot) {
	if s.publisher == nil {
		return
	}

	msg := kafka.NewMessage().
		WithKey(slot.BranchID).
		WithValue(events.SlotEvent{
			SlotID:     slot.ID,
			BranchID:   slot.BranchID,
			ResourceID: slot.ResourceID,
			Blocked:    slot.Blocked,
			OccurredAt: s.now().UTC(),
		}).
		WithEventType(kafka.EventAvailabilityChange).
		WithSource("deskhive-core").
		Build()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Error("Failed to publish slot event", "slot_id", slot.ID, "error", err)
	}
}

// translateSlotError maps repository sentinels onto the caller-facing
// taxonomy.
func translateSlotError(err error, slotID string) error {
	switch {
	case errors.Is(err, availerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Slot", slotID)
	case errors.Is(err, availerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid slot ID format")
	default:
		return apperrors.Internal("Availability store failure", err)
	}
}
