package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	availerrors "deskhive/internal/availability/errors"
	availrepo "deskhive/internal/availability/repository"
	bookingerrors "deskhive/internal/bookings/errors"
	"deskhive/internal/bookings/repository"
	"deskhive/internal/bookings/validator"
	"deskhive/pkg/config"
	dbmongo "deskhive/pkg/db/mongo"
	apperrors "deskhive/pkg/errors"
	"deskhive/pkg/events"
	"deskhive/pkg/kafka"
	"deskhive/pkg/lock"
	"deskhive/pkg/model"
	"deskhive/pkg/sanitizer"
)

// EventPublisher is the slice of the Kafka producer the booking engine
// needs. Nil when eventing is disabled.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type BookingService interface {
	// Create commits a reservation: it takes the resource lock, atomically
	// decrements the slot ledger and inserts the booking in one transaction,
	// then releases the lock. On contention it fails fast with
	// LOCK_CONTENTION rather than queueing.
	Create(ctx context.Context, booking *model.Booking) error

	GetByID(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*model.Booking, error)

	CheckIn(ctx context.Context, id string) (*model.Booking, error)
	Complete(ctx context.Context, id string) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.Booking, error)

	// NoShow marks an upcoming booking as a no-show and releases its units.
	// Anyone may call it once the check-in grace period after the slot start
	// has elapsed; force skips the wait for vendor staff.
	NoShow(ctx context.Context, id string, force bool) (*model.Booking, error)
}

type bookingService struct {
	bookings  repository.BookingRepository
	slots     availrepo.SlotStore
	locks     lock.LockStore
	tx        dbmongo.TransactionManager
	validator *validator.BookingValidator
	publisher EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

func NewBookingService(
	bookings repository.BookingRepository,
	slots availrepo.SlotStore,
	locks lock.LockStore,
	tx dbmongo.TransactionManager,
	v *validator.BookingValidator,
	publisher EventPublisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		bookings:  bookings,
		slots:     slots,
		locks:     locks,
		tx:        tx,
		validator: v,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *bookingService) Create(ctx context.Context, booking *model.Booking) error {
	booking.CustomerID = sanitizer.TrimAndNormalize(booking.CustomerID)
	if booking.Units == 0 {
		booking.Units = s.cfg.DefaultSlotUnits
	}
	booking.Status = model.StatusUpcoming

	slot, err := s.slots.FindByID(ctx, booking.SlotID)
	if err != nil {
		return translateSlotError(err, booking.SlotID)
	}
	if slot.ResourceID != booking.ResourceID {
		return apperrors.InvalidInput("Slot does not belong to the given resource")
	}

	// Slot is authoritative for placement and timing.
	booking.BranchID = slot.BranchID
	booking.StartTime = slot.StartTime
	booking.EndTime = slot.EndTime

	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	key := lock.ResourceKey(booking.ResourceID)
	holder := uuid.New().String()

	acquired, err := s.locks.Acquire(ctx, key, holder, s.cfg.LockTTL)
	if err != nil {
		s.cfg.Log.Error("Lock acquisition failed", "key", key, "error", err)
		return apperrors.Internal("Failed to acquire resource lock", err)
	}
	if !acquired {
		return apperrors.LockContention(key)
	}
	defer func() {
		if relErr := s.locks.Release(ctx, key, holder); relErr != nil {
			s.cfg.Log.Warn("Lock release failed", "key", key, "error", relErr)
		}
	}()

	err = s.tx.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.slots.Reserve(sessCtx, booking.ResourceID, booking.SlotID, booking.Units); err != nil {
			switch {
			case errors.Is(err, availerrors.ErrInsufficientUnits):
				return apperrors.InsufficientCapacity(booking.ResourceID, booking.SlotID, booking.Units)
			case errors.Is(err, availerrors.ErrSlotBlocked):
				return apperrors.SlotBlocked(booking.SlotID)
			default:
				return translateSlotError(err, booking.SlotID)
			}
		}
		return s.bookings.Create(sessCtx, booking)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		s.cfg.Log.Error("Booking commit failed", "resource_id", booking.ResourceID, "slot_id", booking.SlotID, "error", err)
		return apperrors.Internal("Failed to commit booking", err)
	}

	s.cfg.Log.Info("Booking created",
		"booking_id", booking.ID,
		"resource_id", booking.ResourceID,
		"slot_id", booking.SlotID,
		"units", booking.Units,
	)
	s.publishEvent(ctx, kafka.EventBookingCreated, booking)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, translateBookingError(err, id)
	}
	return booking, nil
}

func (s *bookingService) List(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	bookings, totalCount, err := s.bookings.FindAll(ctx, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings", "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve bookings", err)
	}
	return bookings, totalCount, nil
}

func (s *bookingService) ListByCustomer(ctx context.Context, customerID string) ([]*model.Booking, error) {
	if customerID == "" {
		return nil, apperrors.InvalidInput("customer_id is required")
	}

	bookings, err := s.bookings.FindByCustomer(ctx, customerID)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings", "customer_id", customerID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) CheckIn(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(model.StatusCheckedIn) {
		return nil, apperrors.InvalidStateTransition(booking.Status.String(), model.StatusCheckedIn.String())
	}

	// Check-in is only legal inside the grace window around the slot start.
	now := s.now()
	if now.Before(booking.StartTime.Add(-s.cfg.CheckInGrace)) || now.After(booking.StartTime.Add(s.cfg.CheckInGrace)) {
		return nil, apperrors.InvalidStateTransition(booking.Status.String(), model.StatusCheckedIn.String())
	}

	return s.transition(ctx, booking, model.StatusCheckedIn)
}

func (s *bookingService) Complete(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(model.StatusCompleted) {
		return nil, apperrors.InvalidStateTransition(booking.Status.String(), model.StatusCompleted.String())
	}

	return s.transition(ctx, booking, model.StatusCompleted)
}

func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(model.StatusCancelled) {
		return nil, apperrors.InvalidStateTransition(booking.Status.String(), model.StatusCancelled.String())
	}

	return s.transition(ctx, booking, model.StatusCancelled)
}

func (s *bookingService) NoShow(ctx context.Context, id string, force bool) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(model.StatusNoShow) {
		return nil, apperrors.InvalidStateTransition(booking.Status.String(), model.StatusNoShow.String())
	}

	// Before start+grace only vendor staff may flip it; the customer could
	// still show up.
	if !force && s.now().Before(booking.StartTime.Add(s.cfg.CheckInGrace)) {
		return nil, apperrors.InvalidStateTransition(booking.Status.String(), model.StatusNoShow.String())
	}

	return s.transition(ctx, booking, model.StatusNoShow)
}

// transition performs the guarded status flip and, when the target status
// releases units, credits the slot ledger in the same transaction. The flip
// guard means at most one caller wins, so a release can never be applied
// twice for one booking.
func (s *bookingService) transition(ctx context.Context, booking *model.Booking, to model.BookingStatus) (*model.Booking, error) {
	from := booking.Status

	err := s.tx.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.bookings.UpdateStatus(sessCtx, booking.ID, from, to); err != nil {
			if errors.Is(err, bookingerrors.ErrStatusChanged) {
				current, findErr := s.bookings.FindByID(sessCtx, booking.ID)
				if findErr != nil {
					return translateBookingError(findErr, booking.ID)
				}
				return apperrors.InvalidStateTransition(current.Status.String(), to.String())
			}
			return translateBookingError(err, booking.ID)
		}

		if to.ReleasesUnits() {
			if err := s.slots.Release(sessCtx, booking.ResourceID, booking.SlotID, booking.Units); err != nil {
				return translateSlotError(err, booking.SlotID)
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		s.cfg.Log.Error("Booking transition failed", "booking_id", booking.ID, "from", from, "to", to, "error", err)
		return nil, apperrors.Internal("Failed to update booking", err)
	}

	booking.Status = to
	booking.UpdatedAt = s.now()

	s.cfg.Log.Info("Booking transitioned",
		"booking_id", booking.ID,
		"from", from,
		"to", to,
	)
	s.publishEvent(ctx, kafka.EventBookingTransition, booking)
	return booking, nil
}

// publishEvent emits a booking event keyed by branch. Best effort: a broker
// failure is logged and does not fail the already-committed operation.
func (s *bookingService) publishEvent(ctx context.Context, eventType string, booking *model.Booking) {
	if s.publisher == nil {
		return
	}

	msg := kafka.NewMessage().
		WithKey(booking.BranchID).
		WithValue(events.BookingEvent{
			BookingID:  booking.ID,
			BranchID:   booking.BranchID,
			ResourceID: booking.ResourceID,
			SlotID:     booking.SlotID,
			Status:     booking.Status.String(),
			Units:      booking.Units,
			OccurredAt: s.now().UTC(),
		}).
		WithEventType(eventType).
		WithSource("deskhive-core").
		Build()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Error("Failed to publish booking event", "booking_id", booking.ID, "event_type", eventType, "error", err)
	}
}

func translateBookingError(err error, id string) error {
	switch {
	case errors.Is(err, bookingerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", id)
	case errors.Is(err, bookingerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")
	default:
		return apperrors.Internal("Booking store failure", err)
	}
}

func translateSlotError(err error, slotID string) error {
	switch {
	case errors.Is(err, availerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Slot", slotID)
	case errors.Is(err, availerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid slot ID format")
	case errors.Is(err, availerrors.ErrOverRelease):
		return apperrors.Internal("Slot ledger rejected release", err)
	default:
		return apperrors.Internal("Availability store failure", err)
	}
}
