package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	approvalerrors "deskhive/internal/approvals/errors"
	"deskhive/internal/approvals/repository"
	availrepo "deskhive/internal/availability/repository"
	bookingrepo "deskhive/internal/bookings/repository"
	resourceerrors "deskhive/internal/resources/errors"
	resourcerepo "deskhive/internal/resources/repository"
	"deskhive/pkg/config"
	dbmongo "deskhive/pkg/db/mongo"
	apperrors "deskhive/pkg/errors"
	"deskhive/pkg/events"
	"deskhive/pkg/kafka"
	"deskhive/pkg/lock"
	"deskhive/pkg/model"
	"deskhive/pkg/sanitizer"
)

// EventPublisher is the slice of the Kafka producer the approval engine
// needs. Nil when eventing is disabled.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type ApprovalService interface {
	// Create opens a capacity-change request, snapshotting the resource's
	// current capacity as the old value. The resource itself is untouched
	// until a reviewer approves.
	Create(ctx context.Context, request *model.ApprovalRequest) error

	GetByID(ctx context.Context, id string) (*model.ApprovalRequest, error)
	ListByStatus(ctx context.Context, status model.ApprovalStatus) ([]*model.ApprovalRequest, error)
	ListByResource(ctx context.Context, resourceID string) ([]*model.ApprovalRequest, error)

	// Approve commits the capacity change: under the resource lock it
	// verifies the new capacity covers every committed reservation, then
	// rewrites the resource capacity, rebases all its slots and marks the
	// request approved in one transaction. A new capacity below the
	// committed reservations fails with CAPACITY_CONFLICT and changes
	// nothing.
	Approve(ctx context.Context, id, reviewerID, notes string) (*model.ApprovalRequest, error)

	// Reject closes the request without touching the resource. Notes are
	// required so the vendor learns why.
	Reject(ctx context.Context, id, reviewerID, notes string) (*model.ApprovalRequest, error)
}

type approvalService struct {
	approvals repository.ApprovalRepository
	resources resourcerepo.ResourceRepository
	bookings  bookingrepo.BookingRepository
	slots     availrepo.SlotStore
	locks     lock.LockStore
	tx        dbmongo.TransactionManager
	validate  *validator.Validate
	publisher EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

func NewApprovalService(
	approvals repository.ApprovalRepository,
	resources resourcerepo.ResourceRepository,
	bookings bookingrepo.BookingRepository,
	slots availrepo.SlotStore,
	locks lock.LockStore,
	tx dbmongo.TransactionManager,
	publisher EventPublisher,
	cfg *config.Config,
) ApprovalService {
	return &approvalService{
		approvals: approvals,
		resources: resources,
		bookings:  bookings,
		slots:     slots,
		locks:     locks,
		tx:        tx,
		validate:  validator.New(),
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *approvalService) Create(ctx context.Context, request *model.ApprovalRequest) error {
	request.Reason = sanitizer.NormalizeFreeText(request.Reason)
	if request.RequestType == "" {
		request.RequestType = model.ApprovalTypeCapacityChange
	}
	request.Status = model.ApprovalPending
	request.ReviewerID = ""
	request.ReviewNotes = ""
	request.DecidedAt = nil

	resource, err := s.resources.FindByID(ctx, request.ResourceID)
	if err != nil {
		return translateResourceError(err, request.ResourceID)
	}
	request.BranchID = resource.BranchID
	request.OldValue = resource.TotalCapacity

	if request.NewValue == request.OldValue {
		return apperrors.InvalidInput("Requested capacity equals the current capacity")
	}

	if err := s.validate.Struct(request); err != nil {
		s.cfg.Log.Warn("Approval request validation failed", "error", err)
		return apperrors.Validation("Approval request validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.approvals.Create(ctx, request); err != nil {
		s.cfg.Log.Error("Failed to create approval request", "resource_id", request.ResourceID, "error", err)
		return apperrors.Internal("Failed to create approval request", err)
	}

	s.cfg.Log.Info("Approval request created",
		"request_id", request.ID,
		"resource_id", request.ResourceID,
		"old_value", request.OldValue,
		"new_value", request.NewValue,
	)
	return nil
}

func (s *approvalService) GetByID(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Approval request ID cannot be empty")
	}

	request, err := s.approvals.FindByID(ctx, id)
	if err != nil {
		return nil, translateApprovalError(err, id)
	}
	return request, nil
}

func (s *approvalService) ListByStatus(ctx context.Context, status model.ApprovalStatus) ([]*model.ApprovalRequest, error) {
	switch status {
	case model.ApprovalPending, model.ApprovalApproved, model.ApprovalRejected:
	default:
		return nil, apperrors.InvalidInput("Unknown approval status: " + status.String())
	}

	requests, err := s.approvals.FindByStatus(ctx, status)
	if err != nil {
		s.cfg.Log.Error("Failed to list approval requests", "status", status, "error", err)
		return nil, apperrors.Internal("Failed to retrieve approval requests", err)
	}
	return requests, nil
}

func (s *approvalService) ListByResource(ctx context.Context, resourceID string) ([]*model.ApprovalRequest, error) {
	if resourceID == "" {
		return nil, apperrors.InvalidInput("resource_id is required")
	}

	requests, err := s.approvals.FindByResource(ctx, resourceID)
	if err != nil {
		s.cfg.Log.Error("Failed to list approval requests", "resource_id", resourceID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve approval requests", err)
	}
	return requests, nil
}

func (s *approvalService) Approve(ctx context.Context, id, reviewerID, notes string) (*model.ApprovalRequest, error) {
	request, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, apperrors.InvalidStateTransition(request.Status.String(), model.ApprovalApproved.String())
	}

	key := lock.ResourceKey(request.ResourceID)
	holder := uuid.New().String()

	acquired, err := s.locks.Acquire(ctx, key, holder, s.cfg.LockTTL)
	if err != nil {
		s.cfg.Log.Error("Lock acquisition failed", "key", key, "error", err)
		return nil, apperrors.Internal("Failed to acquire resource lock", err)
	}
	if !acquired {
		return nil, apperrors.LockContention(key)
	}
	defer func() {
		if relErr := s.locks.Release(ctx, key, holder); relErr != nil {
			s.cfg.Log.Warn("Lock release failed", "key", key, "error", relErr)
		}
	}()

	// Re-read under the lock: the snapshot taken at request time may be
	// stale by the time a reviewer gets here.
	resource, err := s.resources.FindByID(ctx, request.ResourceID)
	if err != nil {
		return nil, translateResourceError(err, request.ResourceID)
	}

	committed, err := s.bookings.MaxCommittedUnits(ctx, request.ResourceID)
	if err != nil {
		s.cfg.Log.Error("Failed to compute committed units", "resource_id", request.ResourceID, "error", err)
		return nil, apperrors.Internal("Failed to compute committed reservations", err)
	}
	if request.NewValue < committed {
		return nil, apperrors.CapacityConflict(request.ResourceID, request.NewValue, committed)
	}

	delta := request.NewValue - resource.TotalCapacity
	notes = sanitizer.NormalizeFreeText(notes)

	err = s.tx.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.approvals.Decide(sessCtx, id, model.ApprovalApproved, reviewerID, notes); err != nil {
			return s.decideError(sessCtx, err, id, model.ApprovalApproved)
		}
		if err := s.resources.SetCapacity(sessCtx, request.ResourceID, request.NewValue); err != nil {
			return translateResourceError(err, request.ResourceID)
		}
		if delta != 0 {
			if err := s.slots.Rebase(sessCtx, request.ResourceID, delta); err != nil {
				return apperrors.Internal("Failed to rebase availability slots", err)
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		s.cfg.Log.Error("Approval commit failed", "request_id", id, "error", err)
		return nil, apperrors.Internal("Failed to commit approval", err)
	}

	s.cfg.Log.Info("Approval request approved",
		"request_id", id,
		"resource_id", request.ResourceID,
		"new_capacity", request.NewValue,
		"delta", delta,
	)

	decided := s.now().UTC()
	request.Status = model.ApprovalApproved
	request.ReviewerID = reviewerID
	request.ReviewNotes = notes
	request.DecidedAt = &decided

	s.publishEvent(ctx, request)
	return request, nil
}

func (s *approvalService) Reject(ctx context.Context, id, reviewerID, notes string) (*model.ApprovalRequest, error) {
	notes = sanitizer.NormalizeFreeText(notes)
	if notes == "" {
		return nil, apperrors.InvalidInput("Rejection notes are required")
	}

	request, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, apperrors.InvalidStateTransition(request.Status.String(), model.ApprovalRejected.String())
	}

	if err := s.approvals.Decide(ctx, id, model.ApprovalRejected, reviewerID, notes); err != nil {
		return nil, s.decideError(ctx, err, id, model.ApprovalRejected)
	}

	s.cfg.Log.Info("Approval request rejected",
		"request_id", id,
		"resource_id", request.ResourceID,
	)

	decided := s.now().UTC()
	request.Status = model.ApprovalRejected
	request.ReviewerID = reviewerID
	request.ReviewNotes = notes
	request.DecidedAt = &decided

	s.publishEvent(ctx, request)
	return request, nil
}

// publishEvent emits the decision keyed by branch. Best effort: a broker
// failure does not undo the committed decision.
func (s *approvalService) publishEvent(ctx context.Context, request *model.ApprovalRequest) {
	if s.publisher == nil {
		return
	}

	msg := kafka.NewMessage().
		WithKey(request.BranchID).
		WithValue(events.ApprovalEvent{
			RequestID:   request.ID,
			BranchID:    request.BranchID,
			ResourceID:  request.ResourceID,
			Status:      request.Status.String(),
			NewCapacity: request.NewValue,
			OccurredAt:  s.now().UTC(),
		}).
		WithEventType(kafka.EventApprovalDecided).
		WithSource("deskhive-core").
		Build()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Error("Failed to publish approval event", "request_id", request.ID, "error", err)
	}
}

// decideError maps a guarded-flip failure onto the taxonomy. A lost race is
// an illegal transition from whatever status the winning reviewer left
// behind.
func (s *approvalService) decideError(ctx context.Context, err error, id string, to model.ApprovalStatus) error {
	if errors.Is(err, approvalerrors.ErrAlreadyDecided) {
		current, findErr := s.approvals.FindByID(ctx, id)
		if findErr != nil {
			return translateApprovalError(findErr, id)
		}
		return apperrors.InvalidStateTransition(current.Status.String(), to.String())
	}
	return translateApprovalError(err, id)
}

func translateApprovalError(err error, id string) error {
	switch {
	case errors.Is(err, approvalerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Approval request", id)
	case errors.Is(err, approvalerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid approval request ID format")
	default:
		return apperrors.Internal("Approval store failure", err)
	}
}

func translateResourceError(err error, id string) error {
	switch {
	case errors.Is(err, resourceerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Resource", id)
	case errors.Is(err, resourceerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid resource ID format")
	default:
		return apperrors.Internal("Resource store failure", err)
	}
}
