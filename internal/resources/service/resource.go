package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	resourceerrors "deskhive/internal/resources/errors"
	"deskhive/internal/resources/repository"
	"deskhive/pkg/config"
	apperrors "deskhive/pkg/errors"
	"deskhive/pkg/model"
	"deskhive/pkg/sanitizer"
)

// ResourceService is presentation-level CRUD for bookable resources.
// TotalCapacity is accepted on creation only; afterwards every capacity
// mutation must route through the approval workflow so the conflict check
// cannot be bypassed.
type ResourceService interface {
	Create(ctx context.Context, resource *model.Resource) error
	GetByID(ctx context.Context, id string) (*model.Resource, error)
	ListByBranch(ctx context.Context, branchID string) ([]*model.Resource, error)
}

type resourceService struct {
	repo     repository.ResourceRepository
	validate *validator.Validate
	cfg      *config.Config
}

func NewResourceService(repo repository.ResourceRepository, cfg *config.Config) ResourceService {
	return &resourceService{
		repo:     repo,
		validate: validator.New(),
		cfg:      cfg,
	}
}

func (s *resourceService) Create(ctx context.Context, resource *model.Resource) error {
	resource.Name = sanitizer.NormalizeName(resource.Name)

	if err := s.validate.Struct(resource); err != nil {
		s.cfg.Log.Warn("Resource validation failed", "error", err)
		return apperrors.Validation("Resource validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Create(ctx, resource); err != nil {
		s.cfg.Log.Error("Failed to create resource", "branch_id", resource.BranchID, "error", err)
		return apperrors.Internal("Failed to create resource", err)
	}

	s.cfg.Log.Info("Resource created",
		"id", resource.ID,
		"branch_id", resource.BranchID,
		"service_kind", resource.ServiceKind,
		"total_capacity", resource.TotalCapacity,
	)
	return nil
}

func (s *resourceService) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Resource ID cannot be empty")
	}

	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, resourceerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Resource", id)
		}
		if errors.Is(err, resourceerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid resource ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve resource", err)
	}

	return resource, nil
}

func (s *resourceService) ListByBranch(ctx context.Context, branchID string) ([]*model.Resource, error) {
	if branchID == "" {
		return nil, apperrors.InvalidInput("branch_id is required")
	}

	resources, err := s.repo.FindByBranch(ctx, branchID)
	if err != nil {
		s.cfg.Log.Error("Failed to list resources", "branch_id", branchID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve resources", err)
	}
	return resources, nil
}
