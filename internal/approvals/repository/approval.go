package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	approvalerrors "deskhive/internal/approvals/errors"
	"deskhive/pkg/config"
	"deskhive/pkg/model"
)

const CollectionName = "Approval_requests"

type ApprovalRepository interface {
	Create(ctx context.Context, request *model.ApprovalRequest) error
	FindByID(ctx context.Context, id string) (*model.ApprovalRequest, error)
	FindByStatus(ctx context.Context, status model.ApprovalStatus) ([]*model.ApprovalRequest, error)
	FindByResource(ctx context.Context, resourceID string) ([]*model.ApprovalRequest, error)

	// Decide flips the request from pending to the terminal status in one
	// guarded write. If the request was already decided the write matches
	// nothing and ErrAlreadyDecided is returned, making decisions
	// exactly-once under concurrent reviewers.
	Decide(ctx context.Context, id string, status model.ApprovalStatus, reviewerID, notes string) error
}

type mongoApprovalRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoApprovalRepository(db *mongo.Database, cfg *config.Config) ApprovalRepository {
	return &mongoApprovalRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoApprovalRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		// Inside a transaction the session context must not be wrapped.
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoApprovalRepository) Create(ctx context.Context, request *model.ApprovalRequest) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	request.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		request.ID = oid.Hex()
	}
	return nil
}

func (r *mongoApprovalRepository) FindByID(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", approvalerrors.ErrInvalidID, id)
	}

	var request model.ApprovalRequest
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, approvalerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find approval request: %w", err)
	}

	return &request, nil
}

func (r *mongoApprovalRepository) FindByStatus(ctx context.Context, status model.ApprovalStatus) ([]*model.ApprovalRequest, error) {
	return r.find(ctx, bson.M{"status": status})
}

func (r *mongoApprovalRepository) FindByResource(ctx context.Context, resourceID string) ([]*model.ApprovalRequest, error) {
	return r.find(ctx, bson.M{"resource_id": resourceID})
}

func (r *mongoApprovalRepository) find(ctx context.Context, filter bson.M) ([]*model.ApprovalRequest, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find approval requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*model.ApprovalRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode approval requests: %w", err)
	}

	return requests, nil
}

func (r *mongoApprovalRepository) Decide(ctx context.Context, id string, status model.ApprovalStatus, reviewerID, notes string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", approvalerrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "status": model.ApprovalPending}
	update := bson.M{"$set": bson.M{
		"status":       status,
		"reviewer_id":  reviewerID,
		"review_notes": notes,
		"decided_at":   time.Now().UTC().Truncate(time.Millisecond),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to decide approval request: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	if _, findErr := r.FindByID(ctx, id); findErr != nil {
		return findErr
	}
	return approvalerrors.ErrAlreadyDecided
}
