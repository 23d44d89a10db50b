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

	availerrors "deskhive/internal/availability/errors"
	"deskhive/pkg/config"
	"deskhive/pkg/model"
)

const CollectionName = "Availability_slots"

// SlotStore is the capacity ledger. Every mutation is one atomic
// conditional operation at the storage layer, so a failure anywhere can
// never leave a half-applied availability change.
type SlotStore interface {
	Create(ctx context.Context, slot *model.AvailabilitySlot) error
	FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error)
	FindByResource(ctx context.Context, resourceID string) ([]*model.AvailabilitySlot, error)
	FindByBranch(ctx context.Context, branchID string) ([]*model.AvailabilitySlot, error)

	// Reserve atomically checks available_units >= units on an unblocked
	// slot and decrements. Fails with ErrInsufficientUnits or
	// ErrSlotBlocked, never partially applies.
	Reserve(ctx context.Context, resourceID, slotID string, units int) error

	// Release atomically credits units back, guarding against pushing the
	// ledger above the slot's total.
	Release(ctx context.Context, resourceID, slotID string, units int) error

	// ToggleBlock flips the blocked flag independent of the unit count and
	// returns the new value.
	ToggleBlock(ctx context.Context, slotID string) (bool, error)

	// Rebase shifts every slot of a resource by delta units (both total
	// and available), applied by the approval engine under the resource
	// lock after its conflict check.
	Rebase(ctx context.Context, resourceID string, delta int) error
}

type mongoSlotStore struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotStore(db *mongo.Database, cfg *config.Config) SlotStore {
	return &mongoSlotStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoSlotStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		// Inside a transaction the session context must not be wrapped.
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoSlotStore) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	slot.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, slot)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		slot.ID = oid.Hex()
	}
	return nil
}

func (r *mongoSlotStore) FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", availerrors.ErrInvalidID, id)
	}

	var slot model.AvailabilitySlot
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return &slot, nil
}

func (r *mongoSlotStore) FindByResource(ctx context.Context, resourceID string) ([]*model.AvailabilitySlot, error) {
	return r.find(ctx, bson.M{"resource_id": resourceID})
}

func (r *mongoSlotStore) FindByBranch(ctx context.Context, branchID string) ([]*model.AvailabilitySlot, error) {
	return r.find(ctx, bson.M{"branch_id": branchID})
}

func (r *mongoSlotStore) find(ctx context.Context, filter bson.M) ([]*model.AvailabilitySlot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.AvailabilitySlot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}

	return slots, nil
}

func (r *mongoSlotStore) Reserve(ctx context.Context, resourceID, slotID string, units int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(slotID)
	if err != nil {
		return fmt.Errorf("%w: %s", availerrors.ErrInvalidID, slotID)
	}

	// One conditional decrement: condition and mutation in the same
	// storage operation.
	filter := bson.M{
		"_id":             objectID,
		"resource_id":     resourceID,
		"blocked":         false,
		"available_units": bson.M{"$gte": units},
	}
	update := bson.M{"$inc": bson.M{"available_units": -units}}

	err = r.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to reserve units: %w", err)
	}

	// No match. Re-read out of band to classify the refusal.
	slot, findErr := r.FindByID(ctx, slotID)
	if findErr != nil {
		return findErr
	}
	if slot.Blocked {
		return availerrors.ErrSlotBlocked
	}
	return availerrors.ErrInsufficientUnits
}

func (r *mongoSlotStore) Release(ctx context.Context, resourceID, slotID string, units int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(slotID)
	if err != nil {
		return fmt.Errorf("%w: %s", availerrors.ErrInvalidID, slotID)
	}

	// The guard keeps available_units <= total_units even if a release is
	// replayed; a matched update can therefore never over-credit.
	filter := bson.M{
		"_id":         objectID,
		"resource_id": resourceID,
		"$expr": bson.M{
			"$lte": bson.A{
				bson.M{"$add": bson.A{"$available_units", units}},
				"$total_units",
			},
		},
	}
	update := bson.M{"$inc": bson.M{"available_units": units}}

	err = r.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to release units: %w", err)
	}

	if _, findErr := r.FindByID(ctx, slotID); findErr != nil {
		return findErr
	}
	return availerrors.ErrOverRelease
}

func (r *mongoSlotStore) ToggleBlock(ctx context.Context, slotID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(slotID)
	if err != nil {
		return false, fmt.Errorf("%w: %s", availerrors.ErrInvalidID, slotID)
	}

	// Aggregation-pipeline update flips the flag atomically.
	update := bson.A{
		bson.M{"$set": bson.M{"blocked": bson.M{"$not": "$blocked"}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot model.AvailabilitySlot
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": objectID}, update, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, availerrors.ErrNotFound
		}
		return false, fmt.Errorf("failed to toggle block: %w", err)
	}

	return slot.Blocked, nil
}

func (r *mongoSlotStore) Rebase(ctx context.Context, resourceID string, delta int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{"$inc": bson.M{
		"available_units": delta,
		"total_units":     delta,
	}}
	_, err := r.collection.UpdateMany(ctx, bson.M{"resource_id": resourceID}, update)
	if err != nil {
		return fmt.Errorf("failed to rebase slots: %w", err)
	}
	return nil
}
