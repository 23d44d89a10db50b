package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deskhive/pkg/model"
)

const CollectionName = "Resource_locks"

// MongoLockStore implements LockStore on a collection with a unique _id per
// key and a TTL index on expires_at. The unique insert is the "set if
// absent"; the TTL index reaps crashed holders. Because the TTL monitor only
// runs periodically, Acquire also claims documents whose expiry has passed
// but which have not been reaped yet.
type MongoLockStore struct {
	collection *mongo.Collection
}

func NewMongoLockStore(db *mongo.Database) *MongoLockStore {
	return &MongoLockStore{
		collection: db.Collection(CollectionName),
	}
}

func (s *MongoLockStore) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	doc := &model.ResourceLock{
		Key:       key,
		HolderID:  holder,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := s.collection.InsertOne(ctx, doc)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("failed to insert lock %s: %w", key, err)
	}

	// A document exists. Take it over only if its TTL has elapsed.
	filter := bson.M{
		"_id":        key,
		"expires_at": bson.M{"$lte": now},
	}
	err = s.collection.FindOneAndReplace(ctx, filter, doc).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, fmt.Errorf("failed to claim expired lock %s: %w", key, err)
}

func (s *MongoLockStore) Release(ctx context.Context, key, holder string) error {
	// Compare-and-delete: only the current holder's document is removed.
	// DeletedCount == 0 means the lock expired or was taken over, which is
	// indistinguishable from a successful release from the caller's view.
	_, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":       key,
		"holder_id": holder,
	})
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// EnsureIndexes creates the TTL index that reaps expired locks. Mongo's TTL
// monitor deletes documents once expires_at passes.
func (s *MongoLockStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create lock TTL index: %w", err)
	}
	return nil
}
