package repository

import (
	"context"
	"time"

	"keyring/pkg/config"
	"keyring/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	LockCollectionName = "Checkout_locks"
)

// CheckoutLockRepository provides operations for advisory per-tool
// checkout locks.
type CheckoutLockRepository interface {
	Create(ctx context.Context, lock *model.CheckoutLock) (*model.CheckoutLock, error)
	Delete(ctx context.Context, lockID string) error
}

type mongoCheckoutLockRepository struct {
	collection *mongo.Collection
}

func NewCheckoutLockRepository(cfg *config.Config) CheckoutLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCheckoutLockRepository{
		collection: db.Collection(LockCollectionName),
	}
}

// Create returns a duplicate key error if the lock already exists.
// CreatedAt is stamped only when the caller did not set it.
func (r *mongoCheckoutLockRepository) Create(ctx context.Context, lock *model.CheckoutLock) (*model.CheckoutLock, error) {
	if lock.CreatedAt.IsZero() {
		lock.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

func (r *mongoCheckoutLockRepository) Delete(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}
