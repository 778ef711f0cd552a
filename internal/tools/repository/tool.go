package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	toolserrors "keyring/internal/tools/errors"
	"keyring/pkg/config"
	mongotx "keyring/pkg/db/mongo"
	"keyring/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Tools"
)

type ToolRepository interface {
	Create(ctx context.Context, tool *model.Tool) error
	FindByID(ctx context.Context, id string) (*model.Tool, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Tool, error)
	Count(ctx context.Context) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoToolRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoToolRepository(cfg *config.Config) ToolRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoToolRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless it is already a
// transaction SessionContext, which cannot be wrapped without breaking
// transaction semantics.
func (r *mongoToolRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			return context.WithTimeout(ctx, remaining)
		}
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoToolRepository) Create(ctx context.Context, tool *model.Tool) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreWriteTimeout)
	defer cancel()

	tool.CreatedAt = time.Now().UTC().Truncate(time.Second)
	result, err := r.collection.InsertOne(ctx, tool)
	if err != nil {
		return fmt.Errorf("failed to create tool: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		tool.ID = oid.Hex()
	}
	return nil
}

func (r *mongoToolRepository) FindByID(ctx context.Context, id string) (*model.Tool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", toolserrors.ErrInvalidID, id)
	}

	var tool model.Tool
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&tool)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, toolserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find tool: %w", err)
	}

	return &tool, nil
}

func (r *mongoToolRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Tool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find tools: %w", err)
	}
	defer cursor.Close(ctx)

	var tools []*model.Tool
	if err = cursor.All(ctx, &tools); err != nil {
		return nil, fmt.Errorf("failed to decode tools: %w", err)
	}

	return tools, nil
}

func (r *mongoToolRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count tools: %w", err)
	}

	return count, nil
}

func (r *mongoToolRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
