package repository

import (
	"context"
	"fmt"
	"time"

	"keyring/pkg/config"
	mongotx "keyring/pkg/db/mongo"
	"keyring/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Sessions"
)

// SessionRepository is the append-only seat ledger. Sessions are never
// deleted; Return and the sweeper flip status to COMPLETED instead.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	CountActiveByTool(ctx context.Context, toolID string) (int64, error)
	CountActiveByToolAndHolder(ctx context.Context, toolID, holder string) (int64, error)
	ActiveCountsByTool(ctx context.Context) (map[string]int64, error)
	ActiveToolIDsByHolder(ctx context.Context, holder string) (map[string]bool, error)
	CompleteActive(ctx context.Context, toolID, holder string, completedAt time.Time) (int64, error)
	FindExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*model.Session, error)
	CompleteByIDs(ctx context.Context, ids []string, completedAt time.Time) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoSessionRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoSessionRepository(cfg *config.Config) SessionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSessionRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSessionRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoSessionRepository) Create(ctx context.Context, session *model.Session) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreWriteTimeout)
	defer cancel()

	result, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		session.ID = oid.Hex()
	}
	return nil
}

func (r *mongoSessionRepository) CountActiveByTool(ctx context.Context, toolID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"tool_id": toolID,
		"status":  model.SessionStatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}

	return count, nil
}

func (r *mongoSessionRepository) CountActiveByToolAndHolder(ctx context.Context, toolID, holder string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"tool_id": toolID,
		"holder":  holder,
		"status":  model.SessionStatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count holder sessions: %w", err)
	}

	return count, nil
}

// ActiveCountsByTool aggregates active session counts across all tools
// in one round trip, for the merged listing.
func (r *mongoSessionRepository) ActiveCountsByTool(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": model.SessionStatusActive}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$tool_id",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate active sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		ToolID string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode session counts: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, res := range results {
		counts[res.ToolID] = res.Count
	}
	return counts, nil
}

func (r *mongoSessionRepository) ActiveToolIDsByHolder(ctx context.Context, holder string) (map[string]bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	toolIDs, err := r.collection.Distinct(ctx, "tool_id", bson.M{
		"holder": holder,
		"status": model.SessionStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find holder tools: %w", err)
	}

	held := make(map[string]bool, len(toolIDs))
	for _, id := range toolIDs {
		if s, ok := id.(string); ok {
			held[s] = true
		}
	}
	return held, nil
}

// CompleteActive flips every ACTIVE session for (toolID, holder) to
// COMPLETED. Zero matches is not an error.
func (r *mongoSessionRepository) CompleteActive(ctx context.Context, toolID, holder string, completedAt time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreWriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"tool_id": toolID,
			"holder":  holder,
			"status":  model.SessionStatusActive,
		},
		bson.M{"$set": bson.M{
			"status":       model.SessionStatusCompleted,
			"completed_at": completedAt,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to complete sessions: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoSessionRepository) FindExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*model.Session, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "expected_end_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{
		"status":            model.SessionStatusActive,
		"expected_end_time": bson.M{"$lte": asOf},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode expired sessions: %w", err)
	}

	return sessions, nil
}

func (r *mongoSessionRepository) CompleteByIDs(ctx context.Context, ids []string, completedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreWriteTimeout)
	defer cancel()

	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return 0, fmt.Errorf("invalid session ID %q: %w", id, err)
		}
		objectIDs = append(objectIDs, oid)
	}

	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"_id":    bson.M{"$in": objectIDs},
			"status": model.SessionStatusActive,
		},
		bson.M{"$set": bson.M{
			"status":       model.SessionStatusCompleted,
			"completed_at": completedAt,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to complete sessions by ID: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoSessionRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
