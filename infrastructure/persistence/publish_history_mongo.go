package persistence

import (
	"context"
	"fmt"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const publishHistoryCollection = "publish_history"

// PublishHistoryMongo is an append-only log of finished runs.
type PublishHistoryMongo struct {
	collection *mongo.Collection
}

func NewPublishHistoryMongo(client *mongo.Client, database string) *PublishHistoryMongo {
	return &PublishHistoryMongo{collection: client.Database(database).Collection(publishHistoryCollection)}
}

// EnsureIndexes creates the lookup index used by ListRecent and a unique
// index on run_id.
func (r *PublishHistoryMongo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "finished_at", Value: -1}}},
		{Keys: bson.D{{Key: "run_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (r *PublishHistoryMongo) Save(ctx context.Context, report *model.PublishReport) error {
	if _, err := r.collection.InsertOne(ctx, report); err != nil {
		return fmt.Errorf("insert publish report %s: %w", report.RunID, err)
	}
	return nil
}

func (r *PublishHistoryMongo) ListRecent(ctx context.Context, userID string, limit int64) ([]model.PublishReport, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "finished_at", Value: -1}}).
		SetLimit(limit).
		SetProjection(bson.D{{Key: "_id", Value: 0}})
	cursor, err := r.collection.Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		return nil, err
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		if err := cursor.Close(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing cursor")
		}
	}(cursor, ctx)

	reports := []model.PublishReport{}
	for cursor.Next(ctx) {
		var report model.PublishReport
		if err := cursor.Decode(&report); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while decoding")
			continue
		}
		reports = append(reports, report)
	}
	return reports, cursor.Err()
}
