package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewMongoRepository(client *mongo.Client, database, collection string) *MongoRepository {
	return &MongoRepository{
		client:     client,
		database:   database,
		collection: collection,
	}
}

func (m *MongoRepository) coll() *mongo.Collection {
	return m.client.Database(m.database).Collection(m.collection)
}

func (m *MongoRepository) Put(ctx context.Context, originCourseID, targetStepID string) error {
	now := time.Now().UTC()
	_, err := m.coll().InsertOne(ctx, CourseMapping{
		OriginCourseID: originCourseID,
		TargetStepID:   targetStepID,
		Status:         StatusPendingExport,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("store: insert mapping: %w", err)
	}
	return nil
}

func (m *MongoRepository) Get(ctx context.Context, originCourseID string) (CourseMapping, error) {
	var out CourseMapping
	err := m.coll().FindOne(ctx, bson.M{"_id": originCourseID}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return CourseMapping{}, ErrNotFound
	}
	if err != nil {
		return CourseMapping{}, fmt.Errorf("store: find mapping: %w", err)
	}
	return out, nil
}

// UpdateStatus filters on the expected prior status, so the write only
// lands when no other writer moved the mapping in between.
func (m *MongoRepository) UpdateStatus(ctx context.Context, originCourseID string, from, to Status) error {
	if !ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	res, err := m.coll().UpdateOne(ctx,
		bson.M{"_id": originCourseID, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, gerr := m.Get(ctx, originCourseID); gerr != nil {
			return gerr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (m *MongoRepository) Exists(ctx context.Context, originCourseID string) (bool, error) {
	n, err := m.coll().CountDocuments(ctx, bson.M{"_id": originCourseID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return n > 0, nil
}

func (m *MongoRepository) List(ctx context.Context) ([]CourseMapping, error) {
	cursor, err := m.coll().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	defer cursor.Close(ctx)

	var mappings []CourseMapping
	for cursor.Next(ctx) {
		var m CourseMapping
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("store: decode mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	return mappings, nil
}
