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
	"go.uber.org/zap"

	"voicebank/internal/model"
)

type RecordingRepo interface {
	Create(ctx context.Context, recording *model.Recording) error
	GetByID(ctx context.Context, id string) (*model.Recording, error)
	// ListWithSessions returns all recordings joined with their owning
	// session's public fields, newest first. Recordings whose session record
	// is missing still appear, with Session nil.
	ListWithSessions(ctx context.Context) ([]*model.RecordingWithSession, error)
	CountAll(ctx context.Context) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	AggregateStats(ctx context.Context) (*model.RecordingAggregate, error)
}

type recordingRepo struct {
	collection *mongo.Collection
}

func NewRecordingRepo(db *mongo.Database, logger *zap.Logger) RecordingRepo {
	collection := db.Collection("recordings")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "sentenceIndex", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		})
		if err != nil {
			logger.Error("failed to create recording indexes", zap.Error(err))
		}
	}()

	return &recordingRepo{collection: collection}
}

func (r *recordingRepo) Create(ctx context.Context, recording *model.Recording) error {
	if err := recording.Validate(); err != nil {
		return err
	}
	if recording.CreatedAt.IsZero() {
		recording.CreatedAt = time.Now()
	}
	if recording.MimeType == "" {
		recording.MimeType = model.DefaultMimeType
	}
	if recording.Metadata.RecordingAttempts == 0 {
		recording.Metadata.RecordingAttempts = 1
	}

	result, err := r.collection.InsertOne(ctx, recording)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		recording.ID = oid
	}
	return nil
}

func (r *recordingRepo) GetByID(ctx context.Context, id string) (*model.Recording, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.ErrRecordingNotFound
	}

	var recording model.Recording
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&recording)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrRecordingNotFound
		}
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return &recording, nil
}

func (r *recordingRepo) ListWithSessions(ctx context.Context) ([]*model.RecordingWithSession, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         "sessions",
			"localField":   "sessionId",
			"foreignField": "sessionId",
			"as":           "session",
		}}},
		{{Key: "$unwind", Value: bson.M{
			"path":                       "$session",
			"preserveNullAndEmptyArrays": true,
		}}},
		{{Key: "$sort", Value: bson.M{"createdAt": -1}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer cursor.Close(ctx)

	var recordings []*model.RecordingWithSession
	if err := cursor.All(ctx, &recordings); err != nil {
		return nil, fmt.Errorf("failed to decode recordings: %w", err)
	}
	return recordings, nil
}

func (r *recordingRepo) CountAll(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

func (r *recordingRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"createdAt": bson.M{"$gte": since}})
}

func (r *recordingRepo) AggregateStats(ctx context.Context) (*model.RecordingAggregate, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":             nil,
			"totalRecordings": bson.M{"$sum": 1},
			"totalFileSize":   bson.M{"$sum": "$fileSize"},
			"averageFileSize": bson.M{"$avg": "$fileSize"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline, options.Aggregate())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate recordings: %w", err)
	}
	defer cursor.Close(ctx)

	agg := &model.RecordingAggregate{}
	if cursor.Next(ctx) {
		if err := cursor.Decode(agg); err != nil {
			return nil, fmt.Errorf("failed to decode recording stats: %w", err)
		}
	}
	return agg, cursor.Err()
}
