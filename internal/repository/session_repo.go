package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"voicebank/internal/model"
)

type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*model.Session, error)
	// IncrementCompleted atomically advances the progress counter by one and
	// flips the completed flag once the counter reaches the sentence count.
	// The counter never exceeds the sentence count. Returns the updated session.
	IncrementCompleted(ctx context.Context, sessionID string) (*model.Session, error)
	// MarkCompleted sets completed=true and computes the total duration
	// regardless of counter state.
	MarkCompleted(ctx context.Context, sessionID string) (*model.Session, error)
	// MarkEnded is MarkCompleted for user-initiated early termination; it
	// additionally records that the session was abandoned.
	MarkEnded(ctx context.Context, sessionID string) (*model.Session, error)
	CountAll(ctx context.Context) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	ListRefs(ctx context.Context) ([]*model.SessionRef, error)
	AggregateStats(ctx context.Context) (*model.SessionAggregate, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database, logger *zap.Logger) SessionRepo {
	collection := db.Collection("sessions")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "sessionId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "completed", Value: 1}}},
			{Keys: bson.D{{Key: "age", Value: 1}, {Key: "gender", Value: 1}}},
		})
		if err != nil {
			logger.Error("failed to create session indexes", zap.Error(err))
		}
	}()

	return &sessionRepo{collection: collection}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (r *sessionRepo) IncrementCompleted(ctx context.Context, sessionID string) (*model.Session, error) {
	// Guarded $inc: the filter refuses the increment once the counter has
	// reached the sentence count, so concurrent uploads can never push it past.
	filter := bson.M{
		"sessionId": sessionID,
		"$expr":     bson.M{"$lt": []string{"$completedRecordings", "$sentenceCount"}},
	}
	update := bson.M{
		"$inc": bson.M{"completedRecordings": 1},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session model.Session
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Either the session is unknown or the counter is already at cap.
			return r.GetBySessionID(ctx, sessionID)
		}
		return nil, fmt.Errorf("failed to increment session %s: %w", sessionID, err)
	}

	if session.CompletedRecordings >= session.SentenceCount && !session.Completed {
		completed, err := r.finish(ctx, sessionID, session.CreatedAt, nil)
		if err != nil {
			return nil, err
		}
		if completed != nil {
			return completed, nil
		}
		// Another request flipped the flag first; reflect it.
		session.Completed = true
	}
	return &session, nil
}

func (r *sessionRepo) MarkCompleted(ctx context.Context, sessionID string) (*model.Session, error) {
	return r.mark(ctx, sessionID, nil)
}

func (r *sessionRepo) MarkEnded(ctx context.Context, sessionID string) (*model.Session, error) {
	endedEarly := true
	return r.mark(ctx, sessionID, &endedEarly)
}

func (r *sessionRepo) mark(ctx context.Context, sessionID string, endedEarly *bool) (*model.Session, error) {
	session, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"completed":     true,
		"totalDuration": durationSince(session.CreatedAt),
		"updatedAt":     time.Now(),
	}
	if endedEarly != nil {
		set["endedEarly"] = *endedEarly
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated model.Session
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"sessionId": sessionID}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to mark session %s: %w", sessionID, err)
	}
	return &updated, nil
}

// finish flips completed on natural exhaustion. The completed:false filter
// makes it idempotent under concurrent increments; returns nil when another
// request won the race.
func (r *sessionRepo) finish(ctx context.Context, sessionID string, createdAt time.Time, endedEarly *bool) (*model.Session, error) {
	set := bson.M{
		"completed":     true,
		"totalDuration": durationSince(createdAt),
		"updatedAt":     time.Now(),
	}
	if endedEarly != nil {
		set["endedEarly"] = *endedEarly
	}

	filter := bson.M{"sessionId": sessionID, "completed": false}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session model.Session
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (r *sessionRepo) CountAll(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

func (r *sessionRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"createdAt": bson.M{"$gte": since}})
}

func (r *sessionRepo) ListRefs(ctx context.Context) ([]*model.SessionRef, error) {
	opts := options.Find().
		SetProjection(bson.M{"sessionId": 1, "createdAt": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var refs []*model.SessionRef
	if err := cursor.All(ctx, &refs); err != nil {
		return nil, fmt.Errorf("failed to decode session refs: %w", err)
	}
	return refs, nil
}

func (r *sessionRepo) AggregateStats(ctx context.Context) (*model.SessionAggregate, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":           nil,
			"totalSessions": bson.M{"$sum": 1},
			"completedSessions": bson.M{
				"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$completed", true}}, 1, 0}},
			},
			"averageAge": bson.M{"$avg": "$age"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	defer cursor.Close(ctx)

	agg := &model.SessionAggregate{GenderDistribution: make(map[model.Gender]int64)}
	if cursor.Next(ctx) {
		if err := cursor.Decode(agg); err != nil {
			return nil, fmt.Errorf("failed to decode session stats: %w", err)
		}
		agg.GenderDistribution = make(map[model.Gender]int64)
	}

	genderPipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$gender",
			"count": bson.M{"$sum": 1},
		}}},
	}
	genderCursor, err := r.collection.Aggregate(ctx, genderPipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate gender distribution: %w", err)
	}
	defer genderCursor.Close(ctx)

	for genderCursor.Next(ctx) {
		var row struct {
			Gender model.Gender `bson:"_id"`
			Count  int64        `bson:"count"`
		}
		if err := genderCursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode gender row: %w", err)
		}
		agg.GenderDistribution[row.Gender] = row.Count
	}
	if err := genderCursor.Err(); err != nil {
		return nil, err
	}

	return agg, nil
}

func durationSince(t time.Time) int64 {
	return int64(time.Since(t).Seconds())
}
