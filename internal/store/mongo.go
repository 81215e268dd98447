package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/marminbh/toxicity-score-svc/internal/models"
)

// Server error codes that mean an equivalent index is already in place.
const (
	codeIndexAlreadyExists    = 68
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

const idIndexName = "id_unique"

// MongoStore implements RecordStore on a single MongoDB collection.
// Deletes are hard deletes.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(idIndexName),
	})
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case codeIndexAlreadyExists, codeIndexOptionsConflict, codeIndexKeySpecsConflict:
			// An index on id exists under other options; it must still be unique.
			return s.checkUniqueIndex(ctx)
		}
	}
	return unavailable("ensure_schema", idIndexName, err)
}

type indexSpec struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

func (s *MongoStore) checkUniqueIndex(ctx context.Context) error {
	cur, err := s.coll.Indexes().List(ctx)
	if err != nil {
		return unavailable("ensure_schema", idIndexName, err)
	}
	var specs []indexSpec
	if err := cur.All(ctx, &specs); err != nil {
		return unavailable("ensure_schema", idIndexName, err)
	}
	for _, spec := range specs {
		if len(spec.Key) != 1 || spec.Key[0].Key != "id" {
			continue
		}
		if spec.Unique {
			return nil
		}
		return fmt.Errorf("%w: index %s on id is not unique", ErrSchemaMismatch, spec.Name)
	}
	return fmt.Errorf("%w: no index on id", ErrSchemaMismatch)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Create(ctx context.Context, record models.CommentRecord) (models.CommentRecord, error) {
	if !models.ValidScore(record.Score) {
		return models.CommentRecord{}, invalidScore("create", record.ID)
	}
	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	record.CreatedAt = s.now()
	record.UpdatedAt = nil
	record.DeletedAt = nil

	if _, err := s.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.CommentRecord{}, conflict("create", record.ID, err)
		}
		return models.CommentRecord{}, unavailable("create", record.ID, err)
	}
	return record, nil
}

func (s *MongoStore) UpdateScore(ctx context.Context, id string, score float64) (models.CommentRecord, error) {
	if !models.ValidScore(score) {
		return models.CommentRecord{}, invalidScore("update", id)
	}

	update := bson.M{"$set": bson.M{"score": score, "updated_at": s.now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.CommentRecord
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"id": id}, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.CommentRecord{}, notFound("update", id)
	}
	if err != nil {
		return models.CommentRecord{}, unavailable("update", id, err)
	}
	return updated, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return false, unavailable("delete", id, err)
	}
	return res.DeletedCount == 1, nil
}

func (s *MongoStore) Find(ctx context.Context, id string) (models.CommentRecord, error) {
	var rec models.CommentRecord
	err := s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.CommentRecord{}, notFound("find", id)
	}
	if err != nil {
		return models.CommentRecord{}, unavailable("find", id, err)
	}
	return rec, nil
}
