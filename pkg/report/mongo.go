package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/stackaudit/pkg/errors"
)

// Defaults for MongoSink.
const (
	DefaultMongoDatabase   = "stackaudit"
	DefaultMongoCollection = "reports"
)

// MongoSink stores each result as one document keyed by run ID.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink connects to uri and verifies the connection.
func NewMongoSink(ctx context.Context, uri, database, collection string) (*MongoSink, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Save implements Sink. An existing document with the same run ID is
// replaced.
func (s *MongoSink) Save(ctx context.Context, r *AnalysisResult) (string, error) {
	doc, err := toDocument(r)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "convert report")
	}
	_, err = s.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: r.RunID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "insert report")
	}
	return fmt.Sprintf("mongodb:%s/%s", s.collection.Name(), r.RunID), nil
}

// Get loads a stored result by run ID.
func (s *MongoSink) Get(ctx context.Context, runID string) (*AnalysisResult, error) {
	var doc bson.M
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: runID}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeReportNotFound, "report %s not found", runID)
	}
	if err != nil {
		return nil, err
	}
	delete(doc, "_id")
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, err
	}
	var r AnalysisResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Close disconnects the client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// toDocument converts the JSON encoding of r into an ordered BSON document
// with the run ID as _id.
func toDocument(r *AnalysisResult) (bson.D, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return append(bson.D{{Key: "_id", Value: r.RunID}}, doc...), nil
}
