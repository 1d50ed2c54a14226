package repository

import (
	"context"
	"log"
	"time"

	"roleshop-api/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBHistoryRepository implements HistoryRepository for MongoDB.
type MongoDBHistoryRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBHistoryRepository creates a new MongoDB history repository.
func NewMongoDBHistoryRepository(uri, dbName, collectionName string) (*MongoDBHistoryRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	collection := client.Database(dbName).Collection(collectionName)

	// Lookup indexes for the two list paths and the retention sweep.
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "actor_account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "entitlement_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("[MongoDBHistoryRepository] Failed to create indexes: %v", err)
	}

	log.Printf("[MongoDBHistoryRepository] Initialized with collection: %s.%s", dbName, collectionName)
	return &MongoDBHistoryRepository{
		client:     client,
		collection: collection,
	}, nil
}

// Append inserts a new audit record.
func (r *MongoDBHistoryRepository) Append(ctx context.Context, rec *model.HistoryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, rec)
	return err
}

func (r *MongoDBHistoryRepository) find(ctx context.Context, filter bson.M, limit int) ([]model.HistoryRecord, error) {
	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})
	findOptions.SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []model.HistoryRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.HistoryRecord{}
	}
	return recs, nil
}

// ListByAccount returns the most recent records where the account acted
// or was the counterparty.
func (r *MongoDBHistoryRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.HistoryRecord, error) {
	return r.find(ctx, bson.M{"$or": []bson.M{
		{"actor_account_id": accountID},
		{"counterparty_account_id": accountID},
	}}, limit)
}

// ListByEntitlement returns the most recent records for an entitlement.
func (r *MongoDBHistoryRepository) ListByEntitlement(ctx context.Context, entitlementID string, limit int) ([]model.HistoryRecord, error) {
	return r.find(ctx, bson.M{"entitlement_id": entitlementID}, limit)
}

// PurgeOlderThan deletes records past the retention horizon.
func (r *MongoDBHistoryRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	if result.DeletedCount > 0 {
		log.Printf("[MongoDBHistoryRepository] Purged %d history records older than %v", result.DeletedCount, cutoff)
	}
	return result.DeletedCount, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBHistoryRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Ensure MongoDBHistoryRepository implements HistoryRepository
var _ HistoryRepository = (*MongoDBHistoryRepository)(nil)
