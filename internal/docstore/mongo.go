// Package docstore connects to the MongoDB message store.
package docstore

import (
	"context"
	"fmt"
	"time"

	"chatgraph/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MessagesCollection is the collection holding chat messages.
const MessagesCollection = "messages"

type MongoClient struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoConnection(cfg *config.Config) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	mc := &MongoClient{
		Client:   client,
		Database: client.Database(cfg.MongoDatabase),
	}
	if err := mc.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return mc, nil
}

// EnsureIndexes creates the (roomId, createdAt desc) index used by message listing.
func (mc *MongoClient) EnsureIndexes(ctx context.Context) error {
	_, err := mc.Database.Collection(MessagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("roomId_createdAt"),
	})
	if err != nil {
		return fmt.Errorf("failed to create message index: %w", err)
	}
	return nil
}

// Messages returns the messages collection.
func (mc *MongoClient) Messages() *mongo.Collection {
	return mc.Database.Collection(MessagesCollection)
}

func (mc *MongoClient) Ping(ctx context.Context) error {
	return mc.Client.Ping(ctx, readpref.Primary())
}

func (mc *MongoClient) Close(ctx context.Context) error {
	return mc.Client.Disconnect(ctx)
}
