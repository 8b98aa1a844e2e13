package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // Use bson for index keys
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Documents collection indexes
	documentsCollection := db.Collection("documents")
	documentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fda_document_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	_, err := documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes)
	if err != nil {
		return err
	}

	// Chunks collection indexes. Retrieval scans by document and the active
	// generation, pruning deletes whole stale generations.
	chunksCollection := db.Collection("chunks")
	chunkIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "generation", Value: 1}, {Key: "ordinal", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "generation", Value: 1}},
		},
	}
	_, err = chunksCollection.Indexes().CreateMany(context.Background(), chunkIndexes)
	if err != nil {
		return err
	}

	// Sessions collection indexes
	sessionsCollection := db.Collection("sessions")
	sessionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "document_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "updated_at", Value: -1}},
		},
	}
	_, err = sessionsCollection.Indexes().CreateMany(context.Background(), sessionIndexes)
	if err != nil {
		return err
	}

	// Turns collection indexes
	turnsCollection := db.Collection("turns")
	turnIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}
	_, err = turnsCollection.Indexes().CreateMany(context.Background(), turnIndexes)
	if err != nil {
		return err
	}

	return nil
}
