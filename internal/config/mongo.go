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

	err = CreateIndexes(ctx, client.Database(cfg.DBName))
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

// CreateIndexes creates the indexes the stores query on.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	rulesCollection := db.Collection("automation_rules")
	ruleIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "account_id", Value: 1},
				{Key: "trigger_type", Value: 1},
				{Key: "is_active", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}
	if _, err := rulesCollection.Indexes().CreateMany(ctx, ruleIndexes); err != nil {
		return err
	}

	// Execution logs are append-only; queried per rule and per account, newest first
	logsCollection := db.Collection("automation_logs")
	logIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "rule_id", Value: 1}, {Key: "executed_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "executed_at", Value: -1}},
		},
	}
	if _, err := logsCollection.Indexes().CreateMany(ctx, logIndexes); err != nil {
		return err
	}

	credentialsCollection := db.Collection("instagram_credentials")
	credentialIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}
	if _, err := credentialsCollection.Indexes().CreateMany(ctx, credentialIndexes); err != nil {
		return err
	}

	sessionsCollection := db.Collection("sessions")
	sessionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "last_activity", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := sessionsCollection.Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return err
	}

	return nil
}
