package database

import (
	"context"
	"fmt"
	"time"

	"gigbook/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoClient is the process-wide MongoDB client once InitDB succeeds.
var MongoClient *mongo.Client

// InitDB connects to MongoDB and pings the primary.
func InitDB(cfg *config.Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.DatabaseURL)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	MongoClient = client
	return client, nil
}

// Database returns the configured application database.
func Database(client *mongo.Client, cfg *config.Config) *mongo.Database {
	return client.Database(cfg.DatabaseName)
}
