package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultTimeout = 10 * time.Second

// ConnectDB connects to MongoDB and pings the primary before returning.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	// The driver connects lazily, so only a ping proves the server is there.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = DisconnectDB(client)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes of every collection. The assignment
// batch index is unique and backs the no-double-assignment guarantee, so its
// failure is returned; the others are only logged.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger *slog.Logger) error {
	EnsureUserIndexes(ctx, db.Collection(userCollectionName), logger)
	EnsureGroupIndexes(ctx, db.Collection(groupCollectionName), logger)
	EnsureUploadIndexes(ctx, db.Collection(uploadCollectionName), logger)
	EnsureLedgerIndexes(ctx, db.Collection(ledgerCollectionName), logger)
	return EnsureAssignmentIndexes(ctx, db.Collection(assignmentCollectionName))
}

func createIndexes(ctx context.Context, collection *mongo.Collection, indexes []mongo.IndexModel, logger *slog.Logger) {
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Warn("Failed to create indexes", slog.String("collection", collection.Name()), slog.Any("error", err))
	}
}
