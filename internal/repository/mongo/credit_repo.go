package mongo

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/repository"
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	creditCollectionName = "credit_accounts"
	ledgerCollectionName = "ledger_entries"
)

// mongoCreditRepository keeps balances in one document per user. Every
// balance change is a single FindOneAndUpdate so the check and the write are
// one atomic step on the server.
type mongoCreditRepository struct {
	accounts *mongo.Collection
	entries  *mongo.Collection
}

// NewMongoCreditRepository creates a new credit repository backed by MongoDB.
func NewMongoCreditRepository(db *mongo.Database) repository.CreditRepository {
	return &mongoCreditRepository{
		accounts: db.Collection(creditCollectionName),
		entries:  db.Collection(ledgerCollectionName),
	}
}

func (r *mongoCreditRepository) GetAccount(ctx context.Context, userID primitive.ObjectID) (*domain.CreditAccount, error) {
	var account domain.CreditAccount
	err := r.accounts.FindOne(ctx, bson.M{"_id": userID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Debit only matches the account when the balance covers amount.
func (r *mongoCreditRepository) Debit(ctx context.Context, userID primitive.ObjectID, amount int64) (*domain.CreditAccount, error) {
	filter := bson.M{"_id": userID, "balance": bson.M{"$gte": amount}}
	update := bson.M{
		"$inc": bson.M{"balance": -amount},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var account domain.CreditAccount
	err := r.accounts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrInsufficientBalance
		}
		return nil, err
	}
	return &account, nil
}

// Credit upserts so the first grant creates the account.
func (r *mongoCreditRepository) Credit(ctx context.Context, userID primitive.ObjectID, amount int64) (*domain.CreditAccount, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$inc":         bson.M{"balance": amount},
		"$set":         bson.M{"updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var account domain.CreditAccount
	if err := r.accounts.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *mongoCreditRepository) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.ID == primitive.NilObjectID {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.entries.InsertOne(ctx, entry)
	return err
}

// ListEntries returns the newest entries first.
func (r *mongoCreditRepository) ListEntries(ctx context.Context, userID primitive.ObjectID, limit int64) ([]domain.LedgerEntry, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}
	cursor, err := r.entries.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []domain.LedgerEntry{}
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EnsureLedgerIndexes creates necessary indexes for the ledger journal.
func EnsureLedgerIndexes(ctx context.Context, collection *mongo.Collection, logger *slog.Logger) {
	createIndexes(ctx, collection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "operationId", Value: 1}}},
	}, logger)
}
