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

const groupCollectionName = "groups"

type mongoGroupRepository struct {
	collection *mongo.Collection
}

// NewMongoGroupRepository creates a new Group repository backed by MongoDB.
func NewMongoGroupRepository(db *mongo.Database) repository.GroupRepository {
	return &mongoGroupRepository{
		collection: db.Collection(groupCollectionName),
	}
}

func (r *mongoGroupRepository) Create(ctx context.Context, group *domain.Group) (primitive.ObjectID, error) {
	if group.OwnerID == primitive.NilObjectID || group.Name == "" {
		return primitive.NilObjectID, errors.New("group requires ownerId and name")
	}
	group.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	if group.AdminIDs == nil {
		group.AdminIDs = []primitive.ObjectID{}
	}
	if group.MemberIDs == nil {
		group.MemberIDs = []primitive.ObjectID{}
	}

	if _, err := r.collection.InsertOne(ctx, group); err != nil {
		return primitive.NilObjectID, err
	}
	return group.ID, nil
}

func (r *mongoGroupRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Group, error) {
	var group domain.Group
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &group, nil
}

// ListByMember returns every group the user belongs to, as athlete or admin.
func (r *mongoGroupRepository) ListByMember(ctx context.Context, userID primitive.ObjectID) ([]domain.Group, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"memberIds": userID},
		bson.M{"adminIds": userID},
	}}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	groups := []domain.Group{}
	if err = cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *mongoGroupRepository) AddMember(ctx context.Context, groupID, userID primitive.ObjectID) error {
	return r.addToSet(ctx, groupID, bson.M{"memberIds": userID})
}

// AddAdmin promotes a user; admins are also recorded as members.
func (r *mongoGroupRepository) AddAdmin(ctx context.Context, groupID, userID primitive.ObjectID) error {
	return r.addToSet(ctx, groupID, bson.M{"adminIds": userID, "memberIds": userID})
}

func (r *mongoGroupRepository) addToSet(ctx context.Context, groupID primitive.ObjectID, fields bson.M) error {
	update := bson.M{
		"$addToSet": fields, // $addToSet prevents duplicates
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": groupID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureGroupIndexes creates necessary indexes for the groups collection.
func EnsureGroupIndexes(ctx context.Context, collection *mongo.Collection, logger *slog.Logger) {
	createIndexes(ctx, collection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "memberIds", Value: 1}}},
		{Keys: bson.D{{Key: "adminIds", Value: 1}}},
	}, logger)
}
