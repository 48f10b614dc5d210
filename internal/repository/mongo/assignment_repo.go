package mongo

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const assignmentCollectionName = "assignments"

// mongoAssignmentRepository implements repository.AssignmentRepository
type mongoAssignmentRepository struct {
	collection *mongo.Collection
}

// NewMongoAssignmentRepository creates a new Assignment repository backed by MongoDB.
func NewMongoAssignmentRepository(db *mongo.Database) repository.AssignmentRepository {
	return &mongoAssignmentRepository{
		collection: db.Collection(assignmentCollectionName),
	}
}

// Create inserts a new assignment into the database.
func (r *mongoAssignmentRepository) Create(ctx context.Context, assignment *domain.WorkoutAssignment) (primitive.ObjectID, error) {
	if assignment.GroupID == primitive.NilObjectID ||
		assignment.AssignedTo == primitive.NilObjectID ||
		assignment.BatchKey == "" {
		return primitive.NilObjectID, errors.New("assignment requires groupId, assignedTo and batchKey")
	}

	assignment.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	if assignment.Status == "" {
		assignment.Status = domain.StatusScheduled
	}

	if _, err := r.collection.InsertOne(ctx, assignment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
		return primitive.NilObjectID, err
	}
	return assignment.ID, nil
}

// GetByID retrieves an assignment by its ID.
func (r *mongoAssignmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
	var assignment domain.WorkoutAssignment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&assignment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

// List returns assignments matching filter, soonest scheduled first.
func (r *mongoAssignmentRepository) List(ctx context.Context, filter repository.AssignmentFilter) ([]domain.WorkoutAssignment, error) {
	query := bson.M{}
	if filter.GroupID != primitive.NilObjectID {
		query["groupId"] = filter.GroupID
	}
	if filter.AssignedTo != primitive.NilObjectID {
		query["assignedTo"] = filter.AssignedTo
	}
	if filter.BatchKey != "" {
		query["batchKey"] = filter.BatchKey
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Review != "" {
		query["reviewStatus"] = filter.Review
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "scheduledDate", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	assignments := []domain.WorkoutAssignment{}
	if err = cursor.All(ctx, &assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

// Update writes the workflow fields of an assignment. With expectedVersion
// set the filter includes the stored state version, so two writers racing on
// the same read cannot both succeed.
func (r *mongoAssignmentRepository) Update(ctx context.Context, assignment *domain.WorkoutAssignment, expectedVersion *int64) error {
	if assignment.ID == primitive.NilObjectID {
		return errors.New("assignment ID is required for update")
	}

	filter := bson.M{"_id": assignment.ID}
	if expectedVersion != nil {
		filter["stateVersion"] = *expectedVersion
	}

	update := bson.M{"$set": bson.M{
		"exercises":    assignment.Exercises,
		"status":       assignment.Status,
		"completedBy":  assignment.CompletedBy,
		"completedAt":  assignment.CompletedAt,
		"reviewStatus": assignment.ReviewStatus,
		"reviewedAt":   assignment.ReviewedAt,
		"stateVersion": assignment.StateVersion,
		"updatedAt":    assignment.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: either the document is gone or its version moved on.
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": assignment.ID})
	if err != nil {
		return err
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrVersionConflict
}

func (r *mongoAssignmentRepository) SaveProgress(ctx context.Context, assignment *domain.WorkoutAssignment) error {
	if assignment.ID == primitive.NilObjectID {
		return errors.New("assignment ID is required for update")
	}

	filter := bson.M{"_id": assignment.ID, "status": domain.StatusScheduled}
	update := bson.M{"$set": bson.M{
		"exercises": assignment.Exercises,
		"updatedAt": assignment.UpdatedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": assignment.ID})
	if err != nil {
		return err
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrNotScheduled
}

// EnsureAssignmentIndexes creates necessary indexes for the assignments collection.
func EnsureAssignmentIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// One assignment per athlete per batch; retries of a partial batch rely on it.
			Keys:    bson.D{{Key: "groupId", Value: 1}, {Key: "batchKey", Value: 1}, {Key: "assignedTo", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "scheduledDate", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "reviewStatus", Value: 1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
