package repository

import (
	"alcyxob/group-coach/internal/domain"
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound            = RepositoryError("not found")
	ErrUpdateFailed        = RepositoryError("update failed")
	ErrDuplicate           = RepositoryError("duplicate key")
	ErrVersionConflict     = RepositoryError("version conflict")
	ErrInsufficientBalance = RepositoryError("insufficient balance")
	ErrNotScheduled        = RepositoryError("assignment is no longer scheduled")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// GroupRepository defines the interface for interacting with coaching groups.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Group, error)
	ListByMember(ctx context.Context, userID primitive.ObjectID) ([]domain.Group, error)
	AddMember(ctx context.Context, groupID, userID primitive.ObjectID) error
	AddAdmin(ctx context.Context, groupID, userID primitive.ObjectID) error
}

// AssignmentFilter narrows assignment listings. Zero values are ignored.
type AssignmentFilter struct {
	GroupID    primitive.ObjectID
	AssignedTo primitive.ObjectID
	BatchKey   string
	Status     domain.AssignmentStatus
	Review     domain.ReviewStatus
}

// AssignmentRepository defines the interface for interacting with workout assignments.
type AssignmentRepository interface {
	// Create inserts a new assignment. An assignment for the same athlete in
	// the same group batch already existing yields ErrDuplicate.
	Create(ctx context.Context, assignment *domain.WorkoutAssignment) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutAssignment, error)
	List(ctx context.Context, filter AssignmentFilter) ([]domain.WorkoutAssignment, error)
	// Update writes the mutable fields of assignment. When expectedVersion is
	// non-nil the write only applies if the stored StateVersion still equals
	// it, otherwise ErrVersionConflict.
	Update(ctx context.Context, assignment *domain.WorkoutAssignment, expectedVersion *int64) error
	// SaveProgress writes only the exercises of an assignment that is still
	// scheduled. Workflow fields are never touched; a record that has moved
	// on yields ErrNotScheduled.
	SaveProgress(ctx context.Context, assignment *domain.WorkoutAssignment) error
}

// CreditRepository owns balance mutation. Both operations are a single atomic
// step at the store.
type CreditRepository interface {
	GetAccount(ctx context.Context, userID primitive.ObjectID) (*domain.CreditAccount, error)
	// Debit decrements the balance only if it stays non-negative, otherwise
	// ErrInsufficientBalance (a missing account has balance zero).
	Debit(ctx context.Context, userID primitive.ObjectID, amount int64) (*domain.CreditAccount, error)
	// Credit increments the balance, creating the account if needed.
	Credit(ctx context.Context, userID primitive.ObjectID, amount int64) (*domain.CreditAccount, error)
	AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error
	ListEntries(ctx context.Context, userID primitive.ObjectID, limit int64) ([]domain.LedgerEntry, error)
}

// UploadRepository defines the interface for interacting with upload metadata.
type UploadRepository interface {
	Create(ctx context.Context, upload *domain.Upload) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Upload, error)
}
