// Package memory provides in-process implementations of the repository
// interfaces. They honour the same atomicity contracts as the MongoDB
// implementations and back the tests and the "memory" database driver.
package memory

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/repository"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store bundles one repository per collection.
type Store struct {
	Users       *UserRepository
	Groups      *GroupRepository
	Assignments *AssignmentRepository
	Credits     *CreditRepository
	Uploads     *UploadRepository
}

func NewStore() *Store {
	return &Store{
		Users:       NewUserRepository(),
		Groups:      NewGroupRepository(),
		Assignments: NewAssignmentRepository(),
		Credits:     NewCreditRepository(),
		Uploads:     NewUploadRepository(),
	}
}

// =============================================================================
// USERS
// =============================================================================

type UserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[primitive.ObjectID]domain.User)}
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.PasswordHash == "" || user.Role == "" {
		return primitive.NilObjectID, errors.New("user email, password hash, and role are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return user.ID, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// =============================================================================
// GROUPS
// =============================================================================

type GroupRepository struct {
	mu     sync.RWMutex
	groups map[primitive.ObjectID]domain.Group
}

func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[primitive.ObjectID]domain.Group)}
}

func (r *GroupRepository) Create(_ context.Context, group *domain.Group) (primitive.ObjectID, error) {
	if group.OwnerID == primitive.NilObjectID || group.Name == "" {
		return primitive.NilObjectID, errors.New("group requires ownerId and name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	group.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	r.groups[group.ID] = cloneGroup(*group)
	return group.ID, nil
}

func (r *GroupRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneGroup(g)
	return &out, nil
}

func (r *GroupRepository) ListByMember(_ context.Context, userID primitive.ObjectID) ([]domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := []domain.Group{}
	for _, g := range r.groups {
		if g.IsMember(userID) {
			groups = append(groups, cloneGroup(g))
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (r *GroupRepository) AddMember(_ context.Context, groupID, userID primitive.ObjectID) error {
	return r.update(groupID, func(g *domain.Group) {
		g.MemberIDs = addToSet(g.MemberIDs, userID)
	})
}

func (r *GroupRepository) AddAdmin(_ context.Context, groupID, userID primitive.ObjectID) error {
	return r.update(groupID, func(g *domain.Group) {
		g.AdminIDs = addToSet(g.AdminIDs, userID)
		g.MemberIDs = addToSet(g.MemberIDs, userID)
	})
}

func (r *GroupRepository) update(groupID primitive.ObjectID, fn func(*domain.Group)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&g)
	g.UpdatedAt = time.Now().UTC()
	r.groups[groupID] = g
	return nil
}

func cloneGroup(g domain.Group) domain.Group {
	g.AdminIDs = append([]primitive.ObjectID{}, g.AdminIDs...)
	g.MemberIDs = append([]primitive.ObjectID{}, g.MemberIDs...)
	return g
}

func addToSet(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

type AssignmentRepository struct {
	mu          sync.RWMutex
	assignments map[primitive.ObjectID]domain.WorkoutAssignment

	// FailCreate, when set, is consulted before every insert; a non-nil
	// result is returned as the write error.
	FailCreate func(*domain.WorkoutAssignment) error

	// BeforeSaveProgress, when set, runs at the start of SaveProgress
	// before the lock is taken.
	BeforeSaveProgress func(*domain.WorkoutAssignment)
}

func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{assignments: make(map[primitive.ObjectID]domain.WorkoutAssignment)}
}

func (r *AssignmentRepository) Create(_ context.Context, a *domain.WorkoutAssignment) (primitive.ObjectID, error) {
	if a.GroupID == primitive.NilObjectID || a.AssignedTo == primitive.NilObjectID || a.BatchKey == "" {
		return primitive.NilObjectID, errors.New("assignment requires groupId, assignedTo and batchKey")
	}
	if r.FailCreate != nil {
		if err := r.FailCreate(a); err != nil {
			return primitive.NilObjectID, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.assignments {
		if existing.GroupID == a.GroupID && existing.BatchKey == a.BatchKey && existing.AssignedTo == a.AssignedTo {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	a.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = domain.StatusScheduled
	}
	r.assignments[a.ID] = a.Clone()
	return a.ID, nil
}

func (r *AssignmentRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := a.Clone()
	return &out, nil
}

func (r *AssignmentRepository) List(_ context.Context, filter repository.AssignmentFilter) ([]domain.WorkoutAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.WorkoutAssignment{}
	for _, a := range r.assignments {
		if filter.GroupID != primitive.NilObjectID && a.GroupID != filter.GroupID {
			continue
		}
		if filter.AssignedTo != primitive.NilObjectID && a.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.BatchKey != "" && a.BatchKey != filter.BatchKey {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Review != "" && a.ReviewStatus != filter.Review {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

// Update compares and swaps under the lock when expectedVersion is set.
func (r *AssignmentRepository) Update(_ context.Context, a *domain.WorkoutAssignment, expectedVersion *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.assignments[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if expectedVersion != nil && stored.StateVersion != *expectedVersion {
		return repository.ErrVersionConflict
	}
	next := a.Clone()
	// Identity and batch fields are immutable after creation.
	next.GroupID = stored.GroupID
	next.AssignedTo = stored.AssignedTo
	next.BatchKey = stored.BatchKey
	next.CreatedAt = stored.CreatedAt
	r.assignments[a.ID] = next
	return nil
}

func (r *AssignmentRepository) SaveProgress(_ context.Context, a *domain.WorkoutAssignment) error {
	if r.BeforeSaveProgress != nil {
		r.BeforeSaveProgress(a)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.assignments[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != domain.StatusScheduled {
		return repository.ErrNotScheduled
	}
	next := stored.Clone()
	next.Exercises = a.Clone().Exercises
	next.UpdatedAt = a.UpdatedAt
	r.assignments[a.ID] = next
	return nil
}

// =============================================================================
// CREDITS
// =============================================================================

// CreditRepository serializes every balance change behind one mutex, which
// makes check-and-decrement a single step just like the conditional update
// used with MongoDB.
type CreditRepository struct {
	mu       sync.Mutex
	accounts map[primitive.ObjectID]domain.CreditAccount
	entries  []domain.LedgerEntry

	// FailCredit, when set, makes Credit return its result for testing
	// refund failure paths.
	FailCredit func(userID primitive.ObjectID, amount int64) error
}

func NewCreditRepository() *CreditRepository {
	return &CreditRepository{accounts: make(map[primitive.ObjectID]domain.CreditAccount)}
}

func (r *CreditRepository) GetAccount(_ context.Context, userID primitive.ObjectID) (*domain.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r *CreditRepository) Debit(_ context.Context, userID primitive.ObjectID, amount int64) (*domain.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[userID]
	if !ok || account.Balance < amount {
		return nil, repository.ErrInsufficientBalance
	}
	account.Balance -= amount
	account.UpdatedAt = time.Now().UTC()
	r.accounts[userID] = account
	return &account, nil
}

func (r *CreditRepository) Credit(_ context.Context, userID primitive.ObjectID, amount int64) (*domain.CreditAccount, error) {
	if r.FailCredit != nil {
		if err := r.FailCredit(userID, amount); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	account, ok := r.accounts[userID]
	if !ok {
		account = domain.CreditAccount{UserID: userID, CreatedAt: now}
	}
	account.Balance += amount
	account.UpdatedAt = now
	r.accounts[userID] = account
	return &account, nil
}

func (r *CreditRepository) AppendEntry(_ context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == primitive.NilObjectID {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, *entry)
	return nil
}

// ListEntries returns the newest entries first.
func (r *CreditRepository) ListEntries(_ context.Context, userID primitive.ObjectID, limit int64) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.LedgerEntry{}
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID != userID {
			continue
		}
		out = append(out, r.entries[i])
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// UPLOADS
// =============================================================================

type UploadRepository struct {
	mu      sync.RWMutex
	uploads map[primitive.ObjectID]domain.Upload
}

func NewUploadRepository() *UploadRepository {
	return &UploadRepository{uploads: make(map[primitive.ObjectID]domain.Upload)}
}

func (r *UploadRepository) Create(_ context.Context, upload *domain.Upload) (primitive.ObjectID, error) {
	if upload.OwnerID == primitive.NilObjectID || upload.S3ObjectKey == "" {
		return primitive.NilObjectID, errors.New("upload requires ownerId and s3ObjectKey")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.uploads {
		if existing.S3ObjectKey == upload.S3ObjectKey {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	upload.ID = primitive.NewObjectID()
	upload.UploadedAt = time.Now().UTC()
	r.uploads[upload.ID] = *upload
	return upload.ID, nil
}

func (r *UploadRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.uploads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

var (
	_ repository.UserRepository       = (*UserRepository)(nil)
	_ repository.GroupRepository      = (*GroupRepository)(nil)
	_ repository.AssignmentRepository = (*AssignmentRepository)(nil)
	_ repository.CreditRepository     = (*CreditRepository)(nil)
	_ repository.UploadRepository     = (*UploadRepository)(nil)
)
