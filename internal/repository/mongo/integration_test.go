package mongo

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/repository"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	testDBOnce   sync.Once
	testDBClient *mongo.Client
	testDBErr    error
)

// integrationDatabase starts a throwaway MongoDB container shared by the
// tests of this package. Tests are skipped when Docker is unavailable.
func integrationDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	testDBOnce.Do(func() {
		pool, err := dockertest.NewPool("")
		if err != nil {
			testDBErr = err
			return
		}
		if err = pool.Client.Ping(); err != nil {
			testDBErr = err
			return
		}
		pool.MaxWait = 90 * time.Second

		resource, err := pool.RunWithOptions(&dockertest.RunOptions{
			Repository: "mongo",
			Tag:        "7",
		}, func(hc *docker.HostConfig) {
			hc.AutoRemove = true
			hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
		})
		if err != nil {
			testDBErr = err
			return
		}
		_ = resource.Expire(300)

		uri := fmt.Sprintf("mongodb://localhost:%s", resource.GetPort("27017/tcp"))
		testDBErr = pool.Retry(func() error {
			client, err := ConnectDB(uri)
			if err != nil {
				return err
			}
			testDBClient = client
			return nil
		})
	})
	if testDBErr != nil {
		t.Skipf("MongoDB container unavailable: %v", testDBErr)
	}

	db := testDBClient.Database(fmt.Sprintf("group_coach_test_%s", primitive.NewObjectID().Hex()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	require.NoError(t, EnsureIndexes(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return db
}

func TestMongoCreditRepositoryConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	repo := NewMongoCreditRepository(integrationDatabase(t))
	userID := primitive.NewObjectID()

	_, err := repo.Credit(ctx, userID, 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Debit(ctx, userID, 3); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, repository.ErrInsufficientBalance)
			}
		}()
	}
	wg.Wait()

	account, err := repo.GetAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, int64(1), account.Balance)
}

func TestMongoCreditRepositoryDebitMissingAccount(t *testing.T) {
	repo := NewMongoCreditRepository(integrationDatabase(t))
	_, err := repo.Debit(context.Background(), primitive.NewObjectID(), 1)
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)
}

func TestMongoAssignmentRepositoryVersionGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewMongoAssignmentRepository(integrationDatabase(t))

	a := &domain.WorkoutAssignment{
		GroupID:    primitive.NewObjectID(),
		AssignedTo: primitive.NewObjectID(),
		BatchKey:   "Leg Day-2030-03-15",
	}
	_, err := repo.Create(ctx, a)
	require.NoError(t, err)

	expected := int64(0)
	a.Status = domain.StatusCompleted
	a.StateVersion = 1
	require.NoError(t, repo.Update(ctx, a, &expected))

	// A second writer that read version 0 loses.
	assert.ErrorIs(t, repo.Update(ctx, a, &expected), repository.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, int64(1), stored.StateVersion)

	missing := &domain.WorkoutAssignment{ID: primitive.NewObjectID()}
	assert.ErrorIs(t, repo.Update(ctx, missing, &expected), repository.ErrNotFound)
}

func TestMongoAssignmentRepositorySaveProgressOnlyWhileScheduled(t *testing.T) {
	ctx := context.Background()
	repo := NewMongoAssignmentRepository(integrationDatabase(t))

	a := &domain.WorkoutAssignment{
		GroupID:    primitive.NewObjectID(),
		AssignedTo: primitive.NewObjectID(),
		BatchKey:   "Pull-2030-03-16",
		Exercises:  []domain.ExercisePrescription{{Name: "Row", Sets: []domain.SetEntry{{}}}},
	}
	_, err := repo.Create(ctx, a)
	require.NoError(t, err)

	// Read by a progress save before the completion lands.
	progress := a.Clone()
	reps := 8
	progress.Exercises[0].Sets[0].Actual = &domain.SetValue{Reps: &reps}

	done := a.Clone()
	done.Status = domain.StatusCompleted
	done.ReviewStatus = domain.ReviewPending
	done.StateVersion = 1
	expected := int64(0)
	require.NoError(t, repo.Update(ctx, &done, &expected))

	assert.ErrorIs(t, repo.SaveProgress(ctx, &progress), repository.ErrNotScheduled)
	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, domain.ReviewPending, stored.ReviewStatus)
	assert.Equal(t, int64(1), stored.StateVersion)
	assert.Nil(t, stored.Exercises[0].Sets[0].Actual)

	// After a mark-incomplete the save lands without rewinding the version.
	rolledBack := done.Clone()
	rolledBack.Status = domain.StatusScheduled
	rolledBack.ReviewStatus = domain.ReviewNone
	rolledBack.StateVersion = 2
	expected = 1
	require.NoError(t, repo.Update(ctx, &rolledBack, &expected))

	require.NoError(t, repo.SaveProgress(ctx, &progress))
	stored, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, stored.Status)
	assert.Equal(t, int64(2), stored.StateVersion)
	assert.Equal(t, 8, *stored.Exercises[0].Sets[0].Actual.Reps)

	missing := &domain.WorkoutAssignment{ID: primitive.NewObjectID()}
	assert.ErrorIs(t, repo.SaveProgress(ctx, missing), repository.ErrNotFound)
}

func TestMongoAssignmentRepositoryRejectsDuplicateInBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewMongoAssignmentRepository(integrationDatabase(t))

	groupID, athleteID := primitive.NewObjectID(), primitive.NewObjectID()
	first := &domain.WorkoutAssignment{GroupID: groupID, AssignedTo: athleteID, BatchKey: "Push-2030-01-01"}
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	second := &domain.WorkoutAssignment{GroupID: groupID, AssignedTo: athleteID, BatchKey: "Push-2030-01-01"}
	_, err = repo.Create(ctx, second)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	batch, err := repo.List(ctx, repository.AssignmentFilter{GroupID: groupID, BatchKey: "Push-2030-01-01"})
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}
