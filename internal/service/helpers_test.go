package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/gateway"
	"alcyxob/group-coach/internal/notify"
	"alcyxob/group-coach/internal/repository/memory"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var fixedNow = time.Date(2030, 3, 15, 9, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway answers with fn, recording every request.
type stubGateway struct {
	mu       sync.Mutex
	fn       func(ctx context.Context, req gateway.Request) (*gateway.Response, error)
	requests []gateway.Request
}

func (g *stubGateway) Generate(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.fn(ctx, req)
}

// recordingNotifier keeps every message it is asked to send.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

// fixture is a group with one coach and three athletes on the memory store.
type fixture struct {
	store    *memory.Store
	coach    domain.User
	athletes []domain.User
	group    domain.Group
	notifier *recordingNotifier

	ledger      *ledgerService
	batches     BatchService
	assignments *assignmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	f := &fixture{store: store, notifier: &recordingNotifier{}}

	f.coach = createUser(t, store, "Coach Kim", "kim@example.com", domain.RoleCoach)
	for _, name := range []string{"Ana", "Ben", "Cy"} {
		f.athletes = append(f.athletes, createUser(t, store, name, name+"@example.com", domain.RoleAthlete))
	}

	group := &domain.Group{
		Name:      "Morning Crew",
		OwnerID:   f.coach.ID,
		AdminIDs:  []primitive.ObjectID{f.coach.ID},
		MemberIDs: []primitive.ObjectID{f.coach.ID, f.athletes[0].ID, f.athletes[1].ID, f.athletes[2].ID},
	}
	_, err := store.Groups.Create(ctx, group)
	require.NoError(t, err)
	f.group = *group

	f.ledger = NewLedgerService(store.Credits, nil, testLogger()).(*ledgerService)
	f.batches = NewBatchService(store.Groups, store.Assignments, testLogger())
	f.assignments = NewAssignmentService(store.Users, store.Groups, store.Assignments, f.notifier, testLogger()).(*assignmentService)
	f.assignments.now = func() time.Time { return fixedNow }
	return f
}

func createUser(t *testing.T, store *memory.Store, name, email string, role domain.Role) domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: email, PasswordHash: "hash", Role: role}
	_, err := store.Users.Create(context.Background(), u)
	require.NoError(t, err)
	return *u
}

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }

// squat prescribes n sets of weight x 5.
func squat(n int, weight float64) []domain.ExercisePrescription {
	sets := make([]domain.SetEntry, n)
	for i := range sets {
		sets[i] = domain.SetEntry{Prescribed: &domain.SetValue{Weight: ptrFloat(weight), Reps: ptrInt(5)}}
	}
	return []domain.ExercisePrescription{{Name: "Back Squat", Sets: sets}}
}

// assignOne creates a single-athlete batch and returns the assignment.
func (f *fixture) assignOne(t *testing.T, athlete domain.User, weight float64) domain.WorkoutAssignment {
	t.Helper()
	result, err := f.batches.CreateBatch(context.Background(), f.coach.ID, BatchInput{
		GroupID:      f.group.ID,
		TemplateName: "Leg Day " + athlete.Name,
		Date:         fixedNow,
		Prescriptions: []AthletePrescription{
			{AthleteID: athlete.ID, Exercises: squat(2, weight)},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	return result.Created[0]
}
