package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/gateway"
	"alcyxob/group-coach/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStorage struct {
	putKeys []string
	getKeys []string
	err     error
}

func (s *fakeStorage) GeneratePresignedUploadURL(_ context.Context, objectKey, _ string, _ time.Duration) (string, error) {
	s.putKeys = append(s.putKeys, objectKey)
	return "https://bucket.example.com/put/" + objectKey, s.err
}

func (s *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	s.getKeys = append(s.getKeys, objectKey)
	return "https://bucket.example.com/get/" + objectKey, s.err
}

func okArtifact(artifact string) func(context.Context, gateway.Request) (*gateway.Response, error) {
	return func(_ context.Context, req gateway.Request) (*gateway.Response, error) {
		return &gateway.Response{Action: req.Action, Artifact: json.RawMessage(artifact)}, nil
	}
}

func newGeneration(f *fixture, gw *stubGateway, files *fakeStorage) *generationService {
	var fs storage.FileStorage
	if files != nil {
		fs = files
	}
	svc := NewGenerationService(f.ledger, gw, f.batches, f.store.Groups, f.store.Uploads, fs, domain.DefaultCosts(), testLogger()).(*generationService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func (f *fixture) grant(t *testing.T, userID primitive.ObjectID, amount int64) {
	t.Helper()
	_, err := f.ledger.Grant(context.Background(), userID, amount, domain.ReasonGrant)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID primitive.ObjectID) int64 {
	t.Helper()
	account, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return account.Balance
}

func TestGenerateWorkoutRefundsOnGatewayTimeout(t *testing.T) {
	f := newFixture(t)
	ana := f.athletes[0]
	f.grant(t, ana.ID, 5)

	gw := &stubGateway{fn: func(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
		return nil, fmt.Errorf("%w: context deadline exceeded", gateway.ErrGatewayFailure)
	}}
	svc := newGeneration(f, gw, nil)

	_, err := svc.GenerateWorkout(context.Background(), ana.ID, json.RawMessage(`{"goal":"hypertrophy"}`))
	assert.ErrorIs(t, err, gateway.ErrGatewayFailure)
	assert.Equal(t, int64(5), f.balance(t, ana.ID))
	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(5), gw.requests[0].Cost)
}

func TestChatChargesOnSuccess(t *testing.T) {
	f := newFixture(t)
	ana := f.athletes[0]
	f.grant(t, ana.ID, 3)

	svc := newGeneration(f, &stubGateway{fn: okArtifact(`{"reply":"Rest more."}`)}, nil)
	result, err := svc.Chat(context.Background(), ana.ID, json.RawMessage(`{"message":"sore legs"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Cost)
	assert.JSONEq(t, `{"reply":"Rest more."}`, string(result.Artifact))
	assert.Equal(t, int64(2), f.balance(t, ana.ID))
}

func TestGenerateProgramWithoutFundsNeverCallsGateway(t *testing.T) {
	f := newFixture(t)
	ana := f.athletes[0]
	f.grant(t, ana.ID, 9)

	gw := &stubGateway{fn: okArtifact(`{}`)}
	svc := newGeneration(f, gw, nil)
	_, err := svc.GenerateProgram(context.Background(), ana.ID, json.RawMessage(`{"weeks":8}`))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, gw.requests)
	assert.Equal(t, int64(9), f.balance(t, ana.ID))
}

func TestFormCheckFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana, ben := f.athletes[0], f.athletes[1]
	f.grant(t, ana.ID, 30)

	files := &fakeStorage{}
	gw := &stubGateway{fn: okArtifact(`{"score":7}`)}
	svc := newGeneration(f, gw, files)

	_, err := svc.RequestFormCheckUploadURL(ctx, ana.ID, "squat.png", "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)

	upload, err := svc.RequestFormCheckUploadURL(ctx, ana.ID, "squat.mp4", "video/mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(upload.ObjectKey, "form-checks/"+ana.ID.Hex()+"/"))
	assert.True(t, strings.HasSuffix(upload.ObjectKey, ".mp4"))
	assert.Equal(t, fixedNow.Add(15*time.Minute), upload.ExpiresAt)

	_, err = svc.ConfirmFormCheckUpload(ctx, ben.ID, upload.ObjectKey, "squat.mp4", "video/mp4", 1024)
	assert.ErrorIs(t, err, ErrUploadAccessDenied)

	stored, err := svc.ConfirmFormCheckUpload(ctx, ana.ID, upload.ObjectKey, "squat.mp4", "video/mp4", 1024)
	require.NoError(t, err)

	_, err = svc.AnalyzeFormCheck(ctx, ana.ID, stored.ID, "premium", "")
	assert.ErrorIs(t, err, ErrInvalidFormCheckTier)
	_, err = svc.AnalyzeFormCheck(ctx, ben.ID, stored.ID, domain.FormCheckBasic, "")
	assert.ErrorIs(t, err, ErrUploadAccessDenied)

	result, err := svc.AnalyzeFormCheck(ctx, ana.ID, stored.ID, domain.FormCheckStandard, "knees cave")
	require.NoError(t, err)
	assert.Equal(t, int64(15), result.Cost)
	assert.Equal(t, int64(15), f.balance(t, ana.ID))

	require.Len(t, gw.requests, 1)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(gw.requests[0].Payload, &payload))
	assert.Equal(t, "https://bucket.example.com/get/"+upload.ObjectKey, payload["videoUrl"])
	assert.Equal(t, "standard", payload["tier"])
}

func TestFormCheckStorageFailureCostsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ana := f.athletes[0]
	f.grant(t, ana.ID, 30)

	files := &fakeStorage{}
	svc := newGeneration(f, &stubGateway{fn: okArtifact(`{}`)}, files)
	upload, err := svc.RequestFormCheckUploadURL(ctx, ana.ID, "lift.mov", "video/quicktime")
	require.NoError(t, err)
	stored, err := svc.ConfirmFormCheckUpload(ctx, ana.ID, upload.ObjectKey, "lift.mov", "video/quicktime", 10)
	require.NoError(t, err)

	files.err = errors.New("presign failed")
	_, err = svc.AnalyzeFormCheck(ctx, ana.ID, stored.ID, domain.FormCheckDetailed, "")
	assert.Error(t, err)
	assert.Equal(t, int64(30), f.balance(t, ana.ID))
}

func groupArtifact(athletes ...domain.User) string {
	type rx struct {
		AthleteID string                        `json:"athleteId"`
		Exercises []domain.ExercisePrescription `json:"exercises"`
	}
	out := struct {
		Prescriptions []rx `json:"prescriptions"`
	}{}
	for i, a := range athletes {
		out.Prescriptions = append(out.Prescriptions, rx{AthleteID: a.ID.Hex(), Exercises: squat(3, float64(100+10*i))})
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

func (f *fixture) groupWorkoutInput() GroupWorkoutInput {
	ids := make([]primitive.ObjectID, len(f.athletes))
	for i, a := range f.athletes {
		ids[i] = a.ID
	}
	return GroupWorkoutInput{
		GroupID:      f.group.ID,
		TemplateName: "AI Push",
		Date:         fixedNow,
		AthleteIDs:   ids,
		Prompt:       json.RawMessage(`{"focus":"push"}`),
	}
}

func TestGenerateGroupWorkoutAssignsBatch(t *testing.T) {
	f := newFixture(t)
	f.grant(t, f.coach.ID, 20)
	gw := &stubGateway{fn: okArtifact(groupArtifact(f.athletes...))}
	svc := newGeneration(f, gw, nil)

	result, err := svc.GenerateGroupWorkout(context.Background(), f.coach.ID, f.groupWorkoutInput())
	require.NoError(t, err)
	assert.Len(t, result.Created, 3)
	assert.Equal(t, "AI Push-2030-03-15", result.BatchKey)
	assert.Equal(t, int64(5), f.balance(t, f.coach.ID))
	assert.Equal(t, int64(15), gw.requests[0].Cost)
}

func TestGenerateGroupWorkoutRefundsFailedAthletes(t *testing.T) {
	f := newFixture(t)
	f.grant(t, f.coach.ID, 15)
	ben := f.athletes[1]
	f.store.Assignments.FailCreate = func(a *domain.WorkoutAssignment) error {
		if a.AssignedTo == ben.ID {
			return errors.New("write timeout")
		}
		return nil
	}
	svc := newGeneration(f, &stubGateway{fn: okArtifact(groupArtifact(f.athletes...))}, nil)

	result, err := svc.GenerateGroupWorkout(context.Background(), f.coach.ID, f.groupWorkoutInput())
	var partial *PartialBatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []primitive.ObjectID{ben.ID}, partial.FailedAthleteIDs())
	require.NotNil(t, result)
	assert.Len(t, result.Created, 2)
	assert.Equal(t, int64(5), f.balance(t, f.coach.ID))
}

func TestGenerateGroupWorkoutMalformedArtifactRefundsAll(t *testing.T) {
	tests := map[string]string{
		"not json":        `"just text"`,
		"missing athlete": "",
		"bad id":          `{"prescriptions":[{"athleteId":"nope","exercises":[]}]}`,
	}
	for name, artifact := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.grant(t, f.coach.ID, 15)
			if artifact == "" {
				artifact = groupArtifact(f.athletes[0], f.athletes[1])
			}
			svc := newGeneration(f, &stubGateway{fn: okArtifact(artifact)}, nil)

			_, err := svc.GenerateGroupWorkout(context.Background(), f.coach.ID, f.groupWorkoutInput())
			assert.ErrorIs(t, err, gateway.ErrGatewayFailure)
			assert.Equal(t, int64(15), f.balance(t, f.coach.ID))

			all, err := f.assignments.ListByGroup(context.Background(), f.coach.ID, f.group.ID)
			require.NoError(t, err)
			assert.Empty(t, all, "no artifact is applied without a matching charge")
		})
	}
}

func TestGenerateGroupWorkoutRejectsNonAdminBeforeCharging(t *testing.T) {
	f := newFixture(t)
	ana := f.athletes[0]
	f.grant(t, ana.ID, 50)
	gw := &stubGateway{fn: okArtifact(`{}`)}
	svc := newGeneration(f, gw, nil)

	_, err := svc.GenerateGroupWorkout(context.Background(), ana.ID, f.groupWorkoutInput())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, gw.requests)
	assert.Equal(t, int64(50), f.balance(t, ana.ID))
}
