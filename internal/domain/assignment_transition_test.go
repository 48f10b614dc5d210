package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	testNow = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	athlete = primitive.NewObjectID()
	coach   = primitive.NewObjectID()
)

func weight(w float64) *float64 { return &w }
func reps(r int) *int           { return &r }

func scheduledAssignment() WorkoutAssignment {
	return WorkoutAssignment{
		ID:         primitive.NewObjectID(),
		AssignedTo: athlete,
		Status:     StatusScheduled,
		Exercises: []ExercisePrescription{
			{
				Name: "Back Squat",
				Sets: []SetEntry{
					{Prescribed: &SetValue{Weight: weight(130), Reps: reps(5)}},
					{Prescribed: &SetValue{Weight: weight(130), Reps: reps(5)}},
				},
			},
			{
				Name: "Plank",
				Sets: []SetEntry{{Prescribed: &SetValue{DurationSeconds: reps(60)}}},
			},
		},
	}
}

func TestTransitionSelfCompletion(t *testing.T) {
	a := scheduledAssignment()

	next, err := Transition(a, Command{Kind: CmdComplete, Actor: athlete}, testNow)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, next.Status)
	assert.Equal(t, ReviewSelf, next.ReviewStatus)
	require.NotNil(t, next.CompletedBy)
	assert.Equal(t, athlete, *next.CompletedBy)
	assert.Equal(t, testNow, *next.CompletedAt)
	assert.Nil(t, next.ReviewedAt)
	assert.Equal(t, int64(1), next.StateVersion)
	assert.False(t, NeedsReview(&next))
	assert.True(t, IsTrusted(&next))

	// The input is left untouched.
	assert.Equal(t, StatusScheduled, a.Status)
	assert.Nil(t, a.Exercises[0].Sets[0].Actual)
}

func TestTransitionCoachCompletionRequiresReview(t *testing.T) {
	a := scheduledAssignment()
	logs := []SetLog{{ExerciseIndex: 0, SetIndex: 0, Actual: SetValue{Weight: weight(135), Reps: reps(5)}}}

	next, err := Transition(a, Command{Kind: CmdComplete, Actor: coach, ActorIsGroupAdmin: true, Logs: logs}, testNow)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, next.Status)
	assert.Equal(t, ReviewPending, next.ReviewStatus)
	assert.Equal(t, coach, *next.CompletedBy)
	assert.Equal(t, 135.0, *next.Exercises[0].Sets[0].Actual.Weight)
	assert.True(t, NeedsReview(&next))
	assert.False(t, IsTrusted(&next))
}

func TestTransitionCompleteFillsOnlyUnloggedSets(t *testing.T) {
	a := scheduledAssignment()
	a.Exercises[0].Sets[1].Actual = &SetValue{Weight: weight(120), Reps: reps(3)}

	next, err := Transition(a, Command{Kind: CmdComplete, Actor: athlete}, testNow)
	require.NoError(t, err)

	squat := next.Exercises[0].Sets
	assert.Equal(t, 130.0, *squat[0].Actual.Weight, "unlogged set assumed as prescribed")
	assert.Equal(t, 120.0, *squat[1].Actual.Weight, "logged set kept")
	assert.Equal(t, 3, *squat[1].Actual.Reps)
	assert.Equal(t, 60, *next.Exercises[1].Sets[0].Actual.DurationSeconds)

	// Filled values are copies, not aliases of the prescription.
	*squat[0].Actual.Weight = 999
	assert.Equal(t, 130.0, *next.Exercises[0].Sets[0].Prescribed.Weight)
}

func TestTransitionAthleteEditsCoachLog(t *testing.T) {
	a := scheduledAssignment()
	coachLog := []SetLog{{ExerciseIndex: 0, SetIndex: 0, Actual: SetValue{Weight: weight(135), Reps: reps(5)}}}
	pending, err := Transition(a, Command{Kind: CmdComplete, Actor: coach, ActorIsGroupAdmin: true, Logs: coachLog}, testNow)
	require.NoError(t, err)

	draft, err := Transition(pending, Command{Kind: CmdEditAndResubmit, Actor: athlete}, testNow)
	require.NoError(t, err)
	assert.Equal(t, pending.StateVersion, draft.StateVersion, "edit & resubmit persists nothing")
	assert.Equal(t, ReviewPending, draft.ReviewStatus)

	later := testNow.Add(time.Hour)
	athleteLog := []SetLog{{ExerciseIndex: 0, SetIndex: 0, Actual: SetValue{Weight: weight(140), Reps: reps(5)}}}
	edited, err := Transition(draft, Command{Kind: CmdComplete, Actor: athlete, Logs: athleteLog}, later)
	require.NoError(t, err)

	assert.Equal(t, ReviewEdited, edited.ReviewStatus)
	assert.Equal(t, later, *edited.ReviewedAt)
	assert.Equal(t, athlete, *edited.CompletedBy)
	assert.Equal(t, 140.0, *edited.Exercises[0].Sets[0].Actual.Weight)
	assert.Equal(t, int64(2), edited.StateVersion)
	assert.True(t, IsTrusted(&edited))
}

func TestTransitionApprove(t *testing.T) {
	pending, err := Transition(scheduledAssignment(), Command{Kind: CmdComplete, Actor: coach, ActorIsGroupAdmin: true}, testNow)
	require.NoError(t, err)

	approved, err := Transition(pending, Command{Kind: CmdApprove, Actor: athlete}, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ReviewApproved, approved.ReviewStatus)
	assert.Equal(t, testNow.Add(time.Minute), *approved.ReviewedAt)
	assert.Equal(t, pending.Exercises, approved.Exercises)
	assert.Equal(t, coach, *approved.CompletedBy)

	_, err = Transition(approved, Command{Kind: CmdApprove, Actor: athlete}, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition, "second approve has nothing to review")
}

func TestTransitionReviewActionsOnlyByAthlete(t *testing.T) {
	pending, err := Transition(scheduledAssignment(), Command{Kind: CmdComplete, Actor: coach, ActorIsGroupAdmin: true}, testNow)
	require.NoError(t, err)

	for _, kind := range []CommandKind{CmdApprove, CmdEditAndResubmit} {
		_, err := Transition(pending, Command{Kind: kind, Actor: coach, ActorIsGroupAdmin: true}, testNow)
		assert.ErrorIs(t, err, ErrUnauthorized, kind)
	}
}

func TestTransitionSelfCompletedHasNoReview(t *testing.T) {
	done, err := Transition(scheduledAssignment(), Command{Kind: CmdComplete, Actor: athlete}, testNow)
	require.NoError(t, err)

	for _, kind := range []CommandKind{CmdApprove, CmdEditAndResubmit, CmdComplete} {
		_, err := Transition(done, Command{Kind: kind, Actor: athlete}, testNow)
		assert.ErrorIs(t, err, ErrInvalidTransition, kind)
	}
}

func TestTransitionMarkIncompleteResetsCompletion(t *testing.T) {
	pending, err := Transition(scheduledAssignment(), Command{Kind: CmdComplete, Actor: coach, ActorIsGroupAdmin: true}, testNow)
	require.NoError(t, err)

	rolled, err := Transition(pending, Command{Kind: CmdMarkIncomplete, Actor: coach, ActorIsGroupAdmin: true}, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, rolled.Status)
	assert.Nil(t, rolled.CompletedAt)
	assert.Nil(t, rolled.CompletedBy)
	assert.Equal(t, ReviewNone, rolled.ReviewStatus)
	assert.Nil(t, rolled.ReviewedAt)
	assert.Equal(t, int64(2), rolled.StateVersion)

	// Re-completion recomputes the review status from the new actor.
	again, err := Transition(rolled, Command{Kind: CmdComplete, Actor: athlete}, testNow)
	require.NoError(t, err)
	assert.Equal(t, ReviewSelf, again.ReviewStatus)

	_, err = Transition(rolled, Command{Kind: CmdMarkIncomplete, Actor: athlete}, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionSaveProgress(t *testing.T) {
	a := scheduledAssignment()
	logs := []SetLog{{ExerciseIndex: 1, SetIndex: 0, Actual: SetValue{DurationSeconds: reps(45)}}}

	saved, err := Transition(a, Command{Kind: CmdSaveProgress, Actor: coach, ActorIsGroupAdmin: true, Logs: logs}, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, saved.Status)
	assert.Equal(t, ReviewNone, saved.ReviewStatus)
	assert.Equal(t, int64(0), saved.StateVersion)
	assert.Nil(t, saved.Exercises[0].Sets[0].Actual)
	assert.Equal(t, 45, *saved.Exercises[1].Sets[0].Actual.DurationSeconds)

	done, err := Transition(saved, Command{Kind: CmdComplete, Actor: athlete}, testNow)
	require.NoError(t, err)
	_, err = Transition(done, Command{Kind: CmdSaveProgress, Actor: athlete, Logs: logs}, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionRejectsOutsiders(t *testing.T) {
	outsider := primitive.NewObjectID()
	for _, kind := range []CommandKind{CmdSaveProgress, CmdComplete, CmdMarkIncomplete, CmdApprove} {
		_, err := Transition(scheduledAssignment(), Command{Kind: kind, Actor: outsider}, testNow)
		assert.ErrorIs(t, err, ErrUnauthorized, kind)
	}
}

func TestTransitionRejectsBadSetLog(t *testing.T) {
	cases := []SetLog{
		{ExerciseIndex: 5, SetIndex: 0},
		{ExerciseIndex: 0, SetIndex: 2},
		{ExerciseIndex: -1, SetIndex: 0},
	}
	for _, l := range cases {
		_, err := Transition(scheduledAssignment(), Command{Kind: CmdComplete, Actor: athlete, Logs: []SetLog{l}}, testNow)
		assert.ErrorIs(t, err, ErrInvalidSetLog)
	}
}

func TestCommandGuarded(t *testing.T) {
	assert.True(t, CmdComplete.Guarded())
	assert.True(t, CmdApprove.Guarded())
	assert.True(t, CmdMarkIncomplete.Guarded())
	assert.False(t, CmdSaveProgress.Guarded())
	assert.False(t, CmdEditAndResubmit.Guarded())
}
