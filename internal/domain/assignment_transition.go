package domain

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrUnauthorized      = errors.New("actor is neither the assigned athlete nor a group admin")
	ErrInvalidTransition = errors.New("transition not allowed from current state")
	ErrWriteConflict     = errors.New("assignment changed since it was last read")
	ErrInvalidSetLog     = errors.New("set log does not match the prescribed exercises")
)

// CommandKind names one of the transitions of the completion state machine.
type CommandKind string

const (
	CmdSaveProgress    CommandKind = "save_progress"
	CmdComplete        CommandKind = "complete"
	CmdApprove         CommandKind = "approve"
	CmdEditAndResubmit CommandKind = "edit_and_resubmit"
	CmdMarkIncomplete  CommandKind = "mark_incomplete"
)

// Command is a request to move an assignment through its lifecycle.
// ActorIsGroupAdmin must be resolved by the caller from the owning group.
type Command struct {
	Kind              CommandKind
	Actor             primitive.ObjectID
	ActorIsGroupAdmin bool
	Logs              []SetLog
}

// Guarded reports whether the command must be applied with an expected
// state version. Save progress is last-write-wins on the exercises of a
// scheduled record and never writes workflow fields.
func (k CommandKind) Guarded() bool {
	switch k {
	case CmdComplete, CmdApprove, CmdMarkIncomplete:
		return true
	}
	return false
}

// Transition applies cmd to a and returns the next state. It is the only place
// status and review fields change. The input is never modified.
func Transition(a WorkoutAssignment, cmd Command, now time.Time) (WorkoutAssignment, error) {
	isAthlete := cmd.Actor == a.AssignedTo
	if !isAthlete && !cmd.ActorIsGroupAdmin {
		return a, ErrUnauthorized
	}

	next := a.Clone()
	switch cmd.Kind {
	case CmdSaveProgress:
		if a.Status != StatusScheduled {
			return a, fmt.Errorf("%w: save progress on %s assignment", ErrInvalidTransition, a.Status)
		}
		if err := applyLogs(&next, cmd.Logs); err != nil {
			return a, err
		}

	case CmdComplete:
		review, err := completionReview(a, isAthlete)
		if err != nil {
			return a, err
		}
		if err := applyLogs(&next, cmd.Logs); err != nil {
			return a, err
		}
		fillUnlogged(&next)
		actor := cmd.Actor
		completedAt := now
		next.Status = StatusCompleted
		next.CompletedBy = &actor
		next.CompletedAt = &completedAt
		next.ReviewStatus = review
		next.ReviewedAt = nil
		if review == ReviewEdited {
			reviewedAt := now
			next.ReviewedAt = &reviewedAt
		}
		next.StateVersion++

	case CmdApprove:
		if err := requirePendingReview(a, isAthlete); err != nil {
			return a, err
		}
		reviewedAt := now
		next.ReviewStatus = ReviewApproved
		next.ReviewedAt = &reviewedAt
		next.StateVersion++

	case CmdEditAndResubmit:
		// Logging mode lives on the client; nothing is persisted here.
		if err := requirePendingReview(a, isAthlete); err != nil {
			return a, err
		}

	case CmdMarkIncomplete:
		if a.Status != StatusCompleted {
			return a, fmt.Errorf("%w: assignment is not completed", ErrInvalidTransition)
		}
		next.Status = StatusScheduled
		next.CompletedAt = nil
		next.CompletedBy = nil
		next.ReviewStatus = ReviewNone
		next.ReviewedAt = nil
		next.StateVersion++

	default:
		return a, fmt.Errorf("%w: unknown command %q", ErrInvalidTransition, cmd.Kind)
	}

	next.UpdatedAt = now
	return next, nil
}

// completionReview decides the review status a Complete produces, or rejects
// the completion. A completed record may only be re-completed by the athlete
// while a coach-entered log awaits their review.
func completionReview(a WorkoutAssignment, isAthlete bool) (ReviewStatus, error) {
	switch a.Status {
	case StatusScheduled:
		if isAthlete {
			return ReviewSelf, nil
		}
		return ReviewPending, nil
	case StatusCompleted:
		if isAthlete && a.ReviewStatus == ReviewPending && !a.CompletedByAthlete() {
			return ReviewEdited, nil
		}
		return "", fmt.Errorf("%w: assignment already completed", ErrInvalidTransition)
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, a.Status)
}

func requirePendingReview(a WorkoutAssignment, isAthlete bool) error {
	if !isAthlete {
		return ErrUnauthorized
	}
	if !NeedsReview(&a) {
		return fmt.Errorf("%w: no review pending", ErrInvalidTransition)
	}
	return nil
}

func applyLogs(a *WorkoutAssignment, logs []SetLog) error {
	for _, l := range logs {
		if l.ExerciseIndex < 0 || l.ExerciseIndex >= len(a.Exercises) {
			return fmt.Errorf("%w: exercise %d", ErrInvalidSetLog, l.ExerciseIndex)
		}
		sets := a.Exercises[l.ExerciseIndex].Sets
		if l.SetIndex < 0 || l.SetIndex >= len(sets) {
			return fmt.Errorf("%w: exercise %d set %d", ErrInvalidSetLog, l.ExerciseIndex, l.SetIndex)
		}
		sets[l.SetIndex].Actual = l.Actual.clone()
	}
	return nil
}

// fillUnlogged treats every unlogged set as performed as prescribed.
// Logged values are never overwritten.
func fillUnlogged(a *WorkoutAssignment) {
	for i := range a.Exercises {
		for j := range a.Exercises[i].Sets {
			set := &a.Exercises[i].Sets[j]
			if set.Actual == nil && set.Prescribed != nil {
				set.Actual = set.Prescribed.clone()
			}
		}
	}
}
