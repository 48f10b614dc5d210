package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentStatus is the persisted lifecycle state of a WorkoutAssignment.
// A set logged on a device but not yet saved is a client draft, not a state.
type AssignmentStatus string

const (
	StatusScheduled AssignmentStatus = "scheduled"
	StatusCompleted AssignmentStatus = "completed"
)

// ReviewStatus tracks whether a completion entered by someone other than the
// athlete has been confirmed by the athlete. It is empty while scheduled.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = ""
	ReviewSelf     ReviewStatus = "self"
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewEdited   ReviewStatus = "edited"
)

// SetValue is a weight/reps or timed value. Each field is optional so the same
// type describes strength sets and timed holds.
type SetValue struct {
	Weight          *float64 `bson:"weight,omitempty" json:"weight,omitempty"`
	Reps            *int     `bson:"reps,omitempty" json:"reps,omitempty"`
	DurationSeconds *int     `bson:"durationSeconds,omitempty" json:"durationSeconds,omitempty"`
}

func (v SetValue) clone() *SetValue {
	out := SetValue{}
	if v.Weight != nil {
		w := *v.Weight
		out.Weight = &w
	}
	if v.Reps != nil {
		r := *v.Reps
		out.Reps = &r
	}
	if v.DurationSeconds != nil {
		d := *v.DurationSeconds
		out.DurationSeconds = &d
	}
	return &out
}

// SetEntry pairs what the coach prescribed with what was actually performed.
type SetEntry struct {
	Prescribed *SetValue `bson:"prescribed,omitempty" json:"prescribed,omitempty"`
	Actual     *SetValue `bson:"actual,omitempty" json:"actual,omitempty"`
}

// ExercisePrescription is one exercise of an assignment with its ordered sets.
type ExercisePrescription struct {
	Name  string     `bson:"name" json:"name"`
	Notes string     `bson:"notes,omitempty" json:"notes,omitempty"`
	Sets  []SetEntry `bson:"sets" json:"sets"`
}

// WorkoutAssignment is one athlete's instance of a coach-authored workout.
// Siblings created by the same authoring action share a BatchKey.
type WorkoutAssignment struct {
	ID            primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	BatchKey      string                 `bson:"batchKey" json:"batchKey"`
	TemplateName  string                 `bson:"templateName" json:"templateName"`
	GroupID       primitive.ObjectID     `bson:"groupId" json:"groupId"`
	AssignedTo    primitive.ObjectID     `bson:"assignedTo" json:"assignedTo"`
	AssignedBy    primitive.ObjectID     `bson:"assignedBy" json:"assignedBy"`
	ScheduledDate time.Time              `bson:"scheduledDate" json:"scheduledDate"`
	Exercises     []ExercisePrescription `bson:"exercises" json:"exercises"`

	Status      AssignmentStatus    `bson:"status" json:"status"`
	CompletedBy *primitive.ObjectID `bson:"completedBy,omitempty" json:"completedBy,omitempty"`
	CompletedAt *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`

	ReviewStatus ReviewStatus `bson:"reviewStatus,omitempty" json:"reviewStatus,omitempty"`
	ReviewedAt   *time.Time   `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`

	// StateVersion increments on every status or review change and guards
	// Complete/Approve/MarkIncomplete against concurrent writers.
	StateVersion int64 `bson:"stateVersion" json:"stateVersion"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// CompletedByAthlete reports whether the stored completion was self-logged.
func (a *WorkoutAssignment) CompletedByAthlete() bool {
	return a.CompletedBy != nil && *a.CompletedBy == a.AssignedTo
}

// Clone returns a deep copy so transitions never alias the caller's slices.
func (a WorkoutAssignment) Clone() WorkoutAssignment {
	out := a
	out.Exercises = make([]ExercisePrescription, len(a.Exercises))
	for i, ex := range a.Exercises {
		out.Exercises[i] = ex
		out.Exercises[i].Sets = make([]SetEntry, len(ex.Sets))
		for j, set := range ex.Sets {
			if set.Prescribed != nil {
				out.Exercises[i].Sets[j].Prescribed = set.Prescribed.clone()
			}
			if set.Actual != nil {
				out.Exercises[i].Sets[j].Actual = set.Actual.clone()
			}
		}
	}
	if a.CompletedBy != nil {
		id := *a.CompletedBy
		out.CompletedBy = &id
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	if a.ReviewedAt != nil {
		t := *a.ReviewedAt
		out.ReviewedAt = &t
	}
	return out
}

// SetLog is an actual value submitted for one set, addressed by position.
type SetLog struct {
	ExerciseIndex int      `json:"exerciseIndex"`
	SetIndex      int      `json:"setIndex"`
	Actual        SetValue `json:"actual"`
}
