package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/repository"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrAlreadyAssigned   = errors.New("athlete already has an assignment in this batch")
	ErrDuplicateAthlete  = errors.New("athlete listed more than once in batch")
	ErrInvalidBatchInput = errors.New("batch requires a template name, a date and at least one athlete")
)

// AthletePrescription is the exercises one athlete receives in a batch.
type AthletePrescription struct {
	AthleteID primitive.ObjectID
	Exercises []domain.ExercisePrescription
}

// BatchInput is one authoring action: a template prescribed to several
// athletes of a group for a day.
type BatchInput struct {
	GroupID       primitive.ObjectID
	TemplateName  string
	Date          time.Time
	Prescriptions []AthletePrescription
}

// AthleteFailure records why one athlete's assignment was not written.
type AthleteFailure struct {
	AthleteID primitive.ObjectID
	Err       error
}

// BatchResult lists what a batch write produced.
type BatchResult struct {
	BatchKey string
	Created  []domain.WorkoutAssignment
	Failed   []AthleteFailure
}

// PartialBatchError is returned alongside a BatchResult when some athletes'
// writes failed. Retrying just those athletes is safe.
type PartialBatchError struct {
	BatchKey string
	Failed   []AthleteFailure
}

func (e *PartialBatchError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.AthleteID.Hex()
	}
	return fmt.Sprintf("batch %q: %d assignment(s) failed for athletes %s", e.BatchKey, len(e.Failed), strings.Join(ids, ", "))
}

// FailedAthleteIDs returns the athletes to retry.
func (e *PartialBatchError) FailedAthleteIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.AthleteID
	}
	return ids
}

// BatchService fans a coach-authored workout out to individual assignments.
type BatchService interface {
	CreateBatch(ctx context.Context, actorID primitive.ObjectID, input BatchInput) (*BatchResult, error)
	GetBatch(ctx context.Context, actorID, groupID primitive.ObjectID, templateName string, date time.Time) ([]domain.WorkoutAssignment, error)
	GetBatchByKey(ctx context.Context, actorID, groupID primitive.ObjectID, batchKey string) ([]domain.WorkoutAssignment, error)
}

type batchService struct {
	groupRepo      repository.GroupRepository
	assignmentRepo repository.AssignmentRepository
	logger         *slog.Logger
}

func NewBatchService(groupRepo repository.GroupRepository, assignmentRepo repository.AssignmentRepository, logger *slog.Logger) BatchService {
	return &batchService{groupRepo: groupRepo, assignmentRepo: assignmentRepo, logger: logger}
}

// CreateBatch validates the whole input before writing anything, then writes
// one document per athlete independently. When any write fails the result
// still lists what was created and the error is a *PartialBatchError.
func (s *batchService) CreateBatch(ctx context.Context, actorID primitive.ObjectID, input BatchInput) (*BatchResult, error) {
	input.TemplateName = strings.TrimSpace(input.TemplateName)
	if input.TemplateName == "" || input.Date.IsZero() || len(input.Prescriptions) == 0 {
		return nil, ErrInvalidBatchInput
	}

	group, err := loadAdminGroup(ctx, s.groupRepo, actorID, input.GroupID)
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]struct{}, len(input.Prescriptions))
	for _, p := range input.Prescriptions {
		if _, dup := seen[p.AthleteID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAthlete, p.AthleteID.Hex())
		}
		seen[p.AthleteID] = struct{}{}
		if !group.IsMember(p.AthleteID) {
			return nil, fmt.Errorf("%w: %s", ErrNotGroupMember, p.AthleteID.Hex())
		}
	}

	result := &BatchResult{
		BatchKey: domain.BatchKey(input.TemplateName, input.Date),
		Created:  []domain.WorkoutAssignment{},
	}
	scheduled := domain.BatchDate(input.Date)

	for _, p := range input.Prescriptions {
		assignment := newAssignment(p, input, result.BatchKey, scheduled, actorID)
		if _, err := s.assignmentRepo.Create(ctx, &assignment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				err = ErrAlreadyAssigned
			}
			s.logger.WarnContext(ctx, "Batch assignment write failed",
				"batch_key", result.BatchKey, "athlete_id", p.AthleteID.Hex(), "error", err)
			result.Failed = append(result.Failed, AthleteFailure{AthleteID: p.AthleteID, Err: err})
			continue
		}
		result.Created = append(result.Created, assignment)
	}

	s.logger.InfoContext(ctx, "Batch created",
		"group_id", input.GroupID.Hex(), "batch_key", result.BatchKey,
		"created", len(result.Created), "failed", len(result.Failed))

	if len(result.Failed) > 0 {
		return result, &PartialBatchError{BatchKey: result.BatchKey, Failed: result.Failed}
	}
	return result, nil
}

func (s *batchService) GetBatch(ctx context.Context, actorID, groupID primitive.ObjectID, templateName string, date time.Time) ([]domain.WorkoutAssignment, error) {
	return s.GetBatchByKey(ctx, actorID, groupID, domain.BatchKey(strings.TrimSpace(templateName), date))
}

// GetBatchByKey returns every sibling of a batch. Any group member may view.
func (s *batchService) GetBatchByKey(ctx context.Context, actorID, groupID primitive.ObjectID, batchKey string) ([]domain.WorkoutAssignment, error) {
	group, err := loadGroup(ctx, s.groupRepo, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(actorID) {
		return nil, fmt.Errorf("%w: not a member of the group", domain.ErrUnauthorized)
	}
	return s.assignmentRepo.List(ctx, repository.AssignmentFilter{GroupID: groupID, BatchKey: batchKey})
}

// newAssignment builds a scheduled assignment carrying only this athlete's
// prescription. Any actual values in the input are dropped.
func newAssignment(p AthletePrescription, input BatchInput, batchKey string, scheduled time.Time, actorID primitive.ObjectID) domain.WorkoutAssignment {
	a := domain.WorkoutAssignment{
		BatchKey:      batchKey,
		TemplateName:  input.TemplateName,
		GroupID:       input.GroupID,
		AssignedTo:    p.AthleteID,
		AssignedBy:    actorID,
		ScheduledDate: scheduled,
		Exercises:     p.Exercises,
		Status:        domain.StatusScheduled,
	}.Clone()
	for i := range a.Exercises {
		for j := range a.Exercises[i].Sets {
			a.Exercises[i].Sets[j].Actual = nil
		}
	}
	return a
}
