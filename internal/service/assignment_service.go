package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/notify"
	"alcyxob/group-coach/internal/repository"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrAssignmentNotFound = errors.New("assignment not found")
)

// AssignmentService drives single assignments through the completion and
// review workflow. Every state change goes through domain.Transition.
type AssignmentService interface {
	Get(ctx context.Context, actorID, assignmentID primitive.ObjectID) (*domain.WorkoutAssignment, error)
	ListMine(ctx context.Context, athleteID primitive.ObjectID) ([]domain.WorkoutAssignment, error)
	ListPendingReviews(ctx context.Context, athleteID primitive.ObjectID) ([]domain.WorkoutAssignment, error)
	ListByGroup(ctx context.Context, actorID, groupID primitive.ObjectID) ([]domain.WorkoutAssignment, error)

	SaveProgress(ctx context.Context, actorID, assignmentID primitive.ObjectID, logs []domain.SetLog) (*domain.WorkoutAssignment, error)
	Complete(ctx context.Context, actorID, assignmentID primitive.ObjectID, expectedVersion int64, logs []domain.SetLog) (*domain.WorkoutAssignment, error)
	Approve(ctx context.Context, actorID, assignmentID primitive.ObjectID, expectedVersion int64) (*domain.WorkoutAssignment, error)
	EditAndResubmit(ctx context.Context, actorID, assignmentID primitive.ObjectID) (*domain.WorkoutAssignment, error)
	MarkIncomplete(ctx context.Context, actorID, assignmentID primitive.ObjectID, expectedVersion int64) (*domain.WorkoutAssignment, error)
}

type assignmentService struct {
	userRepo       repository.UserRepository
	groupRepo      repository.GroupRepository
	assignmentRepo repository.AssignmentRepository
	notifier       notify.Notifier
	logger         *slog.Logger
	now            func() time.Time
}

func NewAssignmentService(
	userRepo repository.UserRepository,
	groupRepo repository.GroupRepository,
	assignmentRepo repository.AssignmentRepository,
	notifier notify.Notifier,
	logger *slog.Logger,
) AssignmentService {
	return &assignmentService{
		userRepo:       userRepo,
		groupRepo:      groupRepo,
		assignmentRepo: assignmentRepo,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
	}
}

// === Reads ===

// Get returns an assignment to any member of its group.
func (s *assignmentService) Get(ctx context.Context, actorID, assignmentID primitive.ObjectID) (*domain.WorkoutAssignment, error) {
	a, err := s.load(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.AssignedTo == actorID {
		return a, nil
	}
	if _, err := s.memberGroup(ctx, actorID, a.GroupID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *assignmentService) ListMine(ctx context.Context, athleteID primitive.ObjectID) ([]domain.WorkoutAssignment, error) {
	return s.assignmentRepo.List(ctx, repository.AssignmentFilter{AssignedTo: athleteID})
}

// ListPendingReviews is the athlete's inbox of coach-entered logs.
func (s *assignmentService) ListPendingReviews(ctx context.Context, athleteID primitive.ObjectID) ([]domain.WorkoutAssignment, error) {
	candidates, err := s.assignmentRepo.List(ctx, repository.AssignmentFilter{
		AssignedTo: athleteID,
		Status:     domain.StatusCompleted,
		Review:     domain.ReviewPending,
	})
	if err != nil {
		return nil, err
	}
	pending := candidates[:0]
	for i := range candidates {
		if domain.NeedsReview(&candidates[i]) {
			pending = append(pending, candidates[i])
		}
	}
	return pending, nil
}

func (s *assignmentService) ListByGroup(ctx context.Context, actorID, groupID primitive.ObjectID) ([]domain.WorkoutAssignment, error) {
	if _, err := loadAdminGroup(ctx, s.groupRepo, actorID, groupID); err != nil {
		return nil, err
	}
	return s.assignmentRepo.List(ctx, repository.AssignmentFilter{GroupID: groupID})
}

// === Transitions ===

// SaveProgress merges partial logs. It is last-write-wins among saves, but
// loses to any transition that moved the record out of scheduled.
func (s *assignmentService) SaveProgress(ctx context.Context, actorID, assignmentID primitive.ObjectID, logs []domain.SetLog) (*domain.WorkoutAssignment, error) {
	return s.apply(ctx, actorID, assignmentID, domain.CmdSaveProgress, logs, nil)
}

func (s *assignmentService) Complete(ctx context.Context, actorID, assignmentID primitive.ObjectID, expectedVersion int64, logs []domain.SetLog) (*domain.WorkoutAssignment, error) {
	return s.apply(ctx, actorID, assignmentID, domain.CmdComplete, logs, &expectedVersion)
}

func (s *assignmentService) Approve(ctx context.Context, actorID, assignmentID primitive.ObjectID, expectedVersion int64) (*domain.WorkoutAssignment, error) {
	return s.apply(ctx, actorID, assignmentID, domain.CmdApprove, nil, &expectedVersion)
}

// EditAndResubmit checks the athlete may amend a pending coach log and
// returns the record. Nothing is written; the follow-up Complete carries the
// returned StateVersion.
func (s *assignmentService) EditAndResubmit(ctx context.Context, actorID, assignmentID primitive.ObjectID) (*domain.WorkoutAssignment, error) {
	return s.apply(ctx, actorID, assignmentID, domain.CmdEditAndResubmit, nil, nil)
}

func (s *assignmentService) MarkIncomplete(ctx context.Context, actorID, assignmentID primitive.ObjectID, expectedVersion int64) (*domain.WorkoutAssignment, error) {
	return s.apply(ctx, actorID, assignmentID, domain.CmdMarkIncomplete, nil, &expectedVersion)
}

func (s *assignmentService) apply(
	ctx context.Context,
	actorID, assignmentID primitive.ObjectID,
	kind domain.CommandKind,
	logs []domain.SetLog,
	expectedVersion *int64,
) (*domain.WorkoutAssignment, error) {
	current, err := s.load(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	group, err := loadGroup(ctx, s.groupRepo, current.GroupID)
	if err != nil {
		return nil, err
	}
	isAdmin := group.IsAdmin(actorID)
	if actorID != current.AssignedTo && !isAdmin {
		return nil, domain.ErrUnauthorized
	}
	// A stale version must fail before the transition runs, otherwise an
	// athlete completing over an unseen coach log would land on the edited branch.
	if kind.Guarded() && expectedVersion != nil && current.StateVersion != *expectedVersion {
		return nil, fmt.Errorf("%w: have version %d, stored version is %d", domain.ErrWriteConflict, *expectedVersion, current.StateVersion)
	}

	next, err := domain.Transition(*current, domain.Command{
		Kind:              kind,
		Actor:             actorID,
		ActorIsGroupAdmin: isAdmin,
		Logs:              logs,
	}, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if kind == domain.CmdEditAndResubmit {
		return &next, nil
	}

	if err := s.write(ctx, kind, current.StateVersion, &next); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Assignment transition",
		"assignment_id", assignmentID.Hex(), "command", kind, "actor_id", actorID.Hex(),
		"status", next.Status, "review_status", next.ReviewStatus, "state_version", next.StateVersion)

	if kind == domain.CmdComplete && domain.NeedsReview(&next) {
		s.notifyReviewPending(ctx, &next, actorID)
	}
	return &next, nil
}

// write persists next. Progress saves touch only the exercises of a record
// that is still scheduled; every other command is guarded on the version
// that was read.
func (s *assignmentService) write(ctx context.Context, kind domain.CommandKind, readVersion int64, next *domain.WorkoutAssignment) error {
	var err error
	if kind == domain.CmdSaveProgress {
		err = s.assignmentRepo.SaveProgress(ctx, next)
	} else {
		err = s.assignmentRepo.Update(ctx, next, &readVersion)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotScheduled):
		return fmt.Errorf("%w: assignment left scheduled before progress was saved", domain.ErrWriteConflict)
	case errors.Is(err, repository.ErrVersionConflict):
		return domain.ErrWriteConflict
	case errors.Is(err, repository.ErrNotFound):
		return ErrAssignmentNotFound
	}
	return err
}

// notifyReviewPending tells the athlete a coach logged on their behalf.
// Failures are logged only; the completion already stands.
func (s *assignmentService) notifyReviewPending(ctx context.Context, a *domain.WorkoutAssignment, coachID primitive.ObjectID) {
	athlete, err := s.userRepo.GetByID(ctx, a.AssignedTo)
	if err != nil {
		s.logger.WarnContext(ctx, "Review notification skipped", "assignment_id", a.ID.Hex(), "error", err)
		return
	}
	coachName := "Your coach"
	if coach, err := s.userRepo.GetByID(ctx, coachID); err == nil {
		coachName = coach.Name
	}
	msg := notify.ReviewPending(athlete.Email, athlete.Name, coachName, a.TemplateName)
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Review notification failed", "assignment_id", a.ID.Hex(), "error", err)
	}
}

func (s *assignmentService) load(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
	a, err := s.assignmentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *assignmentService) memberGroup(ctx context.Context, actorID, groupID primitive.ObjectID) (*domain.Group, error) {
	group, err := loadGroup(ctx, s.groupRepo, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(actorID) {
		return nil, fmt.Errorf("%w: not a member of the group", domain.ErrUnauthorized)
	}
	return group, nil
}
