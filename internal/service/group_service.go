package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/repository"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotCoach        = errors.New("only coaches can create groups")
	ErrNotAthlete      = errors.New("user found but is not an athlete")
	ErrNotGroupMember  = errors.New("user is not a member of the group")
	ErrInvalidGroupArg = errors.New("group name is required")
)

// GroupService manages coaching groups and their membership.
type GroupService interface {
	CreateGroup(ctx context.Context, ownerID primitive.ObjectID, name string) (*domain.Group, error)
	GetGroup(ctx context.Context, actorID, groupID primitive.ObjectID) (*domain.Group, error)
	ListMyGroups(ctx context.Context, userID primitive.ObjectID) ([]domain.Group, error)
	ListMembers(ctx context.Context, actorID, groupID primitive.ObjectID) ([]domain.User, error)
	AddAthleteByEmail(ctx context.Context, actorID, groupID primitive.ObjectID, email string) (*domain.User, error)
	AddAdmin(ctx context.Context, actorID, groupID, userID primitive.ObjectID) (*domain.Group, error)
}

type groupService struct {
	userRepo  repository.UserRepository
	groupRepo repository.GroupRepository
	logger    *slog.Logger
}

func NewGroupService(userRepo repository.UserRepository, groupRepo repository.GroupRepository, logger *slog.Logger) GroupService {
	return &groupService{userRepo: userRepo, groupRepo: groupRepo, logger: logger}
}

// CreateGroup makes the creating coach the owner and first admin.
func (s *groupService) CreateGroup(ctx context.Context, ownerID primitive.ObjectID, name string) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidGroupArg
	}
	owner, err := s.userRepo.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !owner.IsCoach() {
		return nil, ErrNotCoach
	}

	group := &domain.Group{
		Name:      name,
		OwnerID:   ownerID,
		AdminIDs:  []primitive.ObjectID{ownerID},
		MemberIDs: []primitive.ObjectID{ownerID},
	}
	if _, err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Group created", "group_id", group.ID.Hex(), "owner_id", ownerID.Hex())
	return group, nil
}

func (s *groupService) GetGroup(ctx context.Context, actorID, groupID primitive.ObjectID) (*domain.Group, error) {
	group, err := loadGroup(ctx, s.groupRepo, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(actorID) {
		return nil, fmt.Errorf("%w: not a member of the group", domain.ErrUnauthorized)
	}
	return group, nil
}

func (s *groupService) ListMyGroups(ctx context.Context, userID primitive.ObjectID) ([]domain.Group, error) {
	return s.groupRepo.ListByMember(ctx, userID)
}

// ListMembers returns the group's members without password hashes. Admins only.
func (s *groupService) ListMembers(ctx context.Context, actorID, groupID primitive.ObjectID) ([]domain.User, error) {
	group, err := loadAdminGroup(ctx, s.groupRepo, actorID, groupID)
	if err != nil {
		return nil, err
	}
	members := make([]domain.User, 0, len(group.MemberIDs))
	for _, id := range group.MemberIDs {
		user, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.logger.WarnContext(ctx, "Group references missing user", "group_id", groupID.Hex(), "user_id", id.Hex())
				continue
			}
			return nil, err
		}
		user.PasswordHash = ""
		members = append(members, *user)
	}
	return members, nil
}

// AddAthleteByEmail finds an athlete by email and adds them to the group.
// Adding an existing member is a no-op.
func (s *groupService) AddAthleteByEmail(ctx context.Context, actorID, groupID primitive.ObjectID, email string) (*domain.User, error) {
	if _, err := loadAdminGroup(ctx, s.groupRepo, actorID, groupID); err != nil {
		return nil, err
	}

	athlete, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !athlete.IsAthlete() {
		return nil, ErrNotAthlete
	}

	if err := s.groupRepo.AddMember(ctx, groupID, athlete.ID); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Athlete added to group", "group_id", groupID.Hex(), "athlete_id", athlete.ID.Hex())
	athlete.PasswordHash = ""
	return athlete, nil
}

// AddAdmin promotes an existing member to group admin.
func (s *groupService) AddAdmin(ctx context.Context, actorID, groupID, userID primitive.ObjectID) (*domain.Group, error) {
	group, err := loadAdminGroup(ctx, s.groupRepo, actorID, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(userID) {
		return nil, ErrNotGroupMember
	}
	if err := s.groupRepo.AddAdmin(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return loadGroup(ctx, s.groupRepo, groupID)
}

func loadGroup(ctx context.Context, repo repository.GroupRepository, groupID primitive.ObjectID) (*domain.Group, error) {
	group, err := repo.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return group, nil
}

func loadAdminGroup(ctx context.Context, repo repository.GroupRepository, actorID, groupID primitive.ObjectID) (*domain.Group, error) {
	group, err := loadGroup(ctx, repo, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsAdmin(actorID) {
		return nil, fmt.Errorf("%w: not an admin of the group", domain.ErrUnauthorized)
	}
	return group, nil
}
