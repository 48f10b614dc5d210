package api

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/service"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserResponse excludes sensitive info like password hash
type UserResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

type GroupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	AdminIDs  []string  `json:"adminIds"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
}

type AssignmentResponse struct {
	ID            string                        `json:"id"`
	BatchKey      string                        `json:"batchKey"`
	TemplateName  string                        `json:"templateName"`
	GroupID       string                        `json:"groupId"`
	AssignedTo    string                        `json:"assignedTo"`
	AssignedBy    string                        `json:"assignedBy"`
	ScheduledDate string                        `json:"scheduledDate"`
	Exercises     []domain.ExercisePrescription `json:"exercises"`
	Status        domain.AssignmentStatus       `json:"status"`
	CompletedBy   *string                       `json:"completedBy,omitempty"`
	CompletedAt   *time.Time                    `json:"completedAt,omitempty"`
	ReviewStatus  domain.ReviewStatus           `json:"reviewStatus,omitempty"`
	ReviewedAt    *time.Time                    `json:"reviewedAt,omitempty"`
	NeedsReview   bool                          `json:"needsReview"`
	Trusted       bool                          `json:"trusted"` // logged numbers count as the athlete's own
	StateVersion  int64                         `json:"stateVersion"`
	UpdatedAt     time.Time                     `json:"updatedAt"`
}

type BatchFailureResponse struct {
	AthleteID string `json:"athleteId"`
	Error     string `json:"error"`
}

type BatchResponse struct {
	BatchKey string                 `json:"batchKey"`
	Created  []AssignmentResponse   `json:"created"`
	Failed   []BatchFailureResponse `json:"failed,omitempty"`
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
	Exempt  bool  `json:"exempt"`
}

type GenerationResponse struct {
	Action   domain.AIAction `json:"action"`
	Cost     int64           `json:"cost"`
	Artifact json.RawMessage `json:"artifact"`
}

type UploadURLResponse struct {
	UploadURL string    `json:"uploadUrl"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UploadResponse struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// --- Mappers ---

func MapUserToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID.Hex(),
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func MapUsersToResponse(users []domain.User) []UserResponse {
	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = MapUserToResponse(&users[i])
	}
	return out
}

func MapGroupToResponse(g *domain.Group) GroupResponse {
	return GroupResponse{
		ID:        g.ID.Hex(),
		Name:      g.Name,
		OwnerID:   g.OwnerID.Hex(),
		AdminIDs:  hexIDs(g.AdminIDs),
		MemberIDs: hexIDs(g.MemberIDs),
		CreatedAt: g.CreatedAt,
	}
}

func MapGroupsToResponse(groups []domain.Group) []GroupResponse {
	out := make([]GroupResponse, len(groups))
	for i := range groups {
		out[i] = MapGroupToResponse(&groups[i])
	}
	return out
}

func MapAssignmentToResponse(a *domain.WorkoutAssignment) AssignmentResponse {
	resp := AssignmentResponse{
		ID:            a.ID.Hex(),
		BatchKey:      a.BatchKey,
		TemplateName:  a.TemplateName,
		GroupID:       a.GroupID.Hex(),
		AssignedTo:    a.AssignedTo.Hex(),
		AssignedBy:    a.AssignedBy.Hex(),
		ScheduledDate: a.ScheduledDate.UTC().Format(time.DateOnly),
		Exercises:     a.Exercises,
		Status:        a.Status,
		CompletedAt:   a.CompletedAt,
		ReviewStatus:  a.ReviewStatus,
		ReviewedAt:    a.ReviewedAt,
		NeedsReview:   domain.NeedsReview(a),
		Trusted:       domain.IsTrusted(a),
		StateVersion:  a.StateVersion,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.CompletedBy != nil {
		hex := a.CompletedBy.Hex()
		resp.CompletedBy = &hex
	}
	return resp
}

func MapAssignmentsToResponse(list []domain.WorkoutAssignment) []AssignmentResponse {
	out := make([]AssignmentResponse, len(list))
	for i := range list {
		out[i] = MapAssignmentToResponse(&list[i])
	}
	return out
}

func MapBatchResultToResponse(r *service.BatchResult) BatchResponse {
	resp := BatchResponse{
		BatchKey: r.BatchKey,
		Created:  MapAssignmentsToResponse(r.Created),
	}
	for _, f := range r.Failed {
		msg := f.Err.Error()
		if errors.Is(f.Err, service.ErrAlreadyAssigned) {
			msg = service.ErrAlreadyAssigned.Error()
		}
		resp.Failed = append(resp.Failed, BatchFailureResponse{AthleteID: f.AthleteID.Hex(), Error: msg})
	}
	return resp
}

func MapGenerationToResponse(r *service.GenerationResult) GenerationResponse {
	return GenerationResponse{Action: r.Action, Cost: r.Cost, Artifact: r.Artifact}
}

func MapUploadToResponse(u *domain.Upload) UploadResponse {
	return UploadResponse{
		ID:          u.ID.Hex(),
		FileName:    u.FileName,
		ContentType: u.ContentType,
		Size:        u.Size,
		UploadedAt:  u.UploadedAt,
	}
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

func parseHexIDs(raw []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, len(raw))
	for i, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
