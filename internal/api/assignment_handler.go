package api

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentHandler serves the workout logging and review endpoints.
type AssignmentHandler struct {
	assignmentService service.AssignmentService
}

func NewAssignmentHandler(as service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: as}
}

type SetLogsRequest struct {
	Logs []domain.SetLog `json:"logs"`
}

type CompleteRequest struct {
	ExpectedVersion *int64          `json:"expectedVersion" binding:"required"`
	Logs            []domain.SetLog `json:"logs"`
}

type VersionedRequest struct {
	ExpectedVersion *int64 `json:"expectedVersion" binding:"required"`
}

func (h *AssignmentHandler) ListMine(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	list, err := h.assignmentService.ListMine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapAssignmentsToResponse(list))
}

// ListPendingReviews returns coach-logged workouts awaiting the athlete's review.
func (h *AssignmentHandler) ListPendingReviews(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	list, err := h.assignmentService.ListPendingReviews(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapAssignmentsToResponse(list))
}

func (h *AssignmentHandler) ListByGroup(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	list, err := h.assignmentService.ListByGroup(c.Request.Context(), userID, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapAssignmentsToResponse(list))
}

func (h *AssignmentHandler) Get(c *gin.Context) {
	h.withAssignment(c, func(userID, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
		return h.assignmentService.Get(c.Request.Context(), userID, id)
	})
}

// SaveProgress stores partially logged sets without completing the workout.
func (h *AssignmentHandler) SaveProgress(c *gin.Context) {
	var req SetLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	h.withAssignment(c, func(userID, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
		return h.assignmentService.SaveProgress(c.Request.Context(), userID, id, req.Logs)
	})
}

func (h *AssignmentHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	h.withAssignment(c, func(userID, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
		return h.assignmentService.Complete(c.Request.Context(), userID, id, *req.ExpectedVersion, req.Logs)
	})
}

func (h *AssignmentHandler) Approve(c *gin.Context) {
	var req VersionedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	h.withAssignment(c, func(userID, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
		return h.assignmentService.Approve(c.Request.Context(), userID, id, *req.ExpectedVersion)
	})
}

// EditAndResubmit opens a pending review for editing. The returned version is
// the one to send with the follow-up Complete.
func (h *AssignmentHandler) EditAndResubmit(c *gin.Context) {
	h.withAssignment(c, func(userID, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
		return h.assignmentService.EditAndResubmit(c.Request.Context(), userID, id)
	})
}

func (h *AssignmentHandler) MarkIncomplete(c *gin.Context) {
	var req VersionedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	h.withAssignment(c, func(userID, id primitive.ObjectID) (*domain.WorkoutAssignment, error) {
		return h.assignmentService.MarkIncomplete(c.Request.Context(), userID, id, *req.ExpectedVersion)
	})
}

func (h *AssignmentHandler) withAssignment(c *gin.Context, fn func(userID, id primitive.ObjectID) (*domain.WorkoutAssignment, error)) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	assignmentID, ok := pathObjectID(c, "assignmentId")
	if !ok {
		return
	}
	a, err := fn(userID, assignmentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapAssignmentToResponse(a))
}
