package api

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/service"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupHandler serves group membership and batch assignment endpoints.
type GroupHandler struct {
	groupService      service.GroupService
	batchService      service.BatchService
	generationService service.GenerationService
}

func NewGroupHandler(gs service.GroupService, bs service.BatchService, gen service.GenerationService) *GroupHandler {
	return &GroupHandler{groupService: gs, batchService: bs, generationService: gen}
}

type CreateGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddAthleteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type AddAdminRequest struct {
	UserID string `json:"userId" binding:"required,objectid"`
}

type AthletePrescriptionRequest struct {
	AthleteID string                        `json:"athleteId" binding:"required,objectid"`
	Exercises []domain.ExercisePrescription `json:"exercises" binding:"required,min=1"`
}

type CreateBatchRequest struct {
	TemplateName  string                       `json:"templateName" binding:"required"`
	Date          string                       `json:"date" binding:"required"`
	Prescriptions []AthletePrescriptionRequest `json:"prescriptions" binding:"required,min=1,dive"`
}

type GenerateGroupWorkoutRequest struct {
	TemplateName string          `json:"templateName" binding:"required"`
	Date         string          `json:"date" binding:"required"`
	AthleteIDs   []string        `json:"athleteIds" binding:"required,min=1,dive,objectid"`
	Prompt       json.RawMessage `json:"prompt" binding:"required"`
}

func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	group, err := h.groupService.CreateGroup(c.Request.Context(), userID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapGroupToResponse(group))
}

func (h *GroupHandler) ListMyGroups(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groups, err := h.groupService.ListMyGroups(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapGroupsToResponse(groups))
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	group, err := h.groupService.GetGroup(c.Request.Context(), userID, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapGroupToResponse(group))
}

func (h *GroupHandler) ListMembers(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	members, err := h.groupService.ListMembers(c.Request.Context(), userID, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapUsersToResponse(members))
}

// AddAthlete adds an existing athlete to the group by email.
func (h *GroupHandler) AddAthlete(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	var req AddAthleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	athlete, err := h.groupService.AddAthleteByEmail(c.Request.Context(), userID, groupID, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapUserToResponse(athlete))
}

func (h *GroupHandler) AddAdmin(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	var req AddAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	adminID, _ := primitive.ObjectIDFromHex(req.UserID)
	group, err := h.groupService.AddAdmin(c.Request.Context(), userID, groupID, adminID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapGroupToResponse(group))
}

// CreateBatch assigns a workout template to several athletes at once. A
// partial failure answers 207 with the created and failed athletes.
func (h *GroupHandler) CreateBatch(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD.")
		return
	}

	input := service.BatchInput{GroupID: groupID, TemplateName: req.TemplateName, Date: date}
	for _, p := range req.Prescriptions {
		athleteID, _ := primitive.ObjectIDFromHex(p.AthleteID)
		input.Prescriptions = append(input.Prescriptions, service.AthletePrescription{AthleteID: athleteID, Exercises: p.Exercises})
	}

	result, err := h.batchService.CreateBatch(c.Request.Context(), userID, input)
	respondBatch(c, result, err)
}

func (h *GroupHandler) GetBatch(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	list, err := h.batchService.GetBatchByKey(c.Request.Context(), userID, groupID, c.Param("batchKey"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapAssignmentsToResponse(list))
}

// GenerateGroupWorkout charges the coach per athlete, asks the AI gateway for
// prescriptions and assigns them as one batch.
func (h *GroupHandler) GenerateGroupWorkout(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groupID, ok := pathObjectID(c, "groupId")
	if !ok {
		return
	}
	var req GenerateGroupWorkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD.")
		return
	}
	athleteIDs, err := parseHexIDs(req.AthleteIDs)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid athlete ID format.")
		return
	}

	result, err := h.generationService.GenerateGroupWorkout(c.Request.Context(), userID, service.GroupWorkoutInput{
		GroupID:      groupID,
		TemplateName: req.TemplateName,
		Date:         date,
		AthleteIDs:   athleteIDs,
		Prompt:       req.Prompt,
	})
	respondBatch(c, result, err)
}

func respondBatch(c *gin.Context, result *service.BatchResult, err error) {
	var partial *service.PartialBatchError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, MapBatchResultToResponse(result))
	case result != nil && errors.As(err, &partial) && !errors.Is(err, service.ErrRefundFailed):
		c.JSON(http.StatusMultiStatus, MapBatchResultToResponse(result))
	default:
		respondError(c, err)
	}
}
