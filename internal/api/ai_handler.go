package api

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/service"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AIHandler serves the paid AI actions.
type AIHandler struct {
	generationService service.GenerationService
}

func NewAIHandler(gen service.GenerationService) *AIHandler {
	return &AIHandler{generationService: gen}
}

type GenerateRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type FormCheckUploadURLRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

type ConfirmFormCheckUploadRequest struct {
	ObjectKey   string `json:"objectKey" binding:"required"`
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	Size        int64  `json:"size" binding:"required,gt=0"`
}

type AnalyzeFormCheckRequest struct {
	UploadID string               `json:"uploadId" binding:"required,objectid"`
	Tier     domain.FormCheckTier `json:"tier" binding:"required"`
	Notes    string               `json:"notes"`
}

type generateFunc func(ctx context.Context, userID primitive.ObjectID, payload json.RawMessage) (*service.GenerationResult, error)

func (h *AIHandler) Chat(c *gin.Context) {
	h.generate(c, h.generationService.Chat)
}

func (h *AIHandler) GenerateWorkout(c *gin.Context) {
	h.generate(c, h.generationService.GenerateWorkout)
}

func (h *AIHandler) GenerateProgram(c *gin.Context) {
	h.generate(c, h.generationService.GenerateProgram)
}

func (h *AIHandler) generate(c *gin.Context, fn generateFunc) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	result, err := fn(c.Request.Context(), userID, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapGenerationToResponse(result))
}

// RequestFormCheckUploadURL godoc
// @Summary Get a presigned URL to upload a form-check video
// @Tags AI
// @Accept json
// @Produce json
// @Success 200 {object} UploadURLResponse
// @Router /ai/form-check/upload-url [post]
func (h *AIHandler) RequestFormCheckUploadURL(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req FormCheckUploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	result, err := h.generationService.RequestFormCheckUploadURL(c.Request.Context(), userID, req.FileName, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, UploadURLResponse{UploadURL: result.UploadURL, ObjectKey: result.ObjectKey, ExpiresAt: result.ExpiresAt})
}

// ConfirmFormCheckUpload records the metadata of a video the client has PUT.
func (h *AIHandler) ConfirmFormCheckUpload(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req ConfirmFormCheckUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	upload, err := h.generationService.ConfirmFormCheckUpload(c.Request.Context(), userID, req.ObjectKey, req.FileName, req.ContentType, req.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapUploadToResponse(upload))
}

func (h *AIHandler) AnalyzeFormCheck(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req AnalyzeFormCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, validationMessage(err))
		return
	}
	uploadID, _ := primitive.ObjectIDFromHex(req.UploadID)
	result, err := h.generationService.AnalyzeFormCheck(c.Request.Context(), userID, uploadID, req.Tier, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapGenerationToResponse(result))
}
