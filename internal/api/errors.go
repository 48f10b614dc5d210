package api

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/gateway"
	"alcyxob/group-coach/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusForError maps the workflow error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrRefundFailed):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrWriteConflict),
		errors.Is(err, service.ErrUserAlreadyExists),
		errors.Is(err, service.ErrAlreadyAssigned):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, service.ErrUploadAccessDenied),
		errors.Is(err, service.ErrNotCoach):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrGatewayFailure):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidSetLog),
		errors.Is(err, service.ErrInvalidBatchInput),
		errors.Is(err, service.ErrDuplicateAthlete),
		errors.Is(err, service.ErrNotGroupMember),
		errors.Is(err, service.ErrNotAthlete),
		errors.Is(err, service.ErrInvalidFormCheckTier),
		errors.Is(err, service.ErrUnsupportedContentType),
		errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, service.ErrInvalidRegistration),
		errors.Is(err, service.ErrInvalidGroupArg),
		errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Internal errors are logged
// and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		loggerFrom(c).ErrorContext(c.Request.Context(), "Request failed", "path", c.FullPath(), "error", err)
		if errors.Is(err, service.ErrRefundFailed) {
			abortWithError(c, status, "The AI action failed and the credit refund could not be completed; support has been notified.")
			return
		}
		abortWithError(c, status, "An unexpected error occurred.")
		return
	}

	var insufficient *service.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		c.AbortWithStatusJSON(status, gin.H{
			"error":     "Insufficient credits.",
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
		return
	}
	if status == http.StatusBadGateway {
		abortWithError(c, status, "The AI service failed. Your credits were restored; please try again.")
		return
	}
	abortWithError(c, status, err.Error())
}
