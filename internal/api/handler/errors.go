package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance/backend/internal/apperror"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string        `json:"error"`
	Code  apperror.Kind `json:"code"`
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status code for its kind. Causes of
// server-side failures stay in the logs.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || !appErr.IsClientError() {
		h.log.WithError(err).WithField("correlation_id", c.GetString(correlationIDKey)).
			Error("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: apperror.Message(err), Code: kind})
}
