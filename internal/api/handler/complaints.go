package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance/backend/internal/apperror"
	"grievance/backend/internal/models"
)

// SubmitComplaint accepts an anonymous complaint and returns only its
// tracking id.
func (h *Handler) SubmitComplaint(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperror.New(apperror.KindValidation, "invalid request body"))
		return
	}

	trackingID, err := h.Complaints.Submit(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"trackingId": trackingID})
}

// GetComplaint is the anonymous tracking lookup.
func (h *Handler) GetComplaint(c *gin.Context) {
	view, err := h.Complaints.GetPublic(c.Request.Context(), c.Param("trackingId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
