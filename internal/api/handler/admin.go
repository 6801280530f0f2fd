package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance/backend/internal/apperror"
	"grievance/backend/internal/models"
)

// UpdateStatus applies a workflow transition. :ref is a tracking id or the
// internal id.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperror.New(apperror.KindValidation, "invalid request body"))
		return
	}

	view, err := h.Complaints.UpdateStatus(c.Request.Context(), c.Param("ref"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListComplaints returns every complaint without identity data.
func (h *Handler) ListComplaints(c *gin.Context) {
	views, err := h.Complaints.ListAdmin(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// DeleteComplaint removes a complaint outside the workflow.
func (h *Handler) DeleteComplaint(c *gin.Context) {
	if err := h.Complaints.Delete(c.Request.Context(), c.Param("ref")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats returns per-status counts.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Complaints.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListJoined returns complaints with identities. super_admin only.
func (h *Handler) ListJoined(c *gin.Context) {
	views, err := h.Complaints.ListJoined(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GetJoined returns one complaint with its identity. super_admin only.
func (h *Handler) GetJoined(c *gin.Context) {
	view, err := h.Complaints.GetJoined(c.Request.Context(), c.Param("trackingId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
