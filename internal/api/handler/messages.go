package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance/backend/internal/apperror"
	"grievance/backend/internal/models"
)

func (h *Handler) AppendMessage(c *gin.Context) {
	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperror.New(apperror.KindValidation, "invalid request body"))
		return
	}

	msg, err := h.Threads.Append(c.Request.Context(), c.Param("trackingId"), req.Sender, req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ListMessages(c *gin.Context) {
	messages, err := h.Threads.ListFor(c.Request.Context(), c.Param("trackingId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}
