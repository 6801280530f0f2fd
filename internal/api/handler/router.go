package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance/backend/internal/auth"
)

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CorrelationIDMiddleware())
	r.Use(RequestLogger(h.log))
	r.Use(CORSMiddleware(allowedOrigins))

	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")

	api.POST("/complaints", h.RateLimit("submit"), h.SubmitComplaint)
	api.GET("/complaints/:trackingId", h.GetComplaint)
	// Older clients patch status here; same rules as the admin route.
	api.PATCH("/complaints/:ref/status", h.RequireRole(auth.RoleAdmin), h.UpdateStatus)

	api.POST("/messages/:trackingId", h.RateLimit("message"), h.AppendMessage)
	api.GET("/messages/:trackingId", h.ListMessages)

	admin := api.Group("/admin", h.RequireRole(auth.RoleAdmin))
	admin.GET("/complaints", h.ListComplaints)
	admin.PATCH("/complaints/:ref", h.UpdateStatus)
	admin.DELETE("/complaints/:ref", h.DeleteComplaint)
	admin.GET("/stats", h.Stats)

	super := api.Group("/super", h.RequireRole(auth.RoleSuperAdmin))
	super.GET("/complaints", h.ListJoined)
	super.GET("/complaints/:trackingId", h.GetJoined)

	return r
}

// Health reports liveness and, when a pinger is set, store reachability.
func (h *Handler) Health(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
