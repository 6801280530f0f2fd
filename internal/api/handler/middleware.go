package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"grievance/backend/internal/apperror"
	"grievance/backend/internal/auth"
)

const (
	correlationIDKey = "correlation_id"
	principalKey     = "principal"
)

// CorrelationIDMiddleware propagates or assigns X-Correlation-ID.
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := extractCorrelationID(c)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set(correlationIDKey, correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

func extractCorrelationID(c *gin.Context) string {
	for _, header := range []string{"X-Correlation-ID", "X-Request-ID"} {
		if id := c.GetHeader(header); id != "" {
			return id
		}
	}
	return ""
}

// RequestLogger logs one line per request. The route template is logged
// instead of the raw path so tracking ids stay out of access logs.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"route":          c.FullPath(),
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"correlation_id": c.GetString(correlationIDKey),
		}).Info("request handled")
	}
}

// CORSMiddleware allows the configured origins; "*" allows any.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && isOriginAllowed(origin, allowedOrigins) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-ID")
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}
		c.Next()
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// RequireRole authenticates the bearer token and enforces a minimum role.
func (h *Handler) RequireRole(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := h.Auth.Authenticate(c.Request.Context(), bearerToken(c))
		if err != nil {
			msg := "invalid or expired token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "authentication required"
			}
			h.respondError(c, apperror.Wrap(err, apperror.KindUnauthorized, msg))
			return
		}
		if !principal.Role.AtLeast(role) {
			h.respondError(c, apperror.Newf(apperror.KindForbidden, "requires role %s", role))
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// RateLimit throttles by client IP under the given scope. Limiter failures
// let the request through.
func (h *Handler) RateLimit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}

		allowed, err := h.limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			h.log.WithError(err).WithField("scope", scope).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", "60")
			h.respondError(c, apperror.New(apperror.KindRateLimited, "too many requests, try again later"))
			return
		}
		c.Next()
	}
}
