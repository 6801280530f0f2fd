package handler

import (
	"context"

	"github.com/sirupsen/logrus"

	"grievance/backend/internal/auth"
	"grievance/backend/internal/complaint"
	"grievance/backend/internal/metrics"
	"grievance/backend/internal/ratelimit"
	"grievance/backend/internal/thread"
)

// Pinger reports whether backing stores are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the services behind the HTTP API.
type Handler struct {
	Complaints *complaint.Service
	Threads    *thread.Service
	Auth       auth.Authenticator

	limiter ratelimit.Limiter
	metrics *metrics.Metrics
	pinger  Pinger
	log     logrus.FieldLogger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLimiter throttles anonymous writes. A nil limiter disables throttling.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithMetrics serves m at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithPinger makes /health check the stores.
func WithPinger(p Pinger) Option {
	return func(h *Handler) { h.pinger = p }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(h *Handler) { h.log = log }
}

func NewHandler(complaints *complaint.Service, threads *thread.Service, authn auth.Authenticator, opts ...Option) *Handler {
	h := &Handler{
		Complaints: complaints,
		Threads:    threads,
		Auth:       authn,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
