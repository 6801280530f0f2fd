// Package thread stores the message exchange attached to a complaint.
// Threads are append-only and read back as a finite, ordered slice.
package thread

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"grievance/backend/internal/apperror"
	"grievance/backend/internal/config"
	"grievance/backend/internal/metrics"
	"grievance/backend/internal/models"
	"grievance/backend/internal/storage"
	"grievance/backend/internal/tracking"
)

// Service appends and lists thread messages.
type Service struct {
	Storage storage.Storage

	metrics *metrics.Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock that stamps messages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a thread service.
func NewService(s storage.Storage, opts ...Option) *Service {
	svc := &Service{
		Storage: s,
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Append adds a message to the thread of an existing complaint.
func (s *Service) Append(ctx context.Context, rawTrackingID, sender, text string) (models.Message, error) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if !slices.Contains(config.MessageSenders, sender) {
		return models.Message{}, apperror.Newf(apperror.KindValidation,
			"sender must be one of: %s", strings.Join(config.MessageSenders, ", "))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, apperror.New(apperror.KindValidation, "message text is required")
	}
	if utf8.RuneCountInString(text) > config.MaxMessageLength {
		return models.Message{}, apperror.Newf(apperror.KindValidation,
			"message text must be at most %d characters", config.MaxMessageLength)
	}

	trackingID, err := s.existing(ctx, rawTrackingID)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ComplaintID: trackingID,
		Sender:      sender,
		Text:        text,
		Timestamp:   s.now().UTC(),
	}
	if err := s.Storage.SaveMessage(ctx, &msg); err != nil {
		s.log.WithError(err).WithField("tracking_id", trackingID).Error("failed to save message")
		return models.Message{}, apperror.Wrap(err, apperror.KindPersistence, "failed to save message")
	}

	if s.metrics != nil {
		s.metrics.IncrementMessages(sender)
	}
	s.log.WithFields(logrus.Fields{
		"tracking_id": trackingID,
		"sender":      sender,
	}).Debug("message appended")

	return msg, nil
}

// ListFor returns the thread in ascending timestamp order. An existing
// complaint without messages yields an empty slice.
func (s *Service) ListFor(ctx context.Context, rawTrackingID string) ([]models.Message, error) {
	trackingID, err := s.existing(ctx, rawTrackingID)
	if err != nil {
		return nil, err
	}

	messages, err := s.Storage.ListMessages(ctx, trackingID)
	if err != nil {
		s.log.WithError(err).WithField("tracking_id", trackingID).Error("failed to list messages")
		return nil, apperror.Wrap(err, apperror.KindPersistence, "failed to load messages")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// existing normalizes the tracking id and checks that the complaint exists.
func (s *Service) existing(ctx context.Context, raw string) (string, error) {
	trackingID := tracking.Normalize(raw)
	if !tracking.Valid(trackingID) {
		return "", apperror.Newf(apperror.KindValidation, "invalid tracking id %q", strings.TrimSpace(raw))
	}

	if _, err := s.Storage.GetComplaintByTrackingID(ctx, trackingID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperror.Wrap(err, apperror.KindNotFound, "complaint not found")
		}
		s.log.WithError(err).WithField("tracking_id", trackingID).Error("failed to load complaint")
		return "", apperror.Wrap(err, apperror.KindPersistence, "failed to load complaint")
	}
	return trackingID, nil
}
