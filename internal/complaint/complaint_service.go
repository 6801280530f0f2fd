// Package complaint holds the complaint lifecycle: anonymous submission,
// public tracking, staff status changes and the privileged identity join.
package complaint

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"grievance/backend/internal/analysis"
	"grievance/backend/internal/apperror"
	"grievance/backend/internal/config"
	"grievance/backend/internal/metrics"
	"grievance/backend/internal/models"
	"grievance/backend/internal/storage"
	"grievance/backend/internal/tracking"
	"grievance/backend/internal/workflow"
)

// Service handles the business logic for complaints.
type Service struct {
	Storage storage.Storage

	generator tracking.Generator
	cache     storage.PublicCache
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; the logrus standard logger is used otherwise.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithCache enables the read-through cache for public lookups.
func WithCache(cache storage.PublicCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the clock used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithGenerator overrides the tracking id generator.
func WithGenerator(g tracking.Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// NewService creates a new complaint service.
func NewService(s storage.Storage, opts ...Option) *Service {
	svc := &Service{
		Storage:   s,
		generator: tracking.NewGenerator(),
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit stores an anonymous complaint and its identity record and returns
// the tracking id. Nothing else about the stored records is returned.
func (s *Service) Submit(ctx context.Context, req models.SubmitRequest) (string, error) {
	start := time.Now()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", apperror.New(apperror.KindValidation, err.Error())
	}

	now := s.now().UTC()
	for attempt := 1; attempt <= config.MaxTrackingAttempts; attempt++ {
		trackingID := s.generator.Generate()

		exists, err := s.Storage.TrackingIDExists(ctx, trackingID)
		if err != nil {
			s.log.WithError(err).Error("failed to check tracking id")
			return "", apperror.Wrap(err, apperror.KindPersistence, "failed to save complaint")
		}
		if exists {
			s.log.WithField("attempt", attempt).Warn("tracking id collision, regenerating")
			continue
		}

		complaint := &models.Complaint{
			TrackingID:  trackingID,
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Status:      workflow.InitialStatus,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		identity := &models.Identity{
			TrackingID: trackingID,
			Name:       req.Name,
			Email:      req.Email,
			Phone:      req.Phone,
			CreatedAt:  now,
		}

		err = s.Storage.CreateComplaint(ctx, complaint, identity)
		if errors.Is(err, storage.ErrDuplicate) {
			s.log.WithField("attempt", attempt).Warn("tracking id taken at insert, regenerating")
			continue
		}
		if err != nil {
			s.log.WithError(err).Error("failed to save complaint")
			return "", apperror.Wrap(err, apperror.KindPersistence, "failed to save complaint")
		}

		if s.metrics != nil {
			s.metrics.IncrementSubmitted()
			s.metrics.ObserveSubmit(start)
		}
		s.log.WithFields(logrus.Fields{
			"tracking_id":  trackingID,
			"category":     complaint.Category,
			"has_identity": req.HasIdentity(),
		}).Info("complaint submitted")

		return trackingID, nil
	}

	s.log.WithField("attempts", config.MaxTrackingAttempts).Error("could not allocate a unique tracking id")
	return "", apperror.New(apperror.KindPersistence, "failed to save complaint")
}

// GetPublic returns the anonymous view of a complaint. Lookup is
// case-insensitive; the view never carries identity fields.
func (s *Service) GetPublic(ctx context.Context, rawTrackingID string) (models.PublicView, error) {
	trackingID, err := parseTrackingID(rawTrackingID)
	if err != nil {
		return models.PublicView{}, err
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, trackingID)
		if err != nil {
			s.log.WithError(err).WithField("tracking_id", trackingID).Warn("public cache read failed")
		} else if cached != nil {
			return *cached, nil
		}
	}

	complaint, err := s.Storage.GetComplaintByTrackingID(ctx, trackingID)
	if err != nil {
		return models.PublicView{}, s.lookupError(err, trackingID)
	}

	view := complaint.PublicView()
	if s.cache != nil {
		if err := s.cache.Set(ctx, view, complaint.Version); err != nil {
			s.log.WithError(err).WithField("tracking_id", trackingID).Warn("public cache write failed")
		}
	}
	return view, nil
}

// UpdateStatus moves a complaint to the requested status if the workflow
// allows it. ref is either the tracking id or the internal id. A denial
// carries the workflow's reason verbatim. A concurrent change between load
// and write yields a conflict.
func (s *Service) UpdateStatus(ctx context.Context, ref, requested string) (models.AdminView, error) {
	complaint, err := s.resolve(ctx, ref)
	if err != nil {
		return models.AdminView{}, err
	}

	target := workflow.Canonical(requested)
	guard := workflow.ValidateTransition(complaint.Status, target)
	if !guard.Allowed {
		s.observeTransition("denied", target)
		s.log.WithFields(logrus.Fields{
			"tracking_id": complaint.TrackingID,
			"status":      complaint.Status,
			"requested":   target,
			"code":        guard.Code,
		}).Info("status change denied")
		return models.AdminView{}, apperror.New(apperror.KindValidation, guard.Reason)
	}

	now := s.now().UTC()
	err = s.Storage.UpdateComplaintStatus(ctx, complaint.ID, complaint.Version, target, now)
	if errors.Is(err, storage.ErrStale) {
		s.observeTransition("conflict", target)
		return models.AdminView{}, apperror.Wrap(err, apperror.KindConflict, "stale state, retry")
	}
	if err != nil {
		s.log.WithError(err).WithField("tracking_id", complaint.TrackingID).Error("failed to update status")
		return models.AdminView{}, apperror.Wrap(err, apperror.KindPersistence, "failed to update status")
	}

	s.invalidate(ctx, complaint.TrackingID, complaint.Version+1)
	s.observeTransition("allowed", target)
	s.log.WithFields(logrus.Fields{
		"tracking_id": complaint.TrackingID,
		"from":        complaint.Status,
		"status":      target,
	}).Info("status changed")

	complaint.Status = target
	complaint.UpdatedAt = now
	complaint.Version++
	return complaint.AdminView(), nil
}

// ListAdmin returns every complaint without identity data, newest first.
func (s *Service) ListAdmin(ctx context.Context) ([]models.AdminView, error) {
	complaints, err := s.Storage.ListComplaints(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to list complaints")
		return nil, apperror.Wrap(err, apperror.KindPersistence, "failed to list complaints")
	}

	views := make([]models.AdminView, 0, len(complaints))
	for i := range complaints {
		views = append(views, complaints[i].AdminView())
	}
	return views, nil
}

// GetJoined returns a complaint merged with its identity record. A missing
// identity record yields null contact fields, not an error.
func (s *Service) GetJoined(ctx context.Context, rawTrackingID string) (models.JoinedView, error) {
	trackingID, err := parseTrackingID(rawTrackingID)
	if err != nil {
		return models.JoinedView{}, err
	}

	complaint, err := s.Storage.GetComplaintByTrackingID(ctx, trackingID)
	if err != nil {
		return models.JoinedView{}, s.lookupError(err, trackingID)
	}

	identity, err := s.Storage.GetIdentity(ctx, trackingID)
	if err != nil {
		s.log.WithError(err).WithField("tracking_id", trackingID).Error("failed to load identity")
		return models.JoinedView{}, apperror.Wrap(err, apperror.KindPersistence, "failed to load identity")
	}

	return models.NewJoinedView(complaint, identity), nil
}

// ListJoined returns every complaint merged with its identity, newest first.
// Identities are fetched in one batch when the store supports it, otherwise
// per row with bounded concurrency.
func (s *Service) ListJoined(ctx context.Context) ([]models.JoinedView, error) {
	complaints, err := s.Storage.ListComplaints(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to list complaints")
		return nil, apperror.Wrap(err, apperror.KindPersistence, "failed to list complaints")
	}

	identities, err := s.loadIdentities(ctx, complaints)
	if err != nil {
		s.log.WithError(err).Error("failed to load identities")
		return nil, apperror.Wrap(err, apperror.KindPersistence, "failed to load identities")
	}

	views := make([]models.JoinedView, 0, len(complaints))
	for i := range complaints {
		views = append(views, models.NewJoinedView(&complaints[i], identities[i]))
	}
	return views, nil
}

// loadIdentities returns identities aligned by index with complaints.
func (s *Service) loadIdentities(ctx context.Context, complaints []models.Complaint) ([]*models.Identity, error) {
	identities := make([]*models.Identity, len(complaints))

	if batch, ok := s.Storage.(storage.IdentityBatchReader); ok {
		ids := make([]string, len(complaints))
		for i := range complaints {
			ids[i] = complaints[i].TrackingID
		}
		found, err := batch.GetIdentities(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i, id := range ids {
			identities[i] = found[id]
		}
		return identities, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.IdentityLookupConcurrency)
	for i := range complaints {
		g.Go(func() error {
			identity, err := s.Storage.GetIdentity(gctx, complaints[i].TrackingID)
			if err != nil {
				return err
			}
			identities[i] = identity
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return identities, nil
}

// Delete removes a complaint with its identity and thread. This bypasses
// the workflow and is reserved for administrators.
func (s *Service) Delete(ctx context.Context, ref string) error {
	complaint, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}

	if err := s.Storage.DeleteComplaint(ctx, complaint.ID); err != nil {
		return s.lookupError(err, complaint.TrackingID)
	}

	s.invalidate(ctx, complaint.TrackingID, complaint.Version+1)
	s.log.WithField("tracking_id", complaint.TrackingID).Warn("complaint deleted")
	return nil
}

// Stats counts complaints per status.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	complaints, err := s.Storage.ListComplaints(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to list complaints")
		return models.Stats{}, apperror.Wrap(err, apperror.KindPersistence, "failed to compute stats")
	}
	return analysis.Summarize(complaints), nil
}

// resolve loads a complaint by tracking id when ref looks like one, and by
// internal id otherwise.
func (s *Service) resolve(ctx context.Context, ref string) (*models.Complaint, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperror.New(apperror.KindValidation, "complaint reference is required")
	}

	var (
		complaint *models.Complaint
		err       error
	)
	if normalized := tracking.Normalize(ref); tracking.Valid(normalized) {
		complaint, err = s.Storage.GetComplaintByTrackingID(ctx, normalized)
	} else {
		complaint, err = s.Storage.GetComplaintByID(ctx, ref)
	}
	if err != nil {
		return nil, s.lookupError(err, ref)
	}
	return complaint, nil
}

func (s *Service) lookupError(err error, ref string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperror.Wrap(err, apperror.KindNotFound, "complaint not found")
	}
	s.log.WithError(err).WithField("ref", ref).Error("failed to load complaint")
	return apperror.Wrap(err, apperror.KindPersistence, "failed to load complaint")
}

// invalidate drops the cached view and fences off readers that loaded a
// version older than version.
func (s *Service) invalidate(ctx context.Context, trackingID string, version int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, trackingID, version); err != nil {
		s.log.WithError(err).WithField("tracking_id", trackingID).Warn("public cache invalidation failed")
	}
}

func (s *Service) observeTransition(result string, target workflow.Status) {
	if s.metrics == nil {
		return
	}
	if !workflow.IsValid(target) {
		target = "unknown"
	}
	s.metrics.ObserveTransition(result, string(target))
}

// parseTrackingID normalizes user input and rejects malformed ids.
func parseTrackingID(raw string) (string, error) {
	trackingID := tracking.Normalize(raw)
	if !tracking.Valid(trackingID) {
		return "", apperror.Newf(apperror.KindValidation, "invalid tracking id %q", strings.TrimSpace(raw))
	}
	return trackingID, nil
}
