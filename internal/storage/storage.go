package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"grievance/backend/internal/models"
	"grievance/backend/internal/workflow"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key (the tracking id) is taken.
	ErrDuplicate = errors.New("duplicate key")
	// ErrStale is returned when a compare-and-swap update lost the race.
	ErrStale = errors.New("stale version")
)

// Storage is the persistence contract of the complaint and thread services.
// Complaints and identities are separate records linked only by tracking id.
type Storage interface {
	// CreateComplaint writes the complaint and its identity record as one
	// atomic unit: both exist afterwards or neither does.
	CreateComplaint(ctx context.Context, complaint *models.Complaint, identity *models.Identity) error
	TrackingIDExists(ctx context.Context, trackingID string) (bool, error)
	GetComplaintByTrackingID(ctx context.Context, trackingID string) (*models.Complaint, error)
	GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error)
	// ListComplaints returns every complaint, newest first.
	ListComplaints(ctx context.Context) ([]models.Complaint, error)
	// UpdateComplaintStatus sets status and updatedAt and bumps the version,
	// but only while the stored version still equals expectedVersion.
	UpdateComplaintStatus(ctx context.Context, id string, expectedVersion int, status workflow.Status, updatedAt time.Time) error
	// DeleteComplaint removes the complaint, its identity and its thread.
	DeleteComplaint(ctx context.Context, id string) error

	// GetIdentity returns nil without error when no identity record exists.
	GetIdentity(ctx context.Context, trackingID string) (*models.Identity, error)

	SaveMessage(ctx context.Context, msg *models.Message) error
	// ListMessages returns the thread in ascending timestamp order.
	ListMessages(ctx context.Context, complaintID string) ([]models.Message, error)
}

// IdentityBatchReader is implemented by stores that can resolve many
// identities in one round trip. Missing tracking ids are absent from the map.
type IdentityBatchReader interface {
	GetIdentities(ctx context.Context, trackingIDs []string) (map[string]*models.Identity, error)
}

// Service is the PostgreSQL-backed Storage. Redis is optional and only
// checked by Ping.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Ping checks the database and, when configured, Redis.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	if s.Redis != nil {
		return s.Redis.Ping(ctx).Err()
	}
	return nil
}

// translate maps gorm errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
