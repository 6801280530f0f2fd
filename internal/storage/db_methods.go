package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"grievance/backend/internal/config"
	"grievance/backend/internal/models"
	"grievance/backend/internal/workflow"
)

// GormConfig is shared by Open and the tests. Transactions are explicit
// where two writes must land together; driver errors are translated so
// unique violations surface as gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// Open connects to PostgreSQL and applies the pool settings.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: cfg.DSN,
		// ANY(?) with pq.Array needs the simple protocol.
		PreferSimpleProtocol: true,
	}), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate creates or updates the complaint, identity and message tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Complaint{},
		&models.Identity{},
		&models.Message{},
	)
}

func (s *Service) CreateComplaint(ctx context.Context, complaint *models.Complaint, identity *models.Identity) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(complaint).Error; err != nil {
			return err
		}
		if identity == nil {
			return nil
		}
		return tx.Create(identity).Error
	})
	return translate(err)
}

func (s *Service) TrackingIDExists(ctx context.Context, trackingID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Where("tracking_id = ?", trackingID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) GetComplaintByTrackingID(ctx context.Context, trackingID string) (*models.Complaint, error) {
	var complaint models.Complaint
	err := s.DB.WithContext(ctx).Where("tracking_id = ?", trackingID).First(&complaint).Error
	if err != nil {
		return nil, translate(err)
	}
	return &complaint, nil
}

func (s *Service) GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error) {
	var complaint models.Complaint
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&complaint).Error
	if err != nil {
		return nil, translate(err)
	}
	return &complaint, nil
}

func (s *Service) ListComplaints(ctx context.Context) ([]models.Complaint, error) {
	var complaints []models.Complaint
	if err := s.DB.WithContext(ctx).Order("created_at desc").Find(&complaints).Error; err != nil {
		return nil, err
	}
	return complaints, nil
}

func (s *Service) UpdateComplaintStatus(ctx context.Context, id string, expectedVersion int, status workflow.Status, updatedAt time.Time) error {
	result := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": updatedAt,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

func (s *Service) DeleteComplaint(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var complaint models.Complaint
		if err := tx.Where("id = ?", id).First(&complaint).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where("complaint_id = ?", complaint.TrackingID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tracking_id = ?", complaint.TrackingID).Delete(&models.Identity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&complaint).Error
	})
}

func (s *Service) GetIdentity(ctx context.Context, trackingID string) (*models.Identity, error) {
	var identity models.Identity
	err := s.DB.WithContext(ctx).Where("tracking_id = ?", trackingID).First(&identity).Error
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

// GetIdentities resolves all identities in one query.
func (s *Service) GetIdentities(ctx context.Context, trackingIDs []string) (map[string]*models.Identity, error) {
	result := make(map[string]*models.Identity, len(trackingIDs))
	if len(trackingIDs) == 0 {
		return result, nil
	}

	var rows []models.Identity
	err := s.DB.WithContext(ctx).
		Where("tracking_id = ANY(?)", pq.Array(trackingIDs)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		result[rows[i].TrackingID] = &rows[i]
	}
	return result, nil
}

func (s *Service) SaveMessage(ctx context.Context, msg *models.Message) error {
	return translate(s.DB.WithContext(ctx).Create(msg).Error)
}

func (s *Service) ListMessages(ctx context.Context, complaintID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("timestamp asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
