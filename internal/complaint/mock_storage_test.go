package complaint_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"grievance/backend/internal/models"
	"grievance/backend/internal/workflow"
)

// MockStorage is a testify mock of storage.Storage. It deliberately does not
// implement storage.IdentityBatchReader, so services take the per-row path.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateComplaint(ctx context.Context, complaint *models.Complaint, identity *models.Identity) error {
	args := m.Called(complaint, identity)
	return args.Error(0)
}

func (m *MockStorage) TrackingIDExists(ctx context.Context, trackingID string) (bool, error) {
	args := m.Called(trackingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) GetComplaintByTrackingID(ctx context.Context, trackingID string) (*models.Complaint, error) {
	args := m.Called(trackingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Complaint), args.Error(1)
}

func (m *MockStorage) GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Complaint), args.Error(1)
}

func (m *MockStorage) ListComplaints(ctx context.Context) ([]models.Complaint, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Complaint), args.Error(1)
}

func (m *MockStorage) UpdateComplaintStatus(ctx context.Context, id string, expectedVersion int, status workflow.Status, updatedAt time.Time) error {
	args := m.Called(id, expectedVersion, status, updatedAt)
	return args.Error(0)
}

func (m *MockStorage) DeleteComplaint(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockStorage) GetIdentity(ctx context.Context, trackingID string) (*models.Identity, error) {
	args := m.Called(trackingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) ListMessages(ctx context.Context, complaintID string) ([]models.Message, error) {
	args := m.Called(complaintID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}
