package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"grievance/backend/internal/models"
	"grievance/backend/internal/workflow"
)

// MemoryStore is an in-process Storage for tests and local runs.
// Records are copied on the way in and out so callers never share state
// with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	complaints map[string]*models.Complaint // by internal id
	byTracking map[string]string            // tracking id -> internal id
	identities map[string]*models.Identity  // by tracking id
	messages   map[string][]models.Message  // by tracking id, insertion order

	// FailIdentityWrite, when set, is returned after the complaint has been
	// staged but before the identity lands, and the complaint is rolled back.
	FailIdentityWrite error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		complaints: make(map[string]*models.Complaint),
		byTracking: make(map[string]string),
		identities: make(map[string]*models.Identity),
		messages:   make(map[string][]models.Message),
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) CreateComplaint(ctx context.Context, complaint *models.Complaint, identity *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byTracking[complaint.TrackingID]; taken {
		return ErrDuplicate
	}
	if identity != nil {
		if _, taken := m.identities[identity.TrackingID]; taken {
			return ErrDuplicate
		}
	}

	_ = complaint.BeforeCreate(nil)
	stored := *complaint
	m.complaints[stored.ID] = &stored
	m.byTracking[stored.TrackingID] = stored.ID

	if identity == nil {
		return nil
	}

	if m.FailIdentityWrite != nil {
		delete(m.complaints, stored.ID)
		delete(m.byTracking, stored.TrackingID)
		return m.FailIdentityWrite
	}

	_ = identity.BeforeCreate(nil)
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = complaint.CreatedAt
	}
	storedIdentity := *identity
	m.identities[storedIdentity.TrackingID] = &storedIdentity
	return nil
}

func (m *MemoryStore) TrackingIDExists(ctx context.Context, trackingID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byTracking[trackingID]
	return ok, nil
}

func (m *MemoryStore) GetComplaintByTrackingID(ctx context.Context, trackingID string) (*models.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTracking[trackingID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m.complaints[id]
	return &c, nil
}

func (m *MemoryStore) GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.complaints[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *stored
	return &c, nil
}

func (m *MemoryStore) ListComplaints(ctx context.Context) ([]models.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]models.Complaint, 0, len(m.complaints))
	for _, c := range m.complaints {
		list = append(list, *c)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].TrackingID < list[j].TrackingID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (m *MemoryStore) UpdateComplaintStatus(ctx context.Context, id string, expectedVersion int, status workflow.Status, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.complaints[id]
	if !ok || stored.Version != expectedVersion {
		return ErrStale
	}
	stored.Status = status
	stored.UpdatedAt = updatedAt
	stored.Version++
	return nil
}

func (m *MemoryStore) DeleteComplaint(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.complaints[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.complaints, id)
	delete(m.byTracking, stored.TrackingID)
	delete(m.identities, stored.TrackingID)
	delete(m.messages, stored.TrackingID)
	return nil
}

func (m *MemoryStore) GetIdentity(ctx context.Context, trackingID string) (*models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.identities[trackingID]
	if !ok {
		return nil, nil
	}
	identity := *stored
	return &identity, nil
}

func (m *MemoryStore) GetIdentities(ctx context.Context, trackingIDs []string) (map[string]*models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*models.Identity, len(trackingIDs))
	for _, id := range trackingIDs {
		if stored, ok := m.identities[id]; ok {
			identity := *stored
			result[id] = &identity
		}
	}
	return result, nil
}

func (m *MemoryStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = msg.BeforeCreate(nil)
	m.messages[msg.ComplaintID] = append(m.messages[msg.ComplaintID], *msg)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, complaintID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread := append([]models.Message{}, m.messages[complaintID]...)
	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].Timestamp.Before(thread[j].Timestamp)
	})
	return thread, nil
}
