package complaint_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grievance/backend/internal/apperror"
	"grievance/backend/internal/complaint"
	"grievance/backend/internal/config"
	"grievance/backend/internal/models"
	"grievance/backend/internal/storage"
	"grievance/backend/internal/tracking"
	"grievance/backend/internal/workflow"
)

// sequenceGenerator hands out a fixed list of ids, repeating the last one.
type sequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	n   int
}

func (g *sequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[min(g.n, len(g.ids)-1)]
	g.n++
	return id
}

// stepClock advances by one minute on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

// memoryCache is a map-backed storage.PublicCache.
type memoryCache struct {
	mu       sync.Mutex
	views    map[string]models.PublicView
	versions map[string]int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		views:    make(map[string]models.PublicView),
		versions: make(map[string]int),
	}
}

func (c *memoryCache) Get(ctx context.Context, trackingID string) (*models.PublicView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[trackingID]
	if !ok {
		return nil, nil
	}
	return &view, nil
}

func (c *memoryCache) Set(ctx context.Context, view models.PublicView, version int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version < c.versions[view.TrackingID] {
		return nil
	}
	c.versions[view.TrackingID] = version
	c.views[view.TrackingID] = view
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, trackingID string, version int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version > c.versions[trackingID] {
		c.versions[trackingID] = version
	}
	delete(c.views, trackingID)
	return nil
}

// pausingStore holds the first tracking id lookup after its read until
// release is closed, so a write can commit in between.
type pausingStore struct {
	*storage.MemoryStore
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPausingStore() *pausingStore {
	return &pausingStore{
		MemoryStore: storage.NewMemoryStore(),
		loaded:      make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *pausingStore) GetComplaintByTrackingID(ctx context.Context, trackingID string) (*models.Complaint, error) {
	c, err := s.MemoryStore.GetComplaintByTrackingID(ctx, trackingID)
	s.once.Do(func() {
		close(s.loaded)
		<-s.release
	})
	return c, err
}

func quietLogger() *logrus.Logger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

func newTestService(store storage.Storage, opts ...complaint.Option) *complaint.Service {
	clock := &stepClock{now: time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)}
	base := []complaint.Option{
		complaint.WithLogger(quietLogger()),
		complaint.WithClock(clock.Now),
	}
	return complaint.NewService(store, append(base, opts...)...)
}

func strPtr(s string) *string { return &s }

func validRequest() models.SubmitRequest {
	return models.SubmitRequest{
		Title:       "Broken streetlight",
		Description: "Out for a week on 5th street",
		Category:    "Infrastructure",
	}
}

func TestSubmit_AnonymousScenario(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(store)

	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	assert.True(t, tracking.Valid(trackingID), trackingID)

	view, err := svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, view.Status)
	assert.Equal(t, "Broken streetlight", view.Title)
	assert.Equal(t, view.CreatedAt, view.UpdatedAt)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"name"`)
	assert.NotContains(t, string(raw), `"email"`)
	assert.NotContains(t, string(raw), `"phone"`)

	identity, err := store.GetIdentity(ctx, trackingID)
	require.NoError(t, err)
	require.NotNil(t, identity, "an identity record exists even for anonymous submissions")
	assert.Nil(t, identity.Name)
	assert.Nil(t, identity.Email)
	assert.Nil(t, identity.Phone)
}

func TestSubmit_IdentifiedScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(storage.NewMemoryStore())

	req := validRequest()
	req.Email = strPtr("asha@example.org")
	trackingID, err := svc.Submit(ctx, req)
	require.NoError(t, err)

	public, err := svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)
	raw, err := json.Marshal(public)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "asha@example.org")

	joined, err := svc.GetJoined(ctx, trackingID)
	require.NoError(t, err)
	require.NotNil(t, joined.Email)
	assert.Equal(t, "asha@example.org", *joined.Email)
	assert.Nil(t, joined.Name)
	assert.Nil(t, joined.Phone)
	assert.Equal(t, trackingID, joined.TrackingID)
}

func TestSubmit_MissingFields(t *testing.T) {
	svc := newTestService(storage.NewMemoryStore())

	for _, req := range []models.SubmitRequest{
		{Description: "d", Category: "c"},
		{Title: "t", Category: "c"},
		{Title: "t", Description: "   ", Category: "c"},
		{Title: "t", Description: "d"},
	} {
		_, err := svc.Submit(context.Background(), req)
		require.Error(t, err)
		assert.True(t, apperror.Is(err, apperror.KindValidation))
		assert.Equal(t, "title, description, and category are required", apperror.Message(err))
	}
}

func TestSubmit_RetriesOnTrackingCollision(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := newTestService(store, complaint.WithGenerator(&sequenceGenerator{ids: []string{"SEC-2026-AAAAA"}}))
	_, err := first.Submit(ctx, validRequest())
	require.NoError(t, err)

	gen := &sequenceGenerator{ids: []string{"SEC-2026-AAAAA", "SEC-2026-BBBBB"}}
	second := newTestService(store, complaint.WithGenerator(gen))
	trackingID, err := second.Submit(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "SEC-2026-BBBBB", trackingID)
	assert.Equal(t, 2, gen.n)
}

func TestSubmit_RetriesOnDuplicateAtInsert(t *testing.T) {
	store := new(MockStorage)
	store.On("TrackingIDExists", mock.Anything).Return(false, nil)
	store.On("CreateComplaint", mock.MatchedBy(func(c *models.Complaint) bool {
		return c.TrackingID == "SEC-2026-AAAAA"
	}), mock.Anything).Return(storage.ErrDuplicate).Once()
	store.On("CreateComplaint", mock.MatchedBy(func(c *models.Complaint) bool {
		return c.TrackingID == "SEC-2026-BBBBB"
	}), mock.Anything).Return(nil).Once()

	gen := &sequenceGenerator{ids: []string{"SEC-2026-AAAAA", "SEC-2026-BBBBB"}}
	svc := newTestService(store, complaint.WithGenerator(gen))

	trackingID, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "SEC-2026-BBBBB", trackingID)
	store.AssertExpectations(t)
}

func TestSubmit_GivesUpAfterMaxAttempts(t *testing.T) {
	store := new(MockStorage)
	store.On("TrackingIDExists", "SEC-2026-AAAAA").Return(true, nil)

	svc := newTestService(store, complaint.WithGenerator(&sequenceGenerator{ids: []string{"SEC-2026-AAAAA"}}))

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindPersistence))
	store.AssertNumberOfCalls(t, "TrackingIDExists", config.MaxTrackingAttempts)
	store.AssertNotCalled(t, "CreateComplaint", mock.Anything, mock.Anything)
}

func TestSubmit_IdentityWriteFailureLeavesNoComplaint(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.FailIdentityWrite = errors.New("identity table unavailable")
	svc := newTestService(store, complaint.WithGenerator(&sequenceGenerator{ids: []string{"SEC-2026-AAAAA"}}))

	req := validRequest()
	req.Name = strPtr("Asha")
	_, err := svc.Submit(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindPersistence))

	list, err := store.ListComplaints(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.GetPublic(ctx, "SEC-2026-AAAAA")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestGetPublic_LookupRules(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(storage.NewMemoryStore(),
		complaint.WithGenerator(&sequenceGenerator{ids: []string{"SEC-2026-K7Q2M"}}))
	_, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	view, err := svc.GetPublic(ctx, "  sec-2026-k7q2m ")
	require.NoError(t, err)
	assert.Equal(t, "SEC-2026-K7Q2M", view.TrackingID)

	_, err = svc.GetPublic(ctx, "SEC-2026-ZZZZZ")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = svc.GetPublic(ctx, "not-a-tracking-id")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestUpdateStatus_WorkflowScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(storage.NewMemoryStore())

	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	before, err := svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, trackingID, "Resolved")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	assert.Equal(t, `cannot transition from "Pending" to "Resolved". Allowed: "Under Review", "Rejected"`, apperror.Message(err))

	unchanged, err := svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)
	assert.Equal(t, before, unchanged, "a denied transition changes nothing")

	updated, err := svc.UpdateStatus(ctx, trackingID, "Under Review")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusUnderReview, updated.Status)
	assert.Equal(t, 2, updated.Version)
	assert.True(t, updated.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, before.CreatedAt, updated.CreatedAt)

	_, err = svc.UpdateStatus(ctx, trackingID, "Pending")
	require.Error(t, err)
	assert.Equal(t, `cannot transition from "Under Review" to "Pending". Allowed: "Investigation", "Resolved", "Rejected"`, apperror.Message(err))

	_, err = svc.UpdateStatus(ctx, trackingID, "resolved")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, trackingID, "Pending")
	require.Error(t, err)
	assert.Equal(t, `"Resolved" is a terminal status and cannot be changed`, apperror.Message(err))

	final, err := svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusResolved, final.Status)
}

func TestUpdateStatus_RejectsLegacyVocabulary(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(storage.NewMemoryStore())
	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	for _, legacy := range []string{"In Progress", "Cancelled", ""} {
		_, err := svc.UpdateStatus(ctx, trackingID, legacy)
		require.Error(t, err, legacy)
		assert.True(t, apperror.Is(err, apperror.KindValidation))
		assert.Contains(t, apperror.Message(err), "is not a valid status")
	}
}

func TestUpdateStatus_ByInternalID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	stored, err := store.GetComplaintByTrackingID(ctx, trackingID)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, stored.ID, "Rejected")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRejected, updated.Status)
	assert.Equal(t, stored.ID, updated.ID)

	_, err = svc.UpdateStatus(ctx, "no-such-id", "Rejected")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestUpdateStatus_StaleWriteIsConflict(t *testing.T) {
	stored := &models.Complaint{
		ID:         "c-1",
		TrackingID: "SEC-2026-AAAAA",
		Status:     workflow.StatusPending,
		Version:    3,
	}
	store := new(MockStorage)
	store.On("GetComplaintByTrackingID", "SEC-2026-AAAAA").Return(stored, nil)
	store.On("UpdateComplaintStatus", "c-1", 3, workflow.StatusUnderReview, mock.AnythingOfType("time.Time")).
		Return(storage.ErrStale)

	cache := newMemoryCache()
	require.NoError(t, cache.Set(context.Background(), stored.PublicView(), stored.Version))
	svc := newTestService(store, complaint.WithCache(cache))

	_, err := svc.UpdateStatus(context.Background(), "SEC-2026-AAAAA", "Under Review")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
	assert.Equal(t, "stale state, retry", apperror.Message(err))
	store.AssertExpectations(t)

	cached, _ := cache.Get(context.Background(), "SEC-2026-AAAAA")
	assert.NotNil(t, cached, "a lost race leaves the cache alone")
}

// barrierStore lets a tracking id lookup return only once every expected
// caller has loaded, so all of them act on the same version.
type barrierStore struct {
	*storage.MemoryStore
	arrived sync.WaitGroup
}

func (s *barrierStore) GetComplaintByTrackingID(ctx context.Context, trackingID string) (*models.Complaint, error) {
	c, err := s.MemoryStore.GetComplaintByTrackingID(ctx, trackingID)
	s.arrived.Done()
	s.arrived.Wait()
	return c, err
}

func TestUpdateStatus_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	store := &barrierStore{MemoryStore: storage.NewMemoryStore()}
	svc := newTestService(store)
	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	targets := []string{"Under Review", "Rejected"}
	store.arrived.Add(len(targets))

	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.UpdateStatus(ctx, trackingID, target)
		}()
	}
	wg.Wait()

	successes, conflicts := 0, 0
	winner := workflow.Status("")
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
			winner = workflow.Status(targets[i])
		case apperror.Is(err, apperror.KindConflict):
			conflicts++
			assert.Equal(t, "stale state, retry", apperror.Message(err))
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	stored, err := store.MemoryStore.GetComplaintByTrackingID(ctx, trackingID)
	require.NoError(t, err)
	assert.Equal(t, winner, stored.Status)
	assert.Equal(t, 2, stored.Version)
}

func TestGetPublic_SlowReadDoesNotCacheOverCommittedTransition(t *testing.T) {
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	store := newPausingStore()
	svc := newTestService(store, complaint.WithCache(storage.NewRedisCache(rdb, time.Minute)))

	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	done := make(chan models.PublicView)
	go func() {
		view, err := svc.GetPublic(ctx, trackingID)
		assert.NoError(t, err)
		done <- view
	}()

	<-store.loaded
	_, err = svc.UpdateStatus(ctx, trackingID, "Under Review")
	require.NoError(t, err)
	close(store.release)

	// The paused reader answers with what it loaded.
	assert.Equal(t, workflow.StatusPending, (<-done).Status)

	view, err := svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusUnderReview, view.Status)
}

func TestGetPublic_UsesCacheAndStatusChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	cache := newMemoryCache()
	svc := newTestService(storage.NewMemoryStore(), complaint.WithCache(cache))

	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)
	cached, _ := cache.Get(ctx, trackingID)
	require.NotNil(t, cached)

	_, err = svc.UpdateStatus(ctx, trackingID, "Under Review")
	require.NoError(t, err)
	cached, _ = cache.Get(ctx, trackingID)
	assert.Nil(t, cached)

	view, err := svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusUnderReview, view.Status)
}

func TestListJoined_BatchPath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(storage.NewMemoryStore())

	anonymous, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	req := validRequest()
	req.Phone = strPtr("+15550100")
	identified, err := svc.Submit(ctx, req)
	require.NoError(t, err)

	rows, err := svc.ListJoined(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Newest first; the step clock makes the second submission newer.
	assert.Equal(t, identified, rows[0].TrackingID)
	require.NotNil(t, rows[0].Phone)
	assert.Equal(t, "+15550100", *rows[0].Phone)
	assert.Equal(t, anonymous, rows[1].TrackingID)
	assert.Nil(t, rows[1].Phone)
}

func TestListJoined_PerRowFallback(t *testing.T) {
	complaints := []models.Complaint{
		{ID: "c-2", TrackingID: "SEC-2026-BBBBB", Status: workflow.StatusPending, Version: 1},
		{ID: "c-1", TrackingID: "SEC-2026-AAAAA", Status: workflow.StatusPending, Version: 1},
	}
	store := new(MockStorage)
	store.On("ListComplaints").Return(complaints, nil)
	store.On("GetIdentity", "SEC-2026-BBBBB").Return(nil, nil)
	store.On("GetIdentity", "SEC-2026-AAAAA").Return(&models.Identity{TrackingID: "SEC-2026-AAAAA", Name: strPtr("Asha")}, nil)

	svc := newTestService(store)
	rows, err := svc.ListJoined(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].Name)
	require.NotNil(t, rows[1].Name)
	assert.Equal(t, "Asha", *rows[1].Name)
	store.AssertNumberOfCalls(t, "GetIdentity", 2)
}

func TestListJoined_IdentityFailureIsPersistenceError(t *testing.T) {
	store := new(MockStorage)
	store.On("ListComplaints").Return([]models.Complaint{{ID: "c-1", TrackingID: "SEC-2026-AAAAA"}}, nil)
	store.On("GetIdentity", "SEC-2026-AAAAA").Return(nil, errors.New("timeout"))

	svc := newTestService(store)
	_, err := svc.ListJoined(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindPersistence))
}

func TestListAdmin_HasNoIdentity(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(storage.NewMemoryStore())
	req := validRequest()
	req.Name = strPtr("Asha")
	_, err := svc.Submit(ctx, req)
	require.NoError(t, err)

	rows, err := svc.ListAdmin(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	raw, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Asha")
	assert.NotEmpty(t, rows[0].ID)
}

func TestDelete_RemovesComplaintAndIdentity(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cache := newMemoryCache()
	svc := newTestService(store, complaint.WithCache(cache))

	req := validRequest()
	req.Email = strPtr("asha@example.org")
	trackingID, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	_, err = svc.GetPublic(ctx, trackingID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, trackingID))

	_, err = svc.GetPublic(ctx, trackingID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	identity, err := store.GetIdentity(ctx, trackingID)
	require.NoError(t, err)
	assert.Nil(t, identity)

	err = svc.Delete(ctx, trackingID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(storage.NewMemoryStore())

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := svc.Submit(ctx, validRequest())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := svc.UpdateStatus(ctx, ids[0], "Rejected")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, ids[1], "Under Review")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Total: 3, Pending: 1, UnderReview: 1, Rejected: 1}, stats)
}

func TestStats_ListFailure(t *testing.T) {
	store := new(MockStorage)
	store.On("ListComplaints").Return(nil, errors.New("db down"))

	_, err := newTestService(store).Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperror.KindPersistence, apperror.KindOf(err))
	assert.Equal(t, "failed to compute stats", apperror.Message(err))
}

func TestUpdateStatus_DenialIsLogged(t *testing.T) {
	ctx := context.Background()
	logger, hook := logtest.NewNullLogger()
	svc := newTestService(storage.NewMemoryStore(), complaint.WithLogger(logger))

	trackingID, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	hook.Reset()

	_, err = svc.UpdateStatus(ctx, trackingID, "Pending")
	require.Error(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "status change denied", entry.Message)
	assert.Equal(t, workflow.DenyNoChange, entry.Data["code"])
}
