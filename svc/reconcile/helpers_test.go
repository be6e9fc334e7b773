package reconcile_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
	"github.com/dmitrymomot/bookpage/svc/reconcile"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) GetSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(billing.Subscription), args.Error(1)
}

func (m *mockProcessor) ListSubscriptions(ctx context.Context, customerID, status string) ([]billing.Subscription, error) {
	args := m.Called(ctx, customerID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Subscription), args.Error(1)
}

func (m *mockProcessor) CreateCustomer(ctx context.Context, email string, profileID uuid.UUID) (string, error) {
	args := m.Called(ctx, email, profileID)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

// spyStore counts writes made through the conditional sweep transitions and
// the unconditional billing-state write.
type spyStore struct {
	*profile.MemoryStore
	writes atomic.Int32
}

func (s *spyStore) ExpireGrace(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.writes.Add(1)
	return s.MemoryStore.ExpireGrace(ctx, id, now)
}

func (s *spyStore) ClosePreview(ctx context.Context, id uuid.UUID, now time.Time, state profile.BillingState) (bool, error) {
	s.writes.Add(1)
	return s.MemoryStore.ClosePreview(ctx, id, now, state)
}

func (s *spyStore) UpdateBillingState(ctx context.Context, id uuid.UUID, state profile.BillingState) (*profile.Profile, error) {
	s.writes.Add(1)
	return s.MemoryStore.UpdateBillingState(ctx, id, state)
}

type fixture struct {
	now       time.Time
	store     *spyStore
	processor *mockProcessor
	svc       *reconcile.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: testNow, processor: &mockProcessor{}}
	clock := func() time.Time { return f.now }
	f.store = &spyStore{MemoryStore: profile.NewMemoryStore(profile.WithMemoryClock(clock))}
	t.Cleanup(func() { f.processor.AssertExpectations(t) })

	rec := billing.NewReconciler(f.store,
		billing.WithProcessor(f.processor),
		billing.WithClock(clock),
		billing.WithLogger(logger.Discard()),
	)
	f.svc = reconcile.New(f.store, rec,
		reconcile.WithProcessor(f.processor),
		reconcile.WithClock(clock),
		reconcile.WithLogger(logger.Discard()),
	)
	return f
}

func (f *fixture) newProfile(t *testing.T, mutate func(*profile.Profile)) *profile.Profile {
	t.Helper()
	p := profile.NewProfile(uuid.New())
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, f.store.CreateProfile(context.Background(), p))
	return p
}

func (f *fixture) profile(t *testing.T, id uuid.UUID) *profile.Profile {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p
}

func upstream(p *profile.Profile, id, status string) billing.Subscription {
	return billing.Subscription{
		ID:                 id,
		CustomerID:         p.StripeCustomerID,
		Status:             status,
		CurrentPeriodStart: testNow.Add(-24 * time.Hour).Unix(),
		CurrentPeriodEnd:   testNow.Add(29 * 24 * time.Hour).Unix(),
		Created:            testNow.Add(-24 * time.Hour).Unix(),
		Metadata:           map[string]string{billing.MetadataProfileID: p.ID.String()},
	}
}
