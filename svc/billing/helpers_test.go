package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

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

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store     *profile.MemoryStore
	processor *mockProcessor
	clock     *clock
	rec       *billing.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{t: testNow}
	store := profile.NewMemoryStore(profile.WithMemoryClock(c.Now))
	proc := &mockProcessor{}
	t.Cleanup(func() { proc.AssertExpectations(t) })
	return &fixture{
		store:     store,
		processor: proc,
		clock:     c,
		rec: billing.NewReconciler(store,
			billing.WithProcessor(proc),
			billing.WithClock(c.Now),
			billing.WithLogger(logger.Discard()),
		),
	}
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

func subFor(p *profile.Profile, id, status string) billing.Subscription {
	return billing.Subscription{
		ID:                 id,
		CustomerID:         "cus_" + p.ID.String()[:8],
		Status:             status,
		CurrentPeriodStart: testNow.Add(-24 * time.Hour).Unix(),
		CurrentPeriodEnd:   testNow.Add(29 * 24 * time.Hour).Unix(),
		Created:            testNow.Add(-24 * time.Hour).Unix(),
		Metadata:           map[string]string{billing.MetadataProfileID: p.ID.String()},
	}
}
