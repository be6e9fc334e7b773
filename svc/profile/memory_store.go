package profile

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It mirrors the conditional semantics of
// PostgresStore and is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	profiles   map[uuid.UUID]*Profile
	subs       map[uuid.UUID]*Subscription
	subsByExt  map[string]uuid.UUID
	invoices   map[string]*Invoice
	unresolved map[string]*UnresolvedEvent
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock used for created/updated timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:        time.Now,
		profiles:   make(map[uuid.UUID]*Profile),
		subs:       make(map[uuid.UUID]*Subscription),
		subsByExt:  make(map[string]uuid.UUID),
		invoices:   make(map[string]*Invoice),
		unresolved: make(map[string]*UnresolvedEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CreateProfile(_ context.Context, p *Profile) error {
	if p == nil || p.ID == uuid.Nil || !p.Status.Valid() || !p.SubscriptionStatus.Valid() {
		return ErrInvalidProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.profiles {
		if existing.ID == p.ID || (p.UserID != uuid.Nil && existing.UserID == p.UserID) {
			return ErrProfileExists
		}
		if p.StripeCustomerID != "" && existing.StripeCustomerID == p.StripeCustomerID {
			return ErrProfileExists
		}
	}

	now := s.now().UTC()
	cp := cloneProfile(p)
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.profiles[p.ID] = cp
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, id uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (s *MemoryStore) GetProfileByUserID(_ context.Context, userID uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.UserID == userID {
			return cloneProfile(p), nil
		}
	}
	return nil, ErrProfileNotFound
}

func (s *MemoryStore) GetProfileByCustomerID(_ context.Context, customerID string) (*Profile, error) {
	if customerID == "" {
		return nil, ErrProfileNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.StripeCustomerID == customerID {
			return cloneProfile(p), nil
		}
	}
	return nil, ErrProfileNotFound
}

func (s *MemoryStore) SetCustomerID(_ context.Context, id uuid.UUID, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return "", ErrProfileNotFound
	}
	if p.StripeCustomerID == "" && customerID != "" {
		p.StripeCustomerID = customerID
		p.UpdatedAt = s.now().UTC()
	}
	return p.StripeCustomerID, nil
}

func (s *MemoryStore) UpdateBillingState(_ context.Context, id uuid.UUID, state BillingState) (*Profile, error) {
	if !validBillingState(state) {
		return nil, ErrInvalidProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	s.apply(p, state)
	return cloneProfile(p), nil
}

func (s *MemoryStore) ListGraceExpired(_ context.Context, now time.Time) ([]Profile, error) {
	return s.list(func(p *Profile) bool { return graceExpired(p, now) }), nil
}

func (s *MemoryStore) ExpireGrace(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok || !graceExpired(p, now) {
		return false, nil
	}
	state := p.BillingState()
	state.Status = StatusDraft
	state.SubscriptionStatus = SubscriptionUnpaid
	state.GracePeriodEndsAt = nil
	s.apply(p, state)
	return true, nil
}

func (s *MemoryStore) ListPreviewExpired(_ context.Context, now time.Time) ([]Profile, error) {
	return s.list(func(p *Profile) bool { return previewExpired(p, now) }), nil
}

func (s *MemoryStore) ClosePreview(_ context.Context, id uuid.UUID, now time.Time, state BillingState) (bool, error) {
	if !validBillingState(state) {
		return false, ErrInvalidProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok || !previewExpired(p, now) {
		return false, nil
	}
	s.apply(p, state)
	return true, nil
}

func (s *MemoryStore) StartPreview(_ context.Context, id uuid.UUID, startedAt, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return false, ErrProfileNotFound
	}
	if p.Status != StatusDraft {
		return false, nil
	}
	state := p.BillingState()
	state.Status = StatusPublished
	state.PreviewStartedAt = &startedAt
	state.PreviewExpiresAt = &expiresAt
	s.apply(p, state)
	return true, nil
}

func (s *MemoryStore) UpsertSubscription(_ context.Context, sub *Subscription) (*Subscription, error) {
	if sub == nil || sub.StripeSubscriptionID == "" || sub.ProfileID == uuid.Nil || !sub.Status.Valid() {
		return nil, ErrInvalidSubscription
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[sub.ProfileID]; !ok {
		return nil, errors.Join(ErrInvalidSubscription, ErrProfileNotFound)
	}

	now := s.now().UTC()
	stored := cloneSubscription(sub)
	if id, ok := s.subsByExt[sub.StripeSubscriptionID]; ok {
		prev := s.subs[id]
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	} else {
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.subs[stored.ID] = stored
	s.subsByExt[stored.StripeSubscriptionID] = stored.ID
	return cloneSubscription(stored), nil
}

func (s *MemoryStore) GetSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (s *MemoryStore) GetSubscriptionByStripeID(_ context.Context, stripeSubscriptionID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.subsByExt[stripeSubscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(s.subs[id]), nil
}

func (s *MemoryStore) ListSubscriptionsByProfile(_ context.Context, profileID uuid.UUID) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if sub.ProfileID == profileID {
			out = append(out, *cloneSubscription(sub))
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RecordInvoice(_ context.Context, inv *Invoice) error {
	if inv == nil || inv.StripeInvoiceID == "" {
		return ErrStoreFailure
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	if prev, ok := s.invoices[inv.StripeInvoiceID]; ok {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	} else {
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		cp.CreatedAt = s.now().UTC()
	}
	s.invoices[inv.StripeInvoiceID] = &cp
	return nil
}

// Invoice returns a recorded invoice by processor id.
func (s *MemoryStore) Invoice(stripeInvoiceID string) (Invoice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[stripeInvoiceID]
	if !ok {
		return Invoice{}, false
	}
	return *inv, true
}

func (s *MemoryStore) RecordUnresolvedEvent(_ context.Context, ev *UnresolvedEvent) error {
	if ev == nil || ev.EventID == "" {
		return ErrStoreFailure
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if prev, ok := s.unresolved[ev.EventID]; ok {
		prev.Reason = ev.Reason
		prev.Attempts++
		prev.UpdatedAt = now
		return nil
	}
	cp := *ev
	cp.Payload = slices.Clone(ev.Payload)
	cp.Attempts = 1
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.unresolved[ev.EventID] = &cp
	return nil
}

func (s *MemoryStore) ListUnresolvedEvents(_ context.Context, limit int) ([]UnresolvedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UnresolvedEvent, 0, len(s.unresolved))
	for _, ev := range s.unresolved {
		out = append(out, *ev)
	}
	slices.SortFunc(out, func(a, b UnresolvedEvent) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) list(match func(*Profile) bool) []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Profile
	for _, p := range s.profiles {
		if match(p) {
			out = append(out, *cloneProfile(p))
		}
	}
	return out
}

// apply must be called with the write lock held.
func (s *MemoryStore) apply(p *Profile, state BillingState) {
	p.Status = state.Status
	p.SubscriptionStatus = state.SubscriptionStatus
	p.SubscriptionID = cloneUUID(state.SubscriptionID)
	p.GracePeriodEndsAt = cloneTime(state.GracePeriodEndsAt)
	p.PreviewStartedAt = cloneTime(state.PreviewStartedAt)
	p.PreviewExpiresAt = cloneTime(state.PreviewExpiresAt)
	p.UpdatedAt = s.now().UTC()
}

func cloneProfile(p *Profile) *Profile {
	cp := *p
	cp.SubscriptionID = cloneUUID(p.SubscriptionID)
	cp.GracePeriodEndsAt = cloneTime(p.GracePeriodEndsAt)
	cp.PreviewStartedAt = cloneTime(p.PreviewStartedAt)
	cp.PreviewExpiresAt = cloneTime(p.PreviewExpiresAt)
	return &cp
}

func cloneSubscription(s *Subscription) *Subscription {
	cp := *s
	cp.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	cp.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	cp.TrialStart = cloneTime(s.TrialStart)
	cp.TrialEnd = cloneTime(s.TrialEnd)
	cp.CanceledAt = cloneTime(s.CanceledAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
