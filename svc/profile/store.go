package profile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists profiles, subscription mirrors and the billing ledgers.
//
// Methods named after a transition (ExpireGrace, ClosePreview, StartPreview)
// are conditional updates: they re-check their selection predicate in the
// same statement and report whether a row changed, so a concurrent webhook
// write is never clobbered by a sweep.
type Store interface {
	// CreateProfile inserts a new draft profile. Returns ErrProfileExists
	// when the user already owns one.
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetProfileByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetProfileByCustomerID(ctx context.Context, customerID string) (*Profile, error)

	// SetCustomerID attaches a processor customer unless one is already set
	// and returns the customer id the profile ends up with.
	SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) (string, error)

	// UpdateBillingState overwrites every billing-derived field of the profile.
	UpdateBillingState(ctx context.Context, id uuid.UUID, state BillingState) (*Profile, error)

	// ListGraceExpired returns profiles that are published and past due with
	// a grace deadline before now.
	ListGraceExpired(ctx context.Context, now time.Time) ([]Profile, error)
	// ExpireGrace moves a profile matching the ListGraceExpired predicate to
	// draft/unpaid and clears the grace deadline.
	ExpireGrace(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// ListPreviewExpired returns published profiles whose preview window
	// ended before now.
	ListPreviewExpired(ctx context.Context, now time.Time) ([]Profile, error)
	// ClosePreview writes state to a profile still matching the
	// ListPreviewExpired predicate.
	ClosePreview(ctx context.Context, id uuid.UUID, now time.Time, state BillingState) (bool, error)

	// StartPreview publishes a draft profile for a bounded window.
	StartPreview(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time) (bool, error)

	// UpsertSubscription inserts or updates the mirror keyed by
	// StripeSubscriptionID and returns the stored row.
	UpsertSubscription(ctx context.Context, s *Subscription) (*Subscription, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	ListSubscriptionsByProfile(ctx context.Context, profileID uuid.UUID) ([]Subscription, error)

	// RecordInvoice upserts a ledger entry keyed by StripeInvoiceID.
	RecordInvoice(ctx context.Context, inv *Invoice) error
	// RecordUnresolvedEvent stores a dead-letter record, bumping Attempts
	// when the event id was seen before.
	RecordUnresolvedEvent(ctx context.Context, ev *UnresolvedEvent) error
	ListUnresolvedEvents(ctx context.Context, limit int) ([]UnresolvedEvent, error)
}

// NewProfile returns a draft, inactive profile for the user.
func NewProfile(userID uuid.UUID) *Profile {
	return &Profile{
		ID:                 uuid.New(),
		UserID:             userID,
		Status:             StatusDraft,
		SubscriptionStatus: SubscriptionInactive,
	}
}

func graceExpired(p *Profile, now time.Time) bool {
	return p.Status == StatusPublished &&
		p.SubscriptionStatus == SubscriptionPastDue &&
		p.GracePeriodEndsAt != nil && p.GracePeriodEndsAt.Before(now)
}

func previewExpired(p *Profile, now time.Time) bool {
	return p.Status == StatusPublished &&
		p.PreviewExpiresAt != nil && p.PreviewExpiresAt.Before(now)
}

func validBillingState(s BillingState) bool {
	return s.Status.Valid() && s.SubscriptionStatus.Valid()
}
