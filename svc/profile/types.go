package profile

import (
	"time"

	"github.com/google/uuid"
)

// Status governs public visibility of a profile page.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// SubscriptionStatus is the locally normalized billing status. The processor
// exposes a richer set which is mapped down by the billing service.
type SubscriptionStatus string

const (
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionUnpaid   SubscriptionStatus = "unpaid"
)

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionInactive, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled, SubscriptionUnpaid:
		return true
	}
	return false
}

// Profile is one user's public page together with its billing-derived access state.
type Profile struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Status             Status
	SubscriptionStatus SubscriptionStatus
	StripeCustomerID   string     // empty until a billing customer exists; set once
	SubscriptionID     *uuid.UUID // local Subscription considered current
	GracePeriodEndsAt  *time.Time
	PreviewStartedAt   *time.Time
	PreviewExpiresAt   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BillingState returns the billing-derived fields of the profile.
func (p Profile) BillingState() BillingState {
	return BillingState{
		Status:             p.Status,
		SubscriptionStatus: p.SubscriptionStatus,
		SubscriptionID:     p.SubscriptionID,
		GracePeriodEndsAt:  p.GracePeriodEndsAt,
		PreviewStartedAt:   p.PreviewStartedAt,
		PreviewExpiresAt:   p.PreviewExpiresAt,
	}
}

// BillingState is the set of profile fields owned by reconciliation. Writers
// always persist the whole set, so re-applying the same derived state is a no-op.
type BillingState struct {
	Status             Status
	SubscriptionStatus SubscriptionStatus
	SubscriptionID     *uuid.UUID
	GracePeriodEndsAt  *time.Time
	PreviewStartedAt   *time.Time
	PreviewExpiresAt   *time.Time
}

// ClearPreview drops the preview window.
func (s *BillingState) ClearPreview() {
	s.PreviewStartedAt = nil
	s.PreviewExpiresAt = nil
}

// Subscription is the local mirror of a processor subscription. Rows are never
// deleted; canceled subscriptions keep Status canceled.
type Subscription struct {
	ID                   uuid.UUID
	ProfileID            uuid.UUID
	StripeSubscriptionID string
	StripeCustomerID     string
	Status               SubscriptionStatus
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	TrialStart           *time.Time
	TrialEnd             *time.Time
	CanceledAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// InvoiceStatus is the ledger state of an invoice.
type InvoiceStatus string

const (
	InvoicePaid InvoiceStatus = "paid"
	InvoiceOpen InvoiceStatus = "open"
)

// Invoice is a ledger entry written by the invoice handlers. Document
// rendering happens elsewhere.
type Invoice struct {
	ID                   uuid.UUID
	StripeInvoiceID      string
	ProfileID            uuid.UUID
	StripeSubscriptionID string
	Status               InvoiceStatus
	AmountDue            int64
	AmountPaid           int64
	Currency             string
	HostedInvoiceURL     string
	CreatedAt            time.Time
}

// UnresolvedEvent is a dead-letter record of a billing event that could not be
// applied, kept for operator review.
type UnresolvedEvent struct {
	EventID   string
	EventType string
	Reason    string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
