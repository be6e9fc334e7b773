package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/bookpage/svc/profile"
	"github.com/dmitrymomot/bookpage/svc/reconcile"
)

type errorResponse struct {
	Error string `json:"error"`
}

type syncResponse struct {
	Status             profile.Status             `json:"status"`
	SubscriptionStatus profile.SubscriptionStatus `json:"subscription_status"`
}

type portalRequest struct {
	Email string `json:"email"`
}

type portalResponse struct {
	URL string `json:"url"`
}

type accessResponse struct {
	Allowed bool           `json:"allowed"`
	Serve   bool           `json:"serve"`
	Reason  profile.Reason `json:"reason"`
}

type profileView struct {
	ID                 uuid.UUID                  `json:"id"`
	UserID             uuid.UUID                  `json:"user_id"`
	Status             profile.Status             `json:"status"`
	SubscriptionStatus profile.SubscriptionStatus `json:"subscription_status"`
	StripeCustomerID   string                     `json:"stripe_customer_id,omitempty"`
	SubscriptionID     *uuid.UUID                 `json:"subscription_id,omitempty"`
	GracePeriodEndsAt  *time.Time                 `json:"grace_period_ends_at,omitempty"`
	PreviewStartedAt   *time.Time                 `json:"preview_started_at,omitempty"`
	PreviewExpiresAt   *time.Time                 `json:"preview_expires_at,omitempty"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

func newProfileView(p *profile.Profile) profileView {
	return profileView{
		ID:                 p.ID,
		UserID:             p.UserID,
		Status:             p.Status,
		SubscriptionStatus: p.SubscriptionStatus,
		StripeCustomerID:   p.StripeCustomerID,
		SubscriptionID:     p.SubscriptionID,
		GracePeriodEndsAt:  p.GracePeriodEndsAt,
		PreviewStartedAt:   p.PreviewStartedAt,
		PreviewExpiresAt:   p.PreviewExpiresAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

type subscriptionView struct {
	ID                   uuid.UUID                  `json:"id"`
	StripeSubscriptionID string                     `json:"stripe_subscription_id"`
	Status               profile.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd     *time.Time                 `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool                       `json:"cancel_at_period_end"`
	CanceledAt           *time.Time                 `json:"canceled_at,omitempty"`
	UpdatedAt            time.Time                  `json:"updated_at"`
}

func newSubscriptionView(s profile.Subscription) subscriptionView {
	return subscriptionView{
		ID:                   s.ID,
		StripeSubscriptionID: s.StripeSubscriptionID,
		Status:               s.Status,
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		CanceledAt:           s.CanceledAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

type debugResponse struct {
	Profile       profileView        `json:"profile"`
	Subscriptions []subscriptionView `json:"subscriptions"`
	Current       *subscriptionView  `json:"current_subscription,omitempty"`
	Access        accessResponse     `json:"access"`
	Issues        []string           `json:"issues"`
	CheckedAt     time.Time          `json:"checked_at"`
}

func newDebugResponse(s *reconcile.Snapshot) debugResponse {
	resp := debugResponse{
		Profile:       newProfileView(s.Profile),
		Subscriptions: make([]subscriptionView, 0, len(s.Subscriptions)),
		Access:        accessResponse{Allowed: s.Allowed, Serve: s.Serve, Reason: s.Reason},
		Issues:        s.Issues,
		CheckedAt:     s.CheckedAt,
	}
	for _, sub := range s.Subscriptions {
		resp.Subscriptions = append(resp.Subscriptions, newSubscriptionView(sub))
	}
	if s.Current != nil {
		cur := newSubscriptionView(*s.Current)
		resp.Current = &cur
	}
	return resp
}
