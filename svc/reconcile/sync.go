package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

// FullSync rebuilds the profile's billing state from the processor's current
// list of subscriptions, overwriting whatever webhooks left behind. A profile
// without a customer id has no subscriptions and ends up draft/inactive unless
// a preview window is still running.
func (s *Service) FullSync(ctx context.Context, profileID uuid.UUID) (*profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		FullSyncTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var subs []billing.Subscription
	if p.StripeCustomerID != "" {
		subs, err = s.listSubscriptions(ctx, p.StripeCustomerID)
		if err != nil {
			FullSyncTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("full sync of profile %s: %w", p.ID, err)
		}
	}

	state, best, err := s.rec.Resync(ctx, p, subs)
	if err != nil {
		FullSyncTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("full sync of profile %s: %w", p.ID, err)
	}
	updated, err := s.store.UpdateBillingState(ctx, p.ID, state)
	if err != nil {
		FullSyncTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("full sync of profile %s: %w", p.ID, err)
	}

	FullSyncTotal.WithLabelValues("ok").Inc()
	attrs := []any{
		logger.Component("reconcile"),
		logger.ProfileID(p.ID),
		logger.CustomerID(p.StripeCustomerID),
	}
	if best != nil {
		attrs = append(attrs, logger.SubscriptionID(best.ID))
	}
	s.log.InfoContext(ctx, "profile synced with processor", append(attrs,
		"status", updated.Status,
		"subscription_status", updated.SubscriptionStatus,
		"subscriptions", len(subs))...)
	return updated, nil
}

// StartPreview publishes a draft profile for the configured preview window.
func (s *Service) StartPreview(ctx context.Context, profileID uuid.UUID) (*profile.Profile, error) {
	now := s.now().UTC()
	started, err := s.store.StartPreview(ctx, profileID, now, now.Add(s.previewDuration))
	if err != nil {
		return nil, fmt.Errorf("start preview for profile %s: %w", profileID, err)
	}
	if !started {
		if _, err := s.store.GetProfile(ctx, profileID); err != nil {
			return nil, err
		}
		return nil, ErrPreviewNotAllowed
	}

	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "preview started",
		logger.Component("reconcile"), logger.ProfileID(p.ID),
		"preview_expires_at", *p.PreviewExpiresAt)
	return p, nil
}
