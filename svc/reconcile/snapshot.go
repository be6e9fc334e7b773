package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/bookpage/svc/profile"
)

// Snapshot is an operator view of one profile: stored state, its
// subscription mirrors, the access decision and any inconsistencies found.
type Snapshot struct {
	Profile       *profile.Profile
	Subscriptions []profile.Subscription
	Current       *profile.Subscription
	Allowed       bool
	Serve         bool
	Reason        profile.Reason
	Issues        []string
	CheckedAt     time.Time
}

// Snapshot inspects a profile without changing it.
func (s *Service) Snapshot(ctx context.Context, profileID uuid.UUID) (*Snapshot, error) {
	p, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubscriptionsByProfile(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for profile %s: %w", p.ID, err)
	}

	now := s.now()
	snap := &Snapshot{
		Profile:       p,
		Subscriptions: subs,
		Allowed:       profile.IsAccessAllowed(p, now),
		Serve:         profile.CanServe(p, now),
		Issues:        []string{},
		CheckedAt:     now,
	}
	_, snap.Reason = profile.Explain(p, now)

	if p.SubscriptionID != nil {
		cur, err := s.store.GetSubscription(ctx, *p.SubscriptionID)
		switch {
		case errors.Is(err, profile.ErrSubscriptionNotFound):
			snap.issue("current subscription %s has no local record", *p.SubscriptionID)
		case err != nil:
			return nil, fmt.Errorf("load current subscription: %w", err)
		default:
			snap.Current = cur
		}
	}

	snap.inspect(now)
	return snap, nil
}

func (snap *Snapshot) issue(format string, args ...any) {
	snap.Issues = append(snap.Issues, fmt.Sprintf(format, args...))
}

func (snap *Snapshot) inspect(now time.Time) {
	p := snap.Profile

	if p.Status == profile.StatusPublished && !snap.Serve {
		snap.issue("published without access (%s)", snap.Reason)
	}
	if p.SubscriptionStatus == profile.SubscriptionPastDue && p.Status == profile.StatusPublished && p.GracePeriodEndsAt == nil {
		snap.issue("past due without a grace deadline")
	}
	if p.GracePeriodEndsAt != nil && p.GracePeriodEndsAt.Before(now) && p.Status == profile.StatusPublished {
		snap.issue("grace period ended at %s, waiting for sweep", p.GracePeriodEndsAt.Format(time.RFC3339))
	}
	if p.PreviewExpiresAt != nil && p.PreviewExpiresAt.Before(now) && p.Status == profile.StatusPublished {
		snap.issue("preview ended at %s, waiting for sweep", p.PreviewExpiresAt.Format(time.RFC3339))
	}
	if p.StripeCustomerID == "" && len(snap.Subscriptions) > 0 {
		snap.issue("subscriptions recorded but no customer id")
	}
	if cur := snap.Current; cur != nil {
		if cur.ProfileID != p.ID {
			snap.issue("current subscription %s belongs to profile %s", cur.StripeSubscriptionID, cur.ProfileID)
		}
		if cur.Status != p.SubscriptionStatus && p.SubscriptionStatus != profile.SubscriptionUnpaid {
			snap.issue("profile says %s but subscription %s is %s", p.SubscriptionStatus, cur.StripeSubscriptionID, cur.Status)
		}
	}
	for _, sub := range snap.Subscriptions {
		if sub.Status == profile.SubscriptionActive && (snap.Current == nil || snap.Current.ID != sub.ID) {
			snap.issue("active subscription %s is not current", sub.StripeSubscriptionID)
		}
	}
}
