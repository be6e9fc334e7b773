package billing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrymomot/bookpage/svc/profile"
)

// Resync mirrors every subscription the processor reported for the profile's
// customer and returns the billing state derived from the best of them,
// together with that subscription (nil when none were listed). Nothing is
// written to the profile; callers choose between an unconditional and a
// conditional write.
func (r *Reconciler) Resync(ctx context.Context, p *profile.Profile, subs []Subscription) (profile.BillingState, *Subscription, error) {
	now := r.now()
	next := p.BillingState()

	if len(subs) == 0 {
		next.SubscriptionStatus = profile.SubscriptionInactive
		next.GracePeriodEndsAt = nil
		if next.Status != profile.StatusPublished || !previewOpen(next, now) {
			next.Status = profile.StatusDraft
		}
		return next, nil, nil
	}

	ranked := slices.Clone(subs)
	slices.SortStableFunc(ranked, func(a, b Subscription) int {
		return cmp.Or(
			cmp.Compare(rank(a.Status), rank(b.Status)),
			cmp.Compare(b.Created, a.Created),
			cmp.Compare(a.ID, b.ID),
		)
	})

	var bestStored *profile.Subscription
	for i, sub := range ranked {
		if sub.ID == "" {
			continue
		}
		existing, err := r.store.GetSubscriptionByStripeID(ctx, sub.ID)
		if err != nil && !errors.Is(err, profile.ErrSubscriptionNotFound) {
			return next, nil, fmt.Errorf("load subscription %s: %w", sub.ID, err)
		}
		stored, err := r.store.UpsertSubscription(ctx, r.mirror(p.ID, sub, NormalizeStatus(sub.Status), existing))
		if err != nil {
			return next, nil, fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
		}
		if i == 0 {
			bestStored = stored
		}
	}
	if bestStored == nil {
		return next, nil, nil
	}

	best := ranked[0]
	next = DeriveState(next, NormalizeStatus(best.Status), bestStored.ID, now)
	if next.Status == profile.StatusPublished && next.SubscriptionStatus == profile.SubscriptionPastDue && next.GracePeriodEndsAt == nil {
		deadline := now.UTC().Add(r.gracePeriod)
		next.GracePeriodEndsAt = &deadline
	}
	return next, &best, nil
}

func rank(status string) int {
	switch NormalizeStatus(status) {
	case profile.SubscriptionActive:
		return 0
	case profile.SubscriptionPastDue:
		return 1
	default:
		return 2
	}
}
