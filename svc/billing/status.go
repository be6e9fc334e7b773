package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/bookpage/svc/profile"
)

// NormalizeStatus maps every upstream subscription status to exactly one
// local status. Unknown values fall into the explicit default branch.
func NormalizeStatus(upstream string) profile.SubscriptionStatus {
	switch upstream {
	case "active", "trialing":
		return profile.SubscriptionActive
	case "past_due", "unpaid":
		return profile.SubscriptionPastDue
	case "canceled":
		return profile.SubscriptionCanceled
	case "incomplete", "incomplete_expired", "paused":
		return profile.SubscriptionInactive
	default:
		return profile.SubscriptionInactive
	}
}

// DeriveState computes the profile billing state implied by the latest known
// status of its current subscription. The result depends only on its inputs,
// so applying the same subscription twice yields the same state.
func DeriveState(cur profile.BillingState, status profile.SubscriptionStatus, subscriptionID uuid.UUID, now time.Time) profile.BillingState {
	next := cur
	next.SubscriptionID = &subscriptionID

	switch status {
	case profile.SubscriptionActive:
		next.Status = profile.StatusPublished
		next.SubscriptionStatus = profile.SubscriptionActive
		next.GracePeriodEndsAt = nil
		next.ClearPreview()

	case profile.SubscriptionPastDue:
		if demoted(cur) {
			// Only a successful payment or an active subscription republishes
			// a profile whose grace already ran out.
			return next
		}
		next.Status = profile.StatusPublished
		next.SubscriptionStatus = profile.SubscriptionPastDue

	case profile.SubscriptionCanceled:
		next.Status = profile.StatusDraft
		next.SubscriptionStatus = profile.SubscriptionCanceled
		next.GracePeriodEndsAt = nil
		next.ClearPreview()

	default:
		next.SubscriptionStatus = profile.SubscriptionInactive
		next.GracePeriodEndsAt = nil
		if cur.Status == profile.StatusPublished && previewOpen(cur, now) {
			next.Status = profile.StatusPublished
		} else {
			next.Status = profile.StatusDraft
		}
	}
	return next
}

func demoted(s profile.BillingState) bool {
	return s.Status == profile.StatusDraft && s.SubscriptionStatus == profile.SubscriptionUnpaid
}

func previewOpen(s profile.BillingState, now time.Time) bool {
	return s.PreviewExpiresAt != nil && now.Before(*s.PreviewExpiresAt)
}
