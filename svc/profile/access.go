package profile

import "time"

// Reason explains an access decision.
type Reason string

const (
	ReasonSubscriptionActive Reason = "subscription_active"
	ReasonGracePeriod        Reason = "grace_period"
	ReasonPreview            Reason = "preview"
	ReasonGraceExpired       Reason = "grace_expired"
	ReasonNotPublished       Reason = "not_published"
	ReasonNoSubscription     Reason = "no_subscription"
	ReasonUnknownProfile     Reason = "unknown_profile"
)

// IsAccessAllowed reports whether the profile is entitled to be served by its
// subscription: published, and either active or past due inside the grace
// window. It performs no I/O and depends only on its arguments.
func IsAccessAllowed(p *Profile, now time.Time) bool {
	if p == nil || p.Status != StatusPublished {
		return false
	}
	switch p.SubscriptionStatus {
	case SubscriptionActive:
		return true
	case SubscriptionPastDue:
		return p.GracePeriodEndsAt != nil && p.GracePeriodEndsAt.After(now)
	default:
		return false
	}
}

// IsPreviewActive reports whether the preview window is open at now.
func IsPreviewActive(p *Profile, now time.Time) bool {
	return p != nil && p.PreviewExpiresAt != nil && now.Before(*p.PreviewExpiresAt)
}

// CanServe is the check used on the page-view path. A published profile in
// its preview window is served even without a paying subscription.
func CanServe(p *Profile, now time.Time) bool {
	if IsAccessAllowed(p, now) {
		return true
	}
	return p != nil && p.Status == StatusPublished && IsPreviewActive(p, now)
}

// Explain returns the serve decision and the reason behind it.
func Explain(p *Profile, now time.Time) (bool, Reason) {
	switch {
	case p == nil:
		return false, ReasonUnknownProfile
	case IsAccessAllowed(p, now) && p.SubscriptionStatus == SubscriptionActive:
		return true, ReasonSubscriptionActive
	case IsAccessAllowed(p, now):
		return true, ReasonGracePeriod
	case CanServe(p, now):
		return true, ReasonPreview
	case p.Status != StatusPublished:
		return false, ReasonNotPublished
	case p.SubscriptionStatus == SubscriptionPastDue:
		return false, ReasonGraceExpired
	default:
		return false, ReasonNoSubscription
	}
}
