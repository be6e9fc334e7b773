package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

// Result is the outcome of applying one event. Success=false marks a logical
// failure (nothing to attribute the event to, malformed payload) that a
// redelivery would not fix; infrastructure failures are returned as errors.
type Result struct {
	Success   bool
	Message   string
	ProfileID uuid.UUID
}

func ok(p *profile.Profile, format string, args ...any) Result {
	r := Result{Success: true, Message: fmt.Sprintf(format, args...)}
	if p != nil {
		r.ProfileID = p.ID
	}
	return r
}

func failed(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Reconciler applies billing objects to the profile and subscription stores.
// Every handler is idempotent: the mirror is upserted by its external id and
// profile fields are derived from the latest known status, never incremented.
type Reconciler struct {
	store       profile.Store
	processor   Processor
	gracePeriod time.Duration
	now         func() time.Time
	log         *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithProcessor sets the processor client used to fetch full subscriptions.
func WithProcessor(p Processor) ReconcilerOption {
	return func(r *Reconciler) { r.processor = p }
}

// WithGracePeriod overrides the 72h grace window.
func WithGracePeriod(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.gracePeriod = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// DefaultGracePeriod is the window a profile stays published after a failed payment.
const DefaultGracePeriod = 72 * time.Hour

func NewReconciler(store profile.Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:       store,
		gracePeriod: DefaultGracePeriod,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("billing.reconciler"))
	return r
}

// HandleSubscriptionCreated applies customer.subscription.created.
func (r *Reconciler) HandleSubscriptionCreated(ctx context.Context, sub Subscription) (Result, error) {
	p, res, err := r.resolve(ctx, sub.ProfileID(), sub.CustomerID)
	if p == nil {
		return res, err
	}
	return r.ApplySubscription(ctx, p, sub)
}

// HandleSubscriptionUpdated applies customer.subscription.updated. It shares
// the created path; the upsert makes the two indistinguishable.
func (r *Reconciler) HandleSubscriptionUpdated(ctx context.Context, sub Subscription) (Result, error) {
	return r.HandleSubscriptionCreated(ctx, sub)
}

// ApplySubscription mirrors sub and, when it is the profile's current
// subscription, derives the profile billing state from it.
func (r *Reconciler) ApplySubscription(ctx context.Context, p *profile.Profile, sub Subscription) (Result, error) {
	if sub.ID == "" {
		return failed("subscription payload has no id"), nil
	}
	status := NormalizeStatus(sub.Status)

	existing, err := r.store.GetSubscriptionByStripeID(ctx, sub.ID)
	if err != nil && !errors.Is(err, profile.ErrSubscriptionNotFound) {
		return Result{}, fmt.Errorf("load subscription %s: %w", sub.ID, err)
	}
	if existing != nil && existing.Status == profile.SubscriptionCanceled && status != profile.SubscriptionCanceled {
		return ok(p, "subscription %s already canceled; ignoring %q", sub.ID, sub.Status), nil
	}

	mirror := r.mirror(p.ID, sub, status, existing)
	stored, err := r.store.UpsertSubscription(ctx, mirror)
	if err != nil {
		return Result{}, fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}

	if err := r.attachCustomer(ctx, p, sub.CustomerID); err != nil {
		return Result{}, err
	}

	current, err := r.isCurrent(ctx, p, stored)
	if err != nil {
		return Result{}, err
	}
	if !current {
		r.log.InfoContext(ctx, "mirrored non-current subscription",
			logger.ProfileID(p.ID), logger.SubscriptionID(sub.ID), slog.String("status", string(status)))
		return ok(p, "subscription %s mirrored as %s; not the current subscription", sub.ID, status), nil
	}

	next := DeriveState(p.BillingState(), status, stored.ID, r.now())
	updated, err := r.store.UpdateBillingState(ctx, p.ID, next)
	if err != nil {
		return Result{}, fmt.Errorf("update profile %s: %w", p.ID, err)
	}

	r.log.InfoContext(ctx, "subscription applied",
		logger.ProfileID(p.ID), logger.SubscriptionID(sub.ID),
		slog.String("upstream_status", sub.Status),
		slog.String("profile_status", string(updated.Status)),
		slog.String("subscription_status", string(updated.SubscriptionStatus)))
	return ok(p, "profile %s is %s/%s", p.ID, updated.Status, updated.SubscriptionStatus), nil
}

// HandleSubscriptionDeleted applies customer.subscription.deleted. Deletion is
// terminal: the profile goes offline at once, bypassing any grace window.
func (r *Reconciler) HandleSubscriptionDeleted(ctx context.Context, sub Subscription) (Result, error) {
	p, res, err := r.resolve(ctx, sub.ProfileID(), sub.CustomerID)
	if p == nil {
		return res, err
	}
	if sub.ID == "" {
		return failed("subscription payload has no id"), nil
	}

	existing, err := r.store.GetSubscriptionByStripeID(ctx, sub.ID)
	if err != nil && !errors.Is(err, profile.ErrSubscriptionNotFound) {
		return Result{}, fmt.Errorf("load subscription %s: %w", sub.ID, err)
	}

	mirror := r.mirror(p.ID, sub, profile.SubscriptionCanceled, existing)
	stored, err := r.store.UpsertSubscription(ctx, mirror)
	if err != nil {
		return Result{}, fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}

	if p.SubscriptionID != nil && *p.SubscriptionID != stored.ID {
		return ok(p, "subscription %s canceled; profile follows another subscription", sub.ID), nil
	}

	next := DeriveState(p.BillingState(), profile.SubscriptionCanceled, stored.ID, r.now())
	if _, err := r.store.UpdateBillingState(ctx, p.ID, next); err != nil {
		return Result{}, fmt.Errorf("update profile %s: %w", p.ID, err)
	}

	r.log.InfoContext(ctx, "subscription deleted; profile unpublished",
		logger.ProfileID(p.ID), logger.SubscriptionID(sub.ID))
	return ok(p, "profile %s unpublished after subscription deletion", p.ID), nil
}

// HandleInvoicePaymentSucceeded applies invoice.payment_succeeded and
// invoice.paid.
func (r *Reconciler) HandleInvoicePaymentSucceeded(ctx context.Context, inv Invoice) (Result, error) {
	p, sub, res, err := r.resolveInvoice(ctx, inv)
	if p == nil {
		return res, err
	}
	if err := r.recordInvoice(ctx, p, inv, profile.InvoicePaid); err != nil {
		return Result{}, err
	}

	if sub == nil {
		if inv.SubscriptionID == "" {
			return ok(p, "invoice %s recorded; not tied to a subscription", inv.ID), nil
		}
		// Payment landed before the subscription was mirrored; take the
		// processor's current view instead of guessing.
		return r.fetchAndApply(ctx, p, inv.SubscriptionID)
	}
	if sub.Status == profile.SubscriptionCanceled {
		return ok(p, "subscription %s canceled; payment does not republish", sub.StripeSubscriptionID), nil
	}

	sub.Status = profile.SubscriptionActive
	stored, err := r.store.UpsertSubscription(ctx, sub)
	if err != nil {
		return Result{}, fmt.Errorf("upsert subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	current, err := r.isCurrent(ctx, p, stored)
	if err != nil {
		return Result{}, err
	}
	if !current {
		return ok(p, "invoice %s paid for non-current subscription %s", inv.ID, sub.StripeSubscriptionID), nil
	}

	next := DeriveState(p.BillingState(), profile.SubscriptionActive, stored.ID, r.now())
	if _, err := r.store.UpdateBillingState(ctx, p.ID, next); err != nil {
		return Result{}, fmt.Errorf("update profile %s: %w", p.ID, err)
	}

	r.log.InfoContext(ctx, "payment succeeded; profile active",
		logger.ProfileID(p.ID), logger.SubscriptionID(sub.StripeSubscriptionID), slog.String("invoice_id", inv.ID))
	return ok(p, "profile %s active after payment", p.ID), nil
}

// HandleInvoicePaymentFailed applies invoice.payment_failed. The first
// failure opens the grace window; retries inside it keep the original
// deadline, and a profile already demoted by the grace sweep stays demoted.
func (r *Reconciler) HandleInvoicePaymentFailed(ctx context.Context, inv Invoice) (Result, error) {
	p, sub, res, err := r.resolveInvoice(ctx, inv)
	if p == nil {
		return res, err
	}
	if err := r.recordInvoice(ctx, p, inv, profile.InvoiceOpen); err != nil {
		return Result{}, err
	}

	if sub != nil && sub.Status == profile.SubscriptionCanceled {
		return ok(p, "subscription %s canceled; payment failure ignored", sub.StripeSubscriptionID), nil
	}
	if demoted(p.BillingState()) {
		return ok(p, "profile %s grace already expired", p.ID), nil
	}

	next := p.BillingState()
	if sub != nil {
		sub.Status = profile.SubscriptionPastDue
		stored, err := r.store.UpsertSubscription(ctx, sub)
		if err != nil {
			return Result{}, fmt.Errorf("upsert subscription %s: %w", sub.StripeSubscriptionID, err)
		}
		current, err := r.isCurrent(ctx, p, stored)
		if err != nil {
			return Result{}, err
		}
		if !current {
			return ok(p, "invoice %s failed for non-current subscription %s", inv.ID, sub.StripeSubscriptionID), nil
		}
		next.SubscriptionID = &stored.ID
	}

	next.SubscriptionStatus = profile.SubscriptionPastDue
	if next.GracePeriodEndsAt == nil {
		deadline := r.now().UTC().Add(r.gracePeriod)
		next.GracePeriodEndsAt = &deadline
	}
	updated, err := r.store.UpdateBillingState(ctx, p.ID, next)
	if err != nil {
		return Result{}, fmt.Errorf("update profile %s: %w", p.ID, err)
	}

	r.log.WarnContext(ctx, "payment failed; grace period running",
		logger.ProfileID(p.ID), slog.String("invoice_id", inv.ID),
		slog.Time("grace_period_ends_at", *updated.GracePeriodEndsAt))
	return ok(p, "profile %s past due until %s", p.ID, updated.GracePeriodEndsAt.Format(time.RFC3339)), nil
}

// HandleCheckoutCompleted applies checkout.session.completed. The session is
// only a trigger: the customer is attached and the referenced subscription is
// fetched and re-entered through ApplySubscription.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, cs CheckoutSession) (Result, error) {
	p, res, err := r.resolve(ctx, cs.ProfileID(), cs.CustomerID)
	if p == nil {
		return res, err
	}
	if err := r.attachCustomer(ctx, p, cs.CustomerID); err != nil {
		return Result{}, err
	}
	if cs.SubscriptionID == "" {
		return ok(p, "checkout %s completed without subscription", cs.ID), nil
	}
	return r.fetchAndApply(ctx, p, cs.SubscriptionID)
}

func (r *Reconciler) fetchAndApply(ctx context.Context, p *profile.Profile, subscriptionID string) (Result, error) {
	if r.processor == nil {
		return Result{}, ErrProcessorUnavailable
	}
	sub, err := r.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return Result{}, err
	}
	return r.ApplySubscription(ctx, p, sub)
}

// resolve finds the profile an event belongs to: metadata profile id first,
// then the processor customer id. A nil profile comes with either a failed
// Result or an infrastructure error.
func (r *Reconciler) resolve(ctx context.Context, profileID, customerID string) (*profile.Profile, Result, error) {
	if profileID != "" {
		if id, err := uuid.Parse(profileID); err == nil {
			p, err := r.store.GetProfile(ctx, id)
			switch {
			case err == nil:
				return p, Result{}, nil
			case !errors.Is(err, profile.ErrProfileNotFound):
				return nil, Result{}, fmt.Errorf("load profile %s: %w", id, err)
			}
		}
	}

	if customerID = strings.TrimSpace(customerID); customerID != "" {
		p, err := r.store.GetProfileByCustomerID(ctx, customerID)
		switch {
		case err == nil:
			return p, Result{}, nil
		case !errors.Is(err, profile.ErrProfileNotFound):
			return nil, Result{}, fmt.Errorf("load profile by customer %s: %w", customerID, err)
		}
	}

	r.log.WarnContext(ctx, "event cannot be attributed to a profile",
		logger.ProfileID(profileID), logger.CustomerID(customerID))
	return nil, failed("%s: profile_id=%q customer=%q", ErrProfileUnresolved, profileID, customerID), nil
}

// resolveInvoice resolves through the subscription mirror when one exists,
// falling back to invoice metadata and customer.
func (r *Reconciler) resolveInvoice(ctx context.Context, inv Invoice) (*profile.Profile, *profile.Subscription, Result, error) {
	var sub *profile.Subscription
	if inv.SubscriptionID != "" {
		s, err := r.store.GetSubscriptionByStripeID(ctx, inv.SubscriptionID)
		switch {
		case err == nil:
			sub = s
		case !errors.Is(err, profile.ErrSubscriptionNotFound):
			return nil, nil, Result{}, fmt.Errorf("load subscription %s: %w", inv.SubscriptionID, err)
		}
	}

	if sub != nil {
		p, err := r.store.GetProfile(ctx, sub.ProfileID)
		switch {
		case err == nil:
			return p, sub, Result{}, nil
		case !errors.Is(err, profile.ErrProfileNotFound):
			return nil, nil, Result{}, fmt.Errorf("load profile %s: %w", sub.ProfileID, err)
		}
	}

	p, res, err := r.resolve(ctx, inv.ProfileID(), inv.CustomerID)
	return p, nil, res, err
}

func (r *Reconciler) isCurrent(ctx context.Context, p *profile.Profile, stored *profile.Subscription) (bool, error) {
	if p.SubscriptionID == nil || *p.SubscriptionID == stored.ID || stored.Status == profile.SubscriptionActive {
		return true, nil
	}
	cur, err := r.store.GetSubscription(ctx, *p.SubscriptionID)
	if errors.Is(err, profile.ErrSubscriptionNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load current subscription: %w", err)
	}
	// A dead current subscription yields to any newer one.
	live := cur.Status == profile.SubscriptionActive || cur.Status == profile.SubscriptionPastDue
	return !live, nil
}

func (r *Reconciler) attachCustomer(ctx context.Context, p *profile.Profile, customerID string) error {
	if customerID == "" || p.StripeCustomerID != "" {
		return nil
	}
	got, err := r.store.SetCustomerID(ctx, p.ID, customerID)
	if err != nil {
		return fmt.Errorf("attach customer to profile %s: %w", p.ID, err)
	}
	p.StripeCustomerID = got
	return nil
}

func (r *Reconciler) recordInvoice(ctx context.Context, p *profile.Profile, inv Invoice, status profile.InvoiceStatus) error {
	if inv.ID == "" {
		return nil
	}
	err := r.store.RecordInvoice(ctx, &profile.Invoice{
		StripeInvoiceID:      inv.ID,
		ProfileID:            p.ID,
		StripeSubscriptionID: inv.SubscriptionID,
		Status:               status,
		AmountDue:            inv.AmountDue,
		AmountPaid:           inv.AmountPaid,
		Currency:             inv.Currency,
		HostedInvoiceURL:     inv.HostedInvoiceURL,
	})
	if err != nil {
		return fmt.Errorf("record invoice %s: %w", inv.ID, err)
	}
	return nil
}

func (r *Reconciler) mirror(profileID uuid.UUID, sub Subscription, status profile.SubscriptionStatus, existing *profile.Subscription) *profile.Subscription {
	m := &profile.Subscription{
		ProfileID:            profileID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.CustomerID,
		Status:               status,
		CurrentPeriodStart:   unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		TrialStart:           unixTime(sub.TrialStart),
		TrialEnd:             unixTime(sub.TrialEnd),
		CanceledAt:           unixTime(sub.CanceledAt),
	}
	if existing != nil {
		m.ID = existing.ID
		if m.StripeCustomerID == "" {
			m.StripeCustomerID = existing.StripeCustomerID
		}
	}
	if status == profile.SubscriptionCanceled && m.CanceledAt == nil {
		switch {
		case existing != nil && existing.CanceledAt != nil:
			m.CanceledAt = existing.CanceledAt
		case sub.EndedAt > 0:
			m.CanceledAt = unixTime(sub.EndedAt)
		default:
			t := r.now().UTC()
			m.CanceledAt = &t
		}
	}
	return m
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
