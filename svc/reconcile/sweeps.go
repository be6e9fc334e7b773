package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

const (
	SweepGrace   = "grace"
	SweepPreview = "preview"
)

// SweepReport summarizes one sweep run. Matched counts candidates returned by
// the selection query; Changed counts rows the conditional write actually
// moved. A candidate changed concurrently by a webhook is neither changed nor
// failed.
type SweepReport struct {
	Matched int
	Changed int
	Failed  int
}

// GraceSweep moves every published, past-due profile whose grace window has
// ended to draft/unpaid. It touches only local data.
func (s *Service) GraceSweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	defer func() { SweepDuration.WithLabelValues(SweepGrace).Observe(time.Since(start).Seconds()) }()

	now := s.now()
	candidates, err := s.store.ListGraceExpired(ctx, now)
	if err != nil {
		SweepRunsTotal.WithLabelValues(SweepGrace, "error").Inc()
		return SweepReport{}, fmt.Errorf("list grace-expired profiles: %w", err)
	}

	report := SweepReport{Matched: len(candidates)}
	for _, p := range candidates {
		changed, err := s.store.ExpireGrace(ctx, p.ID, now)
		if err != nil {
			report.Failed++
			s.log.ErrorContext(ctx, "failed to expire grace period",
				logger.Component("reconcile"), logger.ProfileID(p.ID), logger.Error(err))
			continue
		}
		if changed {
			report.Changed++
			s.log.InfoContext(ctx, "grace period ended, profile unpublished",
				logger.Component("reconcile"), logger.ProfileID(p.ID),
				slog.Time("grace_period_ends_at", *p.GracePeriodEndsAt))
		}
	}

	s.finish(ctx, SweepGrace, report)
	return report, nil
}

// PreviewSweep closes every preview window that has ended. Profiles with a
// processor customer are checked against the processor: an active
// subscription keeps the page published, anything else returns it to draft.
// A processor failure for one profile leaves it for the next run.
func (s *Service) PreviewSweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	defer func() { SweepDuration.WithLabelValues(SweepPreview).Observe(time.Since(start).Seconds()) }()

	now := s.now()
	candidates, err := s.store.ListPreviewExpired(ctx, now)
	if err != nil {
		SweepRunsTotal.WithLabelValues(SweepPreview, "error").Inc()
		return SweepReport{}, fmt.Errorf("list preview-expired profiles: %w", err)
	}

	report := SweepReport{Matched: len(candidates)}
	for i := range candidates {
		p := &candidates[i]
		changed, err := s.closePreview(ctx, p, now)
		if err != nil {
			report.Failed++
			s.log.ErrorContext(ctx, "failed to close preview",
				logger.Component("reconcile"), logger.ProfileID(p.ID),
				logger.CustomerID(p.StripeCustomerID), logger.Error(err))
			continue
		}
		if changed {
			report.Changed++
		}
	}

	s.finish(ctx, SweepPreview, report)
	return report, nil
}

func (s *Service) closePreview(ctx context.Context, p *profile.Profile, now time.Time) (bool, error) {
	next := p.BillingState()
	next.ClearPreview()
	next.Status = profile.StatusDraft

	if p.StripeCustomerID != "" {
		subs, err := s.listSubscriptions(ctx, p.StripeCustomerID)
		if err != nil {
			return false, err
		}
		derived, best, err := s.rec.Resync(ctx, p, subs)
		if err != nil {
			return false, err
		}
		if best != nil && billing.NormalizeStatus(best.Status) == profile.SubscriptionActive {
			derived.ClearPreview()
			changed, err := s.store.ClosePreview(ctx, p.ID, now, derived)
			if err == nil && changed {
				s.log.InfoContext(ctx, "preview ended, paid subscription keeps profile published",
					logger.Component("reconcile"), logger.ProfileID(p.ID), logger.SubscriptionID(best.ID))
			}
			return changed, err
		}

		next.SubscriptionID = derived.SubscriptionID
		next.SubscriptionStatus = derived.SubscriptionStatus
		next.GracePeriodEndsAt = nil
		// An unpaid subscription after a preview is treated like an expired grace.
		if next.SubscriptionStatus == profile.SubscriptionPastDue {
			next.SubscriptionStatus = profile.SubscriptionUnpaid
		}
	}

	changed, err := s.store.ClosePreview(ctx, p.ID, now, next)
	if err == nil && changed {
		s.log.InfoContext(ctx, "preview ended, profile unpublished",
			logger.Component("reconcile"), logger.ProfileID(p.ID))
	}
	return changed, err
}

func (s *Service) finish(ctx context.Context, sweep string, r SweepReport) {
	outcome := "ok"
	if r.Failed > 0 {
		outcome = "partial"
	}
	SweepRunsTotal.WithLabelValues(sweep, outcome).Inc()
	SweepTransitionsTotal.WithLabelValues(sweep).Add(float64(r.Changed))

	if r.Matched == 0 {
		s.log.DebugContext(ctx, "sweep found nothing to do", logger.Component("reconcile"), slog.String("sweep", sweep))
		return
	}
	s.log.InfoContext(ctx, "sweep finished",
		logger.Component("reconcile"),
		slog.String("sweep", sweep),
		slog.Int("matched", r.Matched),
		slog.Int("changed", r.Changed),
		slog.Int("failed", r.Failed))
}
