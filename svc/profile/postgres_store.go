package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/bookpage/pkg/pg"
)

// DB is the subset of pgxpool.Pool the store needs. A pgx.Tx satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL via pgx.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, user_id, status, subscription_status, stripe_customer_id, subscription_id,
	grace_period_ends_at, preview_started_at, preview_expires_at, created_at, updated_at`

const subscriptionColumns = `id, profile_id, stripe_subscription_id, stripe_customer_id, status,
	current_period_start, current_period_end, cancel_at_period_end, trial_start, trial_end,
	canceled_at, created_at, updated_at`

func (s *PostgresStore) CreateProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.ID == uuid.Nil || !p.Status.Valid() || !p.SubscriptionStatus.Valid() {
		return ErrInvalidProfile
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO profiles (id, user_id, status, subscription_status, stripe_customer_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.Status, p.SubscriptionStatus, p.StripeCustomerID,
	)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrProfileExists
		}
		return errors.Join(ErrStoreFailure, fmt.Errorf("create profile: %w", err))
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.getProfile(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

func (s *PostgresStore) GetProfileByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.getProfile(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
}

func (s *PostgresStore) GetProfileByCustomerID(ctx context.Context, customerID string) (*Profile, error) {
	if customerID == "" {
		return nil, ErrProfileNotFound
	}
	return s.getProfile(ctx, `SELECT `+profileColumns+` FROM profiles WHERE stripe_customer_id = $1`, customerID)
}

func (s *PostgresStore) SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) (string, error) {
	var current *string
	err := s.db.QueryRow(ctx, `
		UPDATE profiles
		SET stripe_customer_id = COALESCE(stripe_customer_id, NULLIF($2, '')),
		    updated_at = CASE WHEN stripe_customer_id IS NULL AND $2 <> '' THEN NOW() ELSE updated_at END
		WHERE id = $1
		RETURNING stripe_customer_id`,
		id, customerID,
	).Scan(&current)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", ErrProfileNotFound
		}
		return "", errors.Join(ErrStoreFailure, fmt.Errorf("set customer id: %w", err))
	}
	if current == nil {
		return "", nil
	}
	return *current, nil
}

func (s *PostgresStore) UpdateBillingState(ctx context.Context, id uuid.UUID, state BillingState) (*Profile, error) {
	if !validBillingState(state) {
		return nil, ErrInvalidProfile
	}
	return s.getProfile(ctx, `
		UPDATE profiles
		SET status = $2, subscription_status = $3, subscription_id = $4,
		    grace_period_ends_at = $5, preview_started_at = $6, preview_expires_at = $7,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns,
		id, state.Status, state.SubscriptionStatus, state.SubscriptionID,
		state.GracePeriodEndsAt, state.PreviewStartedAt, state.PreviewExpiresAt,
	)
}

func (s *PostgresStore) ListGraceExpired(ctx context.Context, now time.Time) ([]Profile, error) {
	return s.listProfiles(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE status = 'published' AND subscription_status = 'past_due'
		  AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at < $1
		ORDER BY grace_period_ends_at`, now)
}

func (s *PostgresStore) ExpireGrace(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET status = 'draft', subscription_status = 'unpaid', grace_period_ends_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'published' AND subscription_status = 'past_due'
		  AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at < $2`,
		id, now,
	)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, fmt.Errorf("expire grace: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListPreviewExpired(ctx context.Context, now time.Time) ([]Profile, error) {
	return s.listProfiles(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE status = 'published' AND preview_expires_at IS NOT NULL AND preview_expires_at < $1
		ORDER BY preview_expires_at`, now)
}

func (s *PostgresStore) ClosePreview(ctx context.Context, id uuid.UUID, now time.Time, state BillingState) (bool, error) {
	if !validBillingState(state) {
		return false, ErrInvalidProfile
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET status = $3, subscription_status = $4, subscription_id = $5,
		    grace_period_ends_at = $6, preview_started_at = $7, preview_expires_at = $8,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'published'
		  AND preview_expires_at IS NOT NULL AND preview_expires_at < $2`,
		id, now, state.Status, state.SubscriptionStatus, state.SubscriptionID,
		state.GracePeriodEndsAt, state.PreviewStartedAt, state.PreviewExpiresAt,
	)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, fmt.Errorf("close preview: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) StartPreview(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET status = 'published', preview_started_at = $2, preview_expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'`,
		id, startedAt, expiresAt,
	)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, fmt.Errorf("start preview: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := s.GetProfile(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub == nil || sub.StripeSubscriptionID == "" || sub.ProfileID == uuid.Nil || !sub.Status.Valid() {
		return nil, ErrInvalidSubscription
	}
	id := sub.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO subscriptions (id, profile_id, stripe_subscription_id, stripe_customer_id, status,
			current_period_start, current_period_end, cancel_at_period_end, trial_start, trial_end, canceled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			profile_id = EXCLUDED.profile_id,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = NOW()
		RETURNING `+subscriptionColumns,
		id, sub.ProfileID, sub.StripeSubscriptionID, sub.StripeCustomerID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.TrialStart, sub.TrialEnd, sub.CanceledAt,
	)
	out, err := scanSubscription(row)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return nil, errors.Join(ErrInvalidSubscription, ErrProfileNotFound)
		}
		return nil, errors.Join(ErrStoreFailure, fmt.Errorf("upsert subscription: %w", err))
	}
	return out, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.getSubscription(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (s *PostgresStore) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error) {
	return s.getSubscription(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`, stripeSubscriptionID)
}

func (s *PostgresStore) ListSubscriptionsByProfile(ctx context.Context, profileID uuid.UUID) ([]Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE profile_id = $1 ORDER BY created_at DESC`, profileID)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, fmt.Errorf("list subscriptions: %w", err))
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreFailure, fmt.Errorf("scan subscription: %w", err))
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func (s *PostgresStore) RecordInvoice(ctx context.Context, inv *Invoice) error {
	if inv == nil || inv.StripeInvoiceID == "" {
		return ErrStoreFailure
	}
	id := inv.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO invoices (id, stripe_invoice_id, profile_id, stripe_subscription_id, status,
			amount_due, amount_paid, currency, hosted_invoice_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stripe_invoice_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_due = EXCLUDED.amount_due,
			amount_paid = EXCLUDED.amount_paid,
			hosted_invoice_url = EXCLUDED.hosted_invoice_url`,
		id, inv.StripeInvoiceID, inv.ProfileID, inv.StripeSubscriptionID, inv.Status,
		inv.AmountDue, inv.AmountPaid, inv.Currency, inv.HostedInvoiceURL,
	)
	if err != nil {
		return errors.Join(ErrStoreFailure, fmt.Errorf("record invoice: %w", err))
	}
	return nil
}

func (s *PostgresStore) RecordUnresolvedEvent(ctx context.Context, ev *UnresolvedEvent) error {
	if ev == nil || ev.EventID == "" {
		return ErrStoreFailure
	}
	var payload any
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO unresolved_events (event_id, event_type, reason, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			attempts = unresolved_events.attempts + 1,
			updated_at = NOW()`,
		ev.EventID, ev.EventType, ev.Reason, payload,
	)
	if err != nil {
		return errors.Join(ErrStoreFailure, fmt.Errorf("record unresolved event: %w", err))
	}
	return nil
}

func (s *PostgresStore) ListUnresolvedEvents(ctx context.Context, limit int) ([]UnresolvedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT event_id, event_type, reason, payload, attempts, created_at, updated_at
		FROM unresolved_events ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, fmt.Errorf("list unresolved events: %w", err))
	}
	defer rows.Close()

	var out []UnresolvedEvent
	for rows.Next() {
		var ev UnresolvedEvent
		if err := rows.Scan(&ev.EventID, &ev.EventType, &ev.Reason, &ev.Payload,
			&ev.Attempts, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func (s *PostgresStore) getProfile(ctx context.Context, query string, args ...any) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrProfileNotFound
		}
		return nil, errors.Join(ErrStoreFailure, fmt.Errorf("get profile: %w", err))
	}
	return p, nil
}

func (s *PostgresStore) listProfiles(ctx context.Context, query string, args ...any) ([]Profile, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, fmt.Errorf("list profiles: %w", err))
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreFailure, fmt.Errorf("scan profile: %w", err))
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func (s *PostgresStore) getSubscription(ctx context.Context, query string, args ...any) (*Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStoreFailure, fmt.Errorf("get subscription: %w", err))
	}
	return sub, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p          Profile
		customerID *string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Status, &p.SubscriptionStatus, &customerID, &p.SubscriptionID,
		&p.GracePeriodEndsAt, &p.PreviewStartedAt, &p.PreviewExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if customerID != nil {
		p.StripeCustomerID = *customerID
	}
	return &p, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	if err := row.Scan(&s.ID, &s.ProfileID, &s.StripeSubscriptionID, &s.StripeCustomerID, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.TrialStart, &s.TrialEnd,
		&s.CanceledAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
