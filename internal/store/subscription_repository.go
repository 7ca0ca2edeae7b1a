/**
 * @description
 * PostgreSQL implementation of the SubscriptionRepository. All status
 * transitions are conditional updates keyed on the current status, so two
 * concurrent callers racing the same overdue subscription cannot apply a
 * transition twice: exactly one UPDATE matches, the other sees no row.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pipomarket/settlement-service/internal/domain"
)

const subscriptionColumns = `
	id, merchant_id, selected_tier_id, granted_tier_id, status,
	trial_end, period_start, period_end, reminder_at, reminder_sent,
	auto_renew, is_active, created_at, updated_at`

// PostgresSubscriptionRepository persists subscriptions and the merchant
// visibility mirror.
type PostgresSubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(db *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.MerchantID,
		&sub.SelectedTierID,
		&sub.GrantedTierID,
		&sub.Status,
		&sub.TrialEnd,
		&sub.PeriodStart,
		&sub.PeriodEnd,
		&sub.ReminderAt,
		&sub.ReminderSent,
		&sub.AutoRenew,
		&sub.IsActive,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription inserts the merchant's subscription row. The unique
// constraint on merchant_id enforces the 1:1 invariant.
func (r *PostgresSubscriptionRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	query := `
        INSERT INTO subscriptions (
            merchant_id, selected_tier_id, granted_tier_id, status,
            trial_end, period_start, period_end, reminder_at, reminder_sent,
            auto_renew, is_active
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING` + subscriptionColumns
	created, err := scanSubscription(r.db.QueryRow(ctx, query,
		sub.MerchantID,
		sub.SelectedTierID,
		sub.GrantedTierID,
		sub.Status,
		sub.TrialEnd,
		sub.PeriodStart,
		sub.PeriodEnd,
		sub.ReminderAt,
		sub.ReminderSent,
		sub.AutoRenew,
		sub.IsActive,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSubscriptionExists
		}
		return nil, domain.StorageError(err)
	}
	return created, nil
}

// GetByMerchantID retrieves the subscription for a merchant.
func (r *PostgresSubscriptionRepository) GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE merchant_id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, merchantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, domain.StorageError(err)
	}
	return sub, nil
}

// GetByID retrieves a subscription by its primary key.
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, domain.StorageError(err)
	}
	return sub, nil
}

// ListSubscriptions returns subscriptions, optionally filtered by status.
func (r *PostgresSubscriptionRepository) ListSubscriptions(ctx context.Context, status string, limit int) ([]domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
        FROM subscriptions
        WHERE ($1 = '' OR status = $1)
        ORDER BY created_at DESC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.StorageError(err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError(err)
	}
	return subs, nil
}

// ExpireTrial moves an overdue trial to pending_payment, collapsing the
// promotional grant back to the selected tier. Returns (nil, nil) when the
// row is no longer an overdue trial (a concurrent reader already moved it).
func (r *PostgresSubscriptionRepository) ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = 'pending_payment',
            granted_tier_id = selected_tier_id,
            is_active = FALSE,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'trial'
          AND trial_end <= $2
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id, now)
}

// SuspendLapsed moves an active subscription past its period end to
// suspended. Returns (nil, nil) when the claim was lost.
func (r *PostgresSubscriptionRepository) SuspendLapsed(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = 'suspended',
            is_active = FALSE,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'active'
          AND period_end <= $2
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id, now)
}

// ActivateSubscription starts a fresh billing period. Only valid from
// pending_payment or suspended; (nil, nil) signals an invalid source state.
func (r *PostgresSubscriptionRepository) ActivateSubscription(ctx context.Context, id uuid.UUID, periodStart, periodEnd, reminderAt time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = 'active',
            is_active = TRUE,
            period_start = $2,
            period_end = $3,
            reminder_at = $4,
            reminder_sent = FALSE,
            updated_at = NOW()
        WHERE id = $1
          AND status IN ('pending_payment', 'suspended')
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id, periodStart, periodEnd, reminderAt)
}

// SuspendSubscription is the admin-forced counterpart of SuspendLapsed.
func (r *PostgresSubscriptionRepository) SuspendSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = 'suspended',
            is_active = FALSE,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'active'
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id)
}

// ExtendPeriod pushes the billing period and reminder forward by whole days.
func (r *PostgresSubscriptionRepository) ExtendPeriod(ctx context.Context, id uuid.UUID, days int) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET period_end = period_end + make_interval(days => $2),
            reminder_at = reminder_at + make_interval(days => $2),
            reminder_sent = FALSE,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'active'
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id, days)
}

// UpdateSelectedTier rewrites only the billed tier; used during trial where
// the promotional grant must stay untouched.
func (r *PostgresSubscriptionRepository) UpdateSelectedTier(ctx context.Context, id uuid.UUID, tierID string) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET selected_tier_id = $2,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'trial'
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id, tierID)
}

// UpdateGrantedAndSelectedTier rewrites both tiers, taking effect
// immediately. Not valid for cancelled subscriptions.
func (r *PostgresSubscriptionRepository) UpdateGrantedAndSelectedTier(ctx context.Context, id uuid.UUID, tierID string) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET selected_tier_id = $2,
            granted_tier_id = $2,
            updated_at = NOW()
        WHERE id = $1
          AND status <> 'cancelled'
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id, tierID)
}

// CancelSubscription terminates the subscription immediately. Cancellation
// is only permitted from trial or active.
func (r *PostgresSubscriptionRepository) CancelSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = 'cancelled',
            is_active = FALSE,
            auto_renew = FALSE,
            updated_at = NOW()
        WHERE id = $1
          AND status IN ('trial', 'active')
        RETURNING` + subscriptionColumns
	return r.claim(ctx, query, id)
}

// ListOverdue returns subscriptions whose time-driven transition is due:
// trials past trial_end and active periods past period_end.
func (r *PostgresSubscriptionRepository) ListOverdue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
        FROM subscriptions
        WHERE (status = 'trial' AND trial_end <= $1)
           OR (status = 'active' AND period_end <= $1)
        ORDER BY updated_at ASC`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListDueReminders returns subscriptions whose renewal reminder is due and
// not yet sent.
func (r *PostgresSubscriptionRepository) ListDueReminders(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
        FROM subscriptions
        WHERE status IN ('trial', 'active')
          AND reminder_sent = FALSE
          AND reminder_at <= $1
        ORDER BY reminder_at ASC`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// MarkReminderSent flips the reminder flag. The condition makes the mark
// single-shot when two sweeps race the same row.
func (r *PostgresSubscriptionRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
        UPDATE subscriptions
        SET reminder_sent = TRUE,
            updated_at = NOW()
        WHERE id = $1
          AND reminder_sent = FALSE`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, domain.StorageError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// MirrorMerchantFlags copies the visibility flag and tier badge onto the
// merchant record that the storefront reads.
func (r *PostgresSubscriptionRepository) MirrorMerchantFlags(ctx context.Context, merchantID uuid.UUID, isActive bool, tierID string) error {
	query := `
        UPDATE merchants
        SET is_active = $2,
            tier_id = $3,
            updated_at = NOW()
        WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, merchantID, isActive, tierID); err != nil {
		return domain.StorageError(err)
	}
	return nil
}

// CountProducts counts a merchant's products for quota checks.
func (r *PostgresSubscriptionRepository) CountProducts(ctx context.Context, merchantID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM products WHERE merchant_id = $1`
	if err := r.db.QueryRow(ctx, query, merchantID).Scan(&count); err != nil {
		return 0, domain.StorageError(err)
	}
	return count, nil
}

// CountOrdersSince counts a merchant's orders created in the current billing
// period for quota checks.
func (r *PostgresSubscriptionRepository) CountOrdersSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM orders WHERE merchant_id = $1 AND created_at >= $2`
	if err := r.db.QueryRow(ctx, query, merchantID, since).Scan(&count); err != nil {
		return 0, domain.StorageError(err)
	}
	return count, nil
}

// claim runs a guarded transition query; no matching row means the claim was
// lost or the source state does not permit the transition.
func (r *PostgresSubscriptionRepository) claim(ctx context.Context, query string, args ...any) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.StorageError(err)
	}
	return sub, nil
}
