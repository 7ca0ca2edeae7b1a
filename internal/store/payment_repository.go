/**
 * @description
 * PostgreSQL implementation of the PaymentRepository. Every intent
 * transition is a conditional update keyed on the current status, which is
 * what prevents a duplicate merchant confirmation from double-crediting a
 * referral commission: the second UPDATE matches no row.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pipomarket/settlement-service/internal/domain"
)

const intentColumns = `
	id, order_id, merchant_id, customer_id, gross_amount, commission_amount,
	commission_rate_percent, merchant_net_amount, status, cancel_reason,
	created_at, expires_at, updated_at`

// PostgresPaymentRepository persists payment intents, the order verification
// mark, and referral credits.
type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

// NewPostgresPaymentRepository creates a new repository.
func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

func scanIntent(row pgx.Row) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := row.Scan(
		&intent.ID,
		&intent.OrderID,
		&intent.MerchantID,
		&intent.CustomerID,
		&intent.GrossAmount,
		&intent.CommissionAmount,
		&intent.CommissionRatePercent,
		&intent.MerchantNetAmount,
		&intent.Status,
		&intent.CancelReason,
		&intent.CreatedAt,
		&intent.ExpiresAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreateIntent inserts a new payment intent with its snapshotted commission
// split.
func (r *PostgresPaymentRepository) CreateIntent(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
	query := `
        INSERT INTO payment_intents (
            order_id, merchant_id, customer_id, gross_amount, commission_amount,
            commission_rate_percent, merchant_net_amount, status, expires_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING` + intentColumns
	created, err := scanIntent(r.db.QueryRow(ctx, query,
		intent.OrderID,
		intent.MerchantID,
		intent.CustomerID,
		intent.GrossAmount,
		intent.CommissionAmount,
		intent.CommissionRatePercent,
		intent.MerchantNetAmount,
		intent.Status,
		intent.ExpiresAt,
	))
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return created, nil
}

// GetIntent retrieves a payment intent by ID.
func (r *PostgresPaymentRepository) GetIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	query := `SELECT` + intentColumns + ` FROM payment_intents WHERE id = $1`
	intent, err := scanIntent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentIntentNotFound
		}
		return nil, domain.StorageError(err)
	}
	return intent, nil
}

// ListIntentsByOrder returns all intents created for an order, one per
// merchant in the cart.
func (r *PostgresPaymentRepository) ListIntentsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.PaymentIntent, error) {
	query := `SELECT` + intentColumns + ` FROM payment_intents WHERE order_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()

	var intents []domain.PaymentIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, domain.StorageError(err)
		}
		intents = append(intents, *intent)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError(err)
	}
	return intents, nil
}

// MarkCustomerConfirmed claims the pending -> customer_confirmed transition.
// Returns (nil, nil) when the intent is not pending.
func (r *PostgresPaymentRepository) MarkCustomerConfirmed(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	query := `
        UPDATE payment_intents
        SET status = 'customer_confirmed',
            updated_at = NOW()
        WHERE id = $1
          AND status = 'pending'
        RETURNING` + intentColumns
	return r.claim(ctx, query, id)
}

// MarkMerchantConfirmed claims the customer_confirmed -> merchant_confirmed
// transition, the authoritative settlement point. Returns (nil, nil) when
// the claim is lost, which the service maps to ErrInvalidTransition.
func (r *PostgresPaymentRepository) MarkMerchantConfirmed(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	query := `
        UPDATE payment_intents
        SET status = 'merchant_confirmed',
            updated_at = NOW()
        WHERE id = $1
          AND status = 'customer_confirmed'
        RETURNING` + intentColumns
	return r.claim(ctx, query, id)
}

// CancelIntent claims the transition to cancelled from either pre-settlement
// state.
func (r *PostgresPaymentRepository) CancelIntent(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentIntent, error) {
	query := `
        UPDATE payment_intents
        SET status = 'cancelled',
            cancel_reason = $2,
            updated_at = NOW()
        WHERE id = $1
          AND status IN ('pending', 'customer_confirmed')
        RETURNING` + intentColumns
	return r.claim(ctx, query, id, reason)
}

// ListExpiredPending returns pending intents past their expiry, for the
// scheduler's expiry sweep.
func (r *PostgresPaymentRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.PaymentIntent, error) {
	query := `SELECT` + intentColumns + `
        FROM payment_intents
        WHERE status = 'pending'
          AND expires_at <= $1
        ORDER BY expires_at ASC`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()

	var intents []domain.PaymentIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, domain.StorageError(err)
		}
		intents = append(intents, *intent)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError(err)
	}
	return intents, nil
}

// MarkOrderPaymentVerified flags the parent order as paid and processing.
// Sequenced after the intent transition; not part of the same transaction.
func (r *PostgresPaymentRepository) MarkOrderPaymentVerified(ctx context.Context, orderID uuid.UUID) error {
	query := `
        UPDATE orders
        SET payment_status = 'verified',
            status = 'processing',
            updated_at = NOW()
        WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, orderID); err != nil {
		return domain.StorageError(err)
	}
	return nil
}

// FindReferrerByCode resolves an ambassador referral code to the referrer's
// ID.
func (r *PostgresPaymentRepository) FindReferrerByCode(ctx context.Context, code string) (uuid.UUID, error) {
	var id uuid.UUID
	query := `SELECT id FROM referrers WHERE code = $1`
	if err := r.db.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrReferrerNotFound
		}
		return uuid.Nil, domain.StorageError(err)
	}
	return id, nil
}

// InsertReferralCredit records the fixed commission and bumps the referrer's
// running balance. The unique constraint on intent_id makes the credit
// single-shot even if the caller retries after a partial failure; the bool
// reports whether a new credit row was written.
func (r *PostgresPaymentRepository) InsertReferralCredit(ctx context.Context, referrerID, intentID uuid.UUID, amount int64) (bool, error) {
	insert := `
        INSERT INTO referral_credits (referrer_id, intent_id, amount)
        VALUES ($1, $2, $3)
        ON CONFLICT (intent_id) DO NOTHING`
	tag, err := r.db.Exec(ctx, insert, referrerID, intentID, amount)
	if err != nil {
		return false, domain.StorageError(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	update := `
        UPDATE referrers
        SET balance = balance + $2,
            updated_at = NOW()
        WHERE id = $1`
	if _, err := r.db.Exec(ctx, update, referrerID, amount); err != nil {
		return false, domain.StorageError(err)
	}
	return true, nil
}

func (r *PostgresPaymentRepository) claim(ctx context.Context, query string, args ...any) (*domain.PaymentIntent, error) {
	intent, err := scanIntent(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.StorageError(err)
	}
	return intent, nil
}
