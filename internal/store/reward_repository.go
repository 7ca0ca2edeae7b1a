/**
 * @description
 * PostgreSQL implementation of the RewardRepository: reward lookups and the
 * loyalty fund ledger. Fund movements run in a transaction that locks the
 * fund row, so concurrent settlements can never drive the balance negative
 * or record a ledger entry inconsistent with the balance it reports.
 */
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pipomarket/settlement-service/internal/domain"
)

// PostgresRewardRepository persists rewards and the loyalty fund.
type PostgresRewardRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRewardRepository creates a new repository.
func NewPostgresRewardRepository(db *pgxpool.Pool) *PostgresRewardRepository {
	return &PostgresRewardRepository{db: db}
}

// GetReward retrieves a reward definition by ID.
func (r *PostgresRewardRepository) GetReward(ctx context.Context, id uuid.UUID) (*domain.Reward, error) {
	var reward domain.Reward
	query := `
        SELECT id, kind, value, max_discount, max_usable_per_order
        FROM rewards
        WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&reward.ID,
		&reward.Kind,
		&reward.Value,
		&reward.MaxDiscount,
		&reward.MaxUsablePerOrder,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, domain.StorageError(err)
	}
	return &reward, nil
}

// GetFund returns the single platform-wide loyalty fund row.
func (r *PostgresRewardRepository) GetFund(ctx context.Context) (*domain.LoyaltyFund, error) {
	var fund domain.LoyaltyFund
	query := `SELECT id, balance, updated_at FROM loyalty_fund LIMIT 1`
	err := r.db.QueryRow(ctx, query).Scan(&fund.ID, &fund.Balance, &fund.UpdatedAt)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return &fund, nil
}

// DebitFund subtracts the subsidy from the fund, floored at zero, and
// appends a ledger entry referencing the order. The entry's amount records
// what was actually debited, which can be less than the requested subsidy
// when the fund is nearly depleted. The fund row is locked for the duration
// of the transaction so concurrent settlements see consistent balances and
// the ledger sums to the fund's movement.
func (r *PostgresRewardRepository) DebitFund(ctx context.Context, orderID uuid.UUID, amount int64, note string) (*domain.FundLedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer tx.Rollback(ctx)

	var fundID uuid.UUID
	var before int64
	lock := `SELECT id, balance FROM loyalty_fund LIMIT 1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lock).Scan(&fundID, &before); err != nil {
		return nil, domain.StorageError(err)
	}

	debited := amount
	if debited > before {
		debited = before
	}
	after := before - debited

	update := `
        UPDATE loyalty_fund
        SET balance = $1, updated_at = NOW()
        WHERE id = $2`
	if _, err := tx.Exec(ctx, update, after, fundID); err != nil {
		return nil, domain.StorageError(err)
	}

	entry := &domain.FundLedgerEntry{}
	insert := `
        INSERT INTO loyalty_fund_ledger (order_id, amount, balance_after, note)
        VALUES ($1, $2, $3, $4)
        RETURNING id, order_id, amount, balance_after, note, created_at`
	err = tx.QueryRow(ctx, insert, orderID, -debited, after, note).Scan(
		&entry.ID,
		&entry.OrderID,
		&entry.Amount,
		&entry.BalanceAfter,
		&entry.Note,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, domain.StorageError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.StorageError(err)
	}
	return entry, nil
}

// CreditFund adds to the fund (admin top-up) and appends a ledger entry in
// the same transaction so the ledger never drifts from the balance.
func (r *PostgresRewardRepository) CreditFund(ctx context.Context, amount int64, note string) (*domain.FundLedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer tx.Rollback(ctx)

	var after int64
	update := `
        UPDATE loyalty_fund
        SET balance = balance + $1,
            updated_at = NOW()
        RETURNING balance`
	if err := tx.QueryRow(ctx, update, amount).Scan(&after); err != nil {
		return nil, domain.StorageError(err)
	}

	entry := &domain.FundLedgerEntry{}
	insert := `
        INSERT INTO loyalty_fund_ledger (amount, balance_after, note)
        VALUES ($1, $2, $3)
        RETURNING id, order_id, amount, balance_after, note, created_at`
	err = tx.QueryRow(ctx, insert, amount, after, note).Scan(
		&entry.ID,
		&entry.OrderID,
		&entry.Amount,
		&entry.BalanceAfter,
		&entry.Note,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, domain.StorageError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.StorageError(err)
	}
	return entry, nil
}
