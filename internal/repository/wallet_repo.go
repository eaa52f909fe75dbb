package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
)

const walletColumns = `id, user_id, balance, locked_balance, currency, status, total_credited, total_debited, frozen_reason, created_at, updated_at`

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.LockedBalance, &w.Currency, &w.Status,
		&w.TotalCredited, &w.TotalDebited, &w.FrozenReason, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetOrCreate fetches the user's wallet, creating an empty active one on
// first access. The upsert makes concurrent first accesses safe.
func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance, locked_balance, currency, status, total_credited, total_debited)
		VALUES ($1, $2, 0, 0, 'credits', 'active', 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING `+walletColumns, uuid.New(), userID)
	return scanWallet(row)
}

func (r *WalletRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	w, err := scanWallet(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// CreditTx adds amount to balance if the wallet is active. Returns the
// new balance; rowsAffected=false means the status guard failed.
// Guard-check and mutation are one statement so concurrent writers can
// never interleave between them.
func (r *WalletRepo) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	var after decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance + $1, total_credited = total_credited + $1, updated_at = now()
		WHERE user_id = $2 AND status = 'active'
		RETURNING balance
	`, amount, userID).Scan(&after)
	if err == pgx.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return after, true, nil
}

// DebitTx subtracts amount from balance only while the available balance
// (balance - locked_balance) still covers it.
func (r *WalletRepo) DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	var after decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance - $1, total_debited = total_debited + $1, updated_at = now()
		WHERE user_id = $2 AND status = 'active' AND balance - locked_balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&after)
	if err == pgx.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return after, true, nil
}

// LockTx reserves amount out of the available balance.
func (r *WalletRepo) LockTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET locked_balance = locked_balance + $1, updated_at = now()
		WHERE user_id = $2 AND status = 'active' AND balance - locked_balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}

// UnlockTx releases a previous reservation; guarded so locked_balance can
// never go negative.
func (r *WalletRepo) UnlockTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET locked_balance = locked_balance - $1, updated_at = now()
		WHERE user_id = $2 AND locked_balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}

// SetStatus is the admin freeze/unfreeze path.
func (r *WalletRepo) SetStatus(ctx context.Context, userID uuid.UUID, status string, reason *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE wallets SET status = $2, frozen_reason = $3, updated_at = now() WHERE user_id = $1
	`, userID, status, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
