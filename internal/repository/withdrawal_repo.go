package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
)

const withdrawalColumns = `id, withdrawal_id, user_id, amount, currency, exchange_rate, fees, method_id,
	payment_details, status, reviewed_by, reviewed_at, rejection_reason, transaction_reference,
	processed_at, completed_at, user_notes, created_at, updated_at`

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := row.Scan(&w.ID, &w.WithdrawalID, &w.UserID, &w.Amount, &w.Currency, &w.ExchangeRate,
		&w.Fees, &w.MethodID, &w.PaymentDetails, &w.Status, &w.ReviewedBy, &w.ReviewedAt,
		&w.RejectionReason, &w.TransactionReference, &w.ProcessedAt, &w.CompletedAt,
		&w.UserNotes, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *models.Withdrawal) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO withdrawals (id, withdrawal_id, user_id, amount, currency, exchange_rate, fees,
			method_id, payment_details, status, user_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, w.ID, w.WithdrawalID, w.UserID, w.Amount, w.Currency, w.ExchangeRate, w.Fees,
		w.MethodID, w.PaymentDetails, w.Status, w.UserNotes).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *WithdrawalRepo) Get(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals WHERE withdrawal_id = $1
	`, withdrawalID)
	w, err := scanWithdrawal(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

func (r *WithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Withdrawal, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM withdrawals WHERE user_id = $1 AND ($2 = '' OR status = $2)
	`, userID, status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list, err := collectWithdrawals(rows)
	return list, total, err
}

func (r *WithdrawalRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Withdrawal, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM withdrawals WHERE ($1 = '' OR status = $1)
	`, status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list, err := collectWithdrawals(rows)
	return list, total, err
}

func collectWithdrawals(rows pgx.Rows) ([]*models.Withdrawal, error) {
	var list []*models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// WithdrawalUpdate carries the optional columns a transition may set.
type WithdrawalUpdate struct {
	ReviewedBy           *uuid.UUID
	ReviewedAt           *time.Time
	RejectionReason      *string
	TransactionReference *string
	ProcessedAt          *time.Time
	CompletedAt          *time.Time
}

// TransitionStatus moves a withdrawal along the state machine only when
// it is still in from, so a double click or a racing admin is a no-op.
func (r *WithdrawalRepo) TransitionStatus(ctx context.Context, withdrawalID, from, to string, u WithdrawalUpdate) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawals
		SET status = $3,
		    reviewed_by = COALESCE($4, reviewed_by),
		    reviewed_at = COALESCE($5, reviewed_at),
		    rejection_reason = COALESCE($6, rejection_reason),
		    transaction_reference = COALESCE($7, transaction_reference),
		    processed_at = COALESCE($8, processed_at),
		    completed_at = COALESCE($9, completed_at),
		    updated_at = now()
		WHERE withdrawal_id = $1 AND status = $2
	`, withdrawalID, from, to, u.ReviewedBy, u.ReviewedAt, u.RejectionReason,
		u.TransactionReference, u.ProcessedAt, u.CompletedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TotalSince sums requested amounts in the given statuses created at or
// after start. Feeds the daily/monthly limit checks.
func (r *WithdrawalRepo) TotalSince(ctx context.Context, userID uuid.UUID, start time.Time, statuses []string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(amount), 0) FROM withdrawals
		WHERE user_id = $1 AND created_at >= $2 AND status = ANY($3)
	`, userID, start, statuses).Scan(&total)
	return total, err
}

func (r *WithdrawalRepo) CountPending(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM withdrawals WHERE user_id = $1 AND status = 'pending'
	`, userID).Scan(&n)
	return n, err
}

// LastRequestAt returns the creation time of the user's most recent
// request in the counted statuses, or nil. Feeds the cooldown check.
func (r *WithdrawalRepo) LastRequestAt(ctx context.Context, userID uuid.UUID, statuses []string) (*time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT created_at FROM withdrawals
		WHERE user_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1
	`, userID, statuses).Scan(&at)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}
