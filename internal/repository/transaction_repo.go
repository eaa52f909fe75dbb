package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contestforge/backend/internal/models"
)

const transactionColumns = `id, transaction_id, user_id, wallet_id, type, category, amount, balance_before, balance_after,
	currency, status, reference_type, reference_id, gateway, gateway_order_id, description, idempotency_key, created_at, completed_at`

// TransactionRepo is the append-only ledger. Rows are never updated once
// completed; the partial unique index on idempotency_key is what makes
// replay detection O(1).
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.TransactionID, &t.UserID, &t.WalletID, &t.Type, &t.Category, &t.Amount,
		&t.BalanceBefore, &t.BalanceAfter, &t.Currency, &t.Status, &t.ReferenceType, &t.ReferenceID,
		&t.Gateway, &t.GatewayOrderID, &t.Description, &t.IdempotencyKey, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx appends a ledger entry inside the caller's transaction so the
// balance mutation and its audit row commit or roll back together.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, transaction_id, user_id, wallet_id, type, category, amount,
			balance_before, balance_after, currency, status, reference_type, reference_id,
			gateway, gateway_order_id, description, idempotency_key, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at
	`, t.ID, t.TransactionID, t.UserID, t.WalletID, t.Type, t.Category, t.Amount,
		t.BalanceBefore, t.BalanceAfter, t.Currency, t.Status, t.ReferenceType, t.ReferenceID,
		t.Gateway, t.GatewayOrderID, t.Description, t.IdempotencyKey, t.CompletedAt).Scan(&t.CreatedAt)
}

// GetByIdempotencyKey returns the completed transaction recorded under
// key, or nil when the key has never completed.
func (r *TransactionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions WHERE idempotency_key = $1 AND status = 'completed'
	`, key)
	t, err := scanTransaction(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListByUser returns a page of the user's ledger, newest first. Empty
// category/txnType mean no filter.
func (r *TransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, category, txnType string, limit, offset int) ([]*models.Transaction, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM wallet_transactions
		WHERE user_id = $1 AND ($2 = '' OR category = $2) AND ($3 = '' OR type = $3)
	`, userID, category, txnType).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE user_id = $1 AND ($2 = '' OR category = $2) AND ($3 = '' OR type = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, userID, category, txnType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, t)
	}
	return list, total, rows.Err()
}
