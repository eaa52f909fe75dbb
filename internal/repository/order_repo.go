package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contestforge/backend/internal/models"
)

const orderColumns = `id, order_id, user_id, credits, amount, currency, gateway, gateway_order_id,
	status, webhook_received_at, created_at, updated_at`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func scanOrder(row pgx.Row) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	err := row.Scan(&o.ID, &o.OrderID, &o.UserID, &o.Credits, &o.Amount, &o.Currency, &o.Gateway,
		&o.GatewayOrderID, &o.Status, &o.WebhookReceivedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) Create(ctx context.Context, o *models.PaymentOrder) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payment_orders (id, order_id, user_id, credits, amount, currency, gateway, gateway_order_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, o.ID, o.OrderID, o.UserID, o.Credits, o.Amount, o.Currency, o.Gateway, o.GatewayOrderID, o.Status).
		Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *OrderRepo) Get(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE order_id = $1`, orderID)
	o, err := scanOrder(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// MarkWebhook records the gateway verdict only once. False means the
// order was not in created state anymore (duplicate webhook).
func (r *OrderRepo) MarkWebhook(ctx context.Context, orderID, status string, gatewayOrderID *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_orders
		SET status = $2, gateway_order_id = COALESCE($3, gateway_order_id),
		    webhook_received_at = now(), updated_at = now()
		WHERE order_id = $1 AND status = 'created'
	`, orderID, status, gatewayOrderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCredited finalizes a paid order after the wallet credit landed.
func (r *OrderRepo) MarkCredited(ctx context.Context, orderID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payment_orders SET status = 'credited', updated_at = now()
		WHERE order_id = $1 AND status = 'paid'
	`, orderID)
	return err
}
