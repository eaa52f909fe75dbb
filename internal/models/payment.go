package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment order status values. The order is created before the user is
// redirected to the gateway; the webhook moves it to paid/failed and a
// paid order is credited exactly once.
const (
	OrderCreated  = "created"
	OrderPaid     = "paid"
	OrderFailed   = "failed"
	OrderCredited = "credited"
)

// PaymentOrder is a wallet top-up order tracked against the gateway.
type PaymentOrder struct {
	ID                uuid.UUID       `json:"id"`
	OrderID           string          `json:"order_id"`
	UserID            uuid.UUID       `json:"user_id"`
	Credits           decimal.Decimal `json:"credits"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Gateway           string          `json:"gateway"`
	GatewayOrderID    *string         `json:"gateway_order_id,omitempty"`
	Status            string          `json:"status"`
	WebhookReceivedAt *time.Time      `json:"webhook_received_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewOrderID returns a public order id of the form ORD_<hex16>.
func NewOrderID() string {
	return "ORD_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
