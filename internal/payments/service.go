package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
	"github.com/contestforge/backend/internal/wallet"
)

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrOrderNotFound    = errors.New("payment order not found")
	ErrInvalidOrder     = errors.New("invalid order request")
)

// OrderStore is the minimal payment order repository interface.
type OrderStore interface {
	Create(ctx context.Context, o *models.PaymentOrder) error
	Get(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	MarkWebhook(ctx context.Context, orderID, status string, gatewayOrderID *string) (bool, error)
	MarkCredited(ctx context.Context, orderID string) error
}

// Ledger is the slice of the wallet service top-ups need.
type Ledger interface {
	Credit(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
}

// Service tracks wallet top-up orders against the payment gateway. The
// webhook is the only path that turns gateway money into credits, and
// the CREDIT_<order_id> idempotency key means a redelivered webhook can
// never credit twice.
type Service struct {
	Orders        OrderStore
	Wallet        Ledger
	Logger        *slog.Logger
	Gateway       string
	WebhookSecret []byte
}

func NewService(orders OrderStore, ledger Ledger, logger *slog.Logger, gateway string, webhookSecret []byte) *Service {
	return &Service{Orders: orders, Wallet: ledger, Logger: logger, Gateway: gateway, WebhookSecret: webhookSecret}
}

// CreateOrder registers an intent to buy credits. 1 credit = 1 unit of
// currency until the gateway quote says otherwise.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, credits decimal.Decimal, currency string) (*models.PaymentOrder, error) {
	if !credits.IsPositive() {
		return nil, ErrInvalidOrder
	}
	if currency == "" {
		currency = "USD"
	}
	order := &models.PaymentOrder{
		ID:       uuid.New(),
		OrderID:  models.NewOrderID(),
		UserID:   userID,
		Credits:  credits,
		Amount:   credits,
		Currency: currency,
		Gateway:  s.Gateway,
		Status:   models.OrderCreated,
	}
	if err := s.Orders.Create(ctx, order); err != nil {
		return nil, err
	}
	s.Logger.Info("payment order created", "order_id", order.OrderID, "user_id", userID, "credits", credits)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	order, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// WebhookEvent is the gateway's payment notification payload.
type WebhookEvent struct {
	OrderID        string  `json:"order_id"`
	Status         string  `json:"status"`
	GatewayOrderID *string `json:"gateway_order_id,omitempty"`
}

// VerifySignature checks the base64 HMAC-SHA256 of the raw body.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.WebhookSecret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// ProcessWebhook verifies, records, and settles one gateway webhook.
// Redeliveries are safe end to end: the order status flip is a CAS and
// the wallet credit is idempotent on CREDIT_<order_id>.
func (s *Service) ProcessWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.VerifySignature(body, signature) {
		return ErrInvalidSignature
	}
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decoding webhook payload: %w", err)
	}

	order, err := s.Orders.Get(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}

	paid := event.Status == "PAID"
	status := models.OrderFailed
	if paid {
		status = models.OrderPaid
	}
	flipped, err := s.Orders.MarkWebhook(ctx, event.OrderID, status, event.GatewayOrderID)
	if err != nil {
		return err
	}
	if !flipped {
		s.Logger.Info("duplicate webhook ignored", "order_id", event.OrderID, "status", event.Status)
	}
	if !paid {
		s.Logger.Warn("payment failed", "order_id", event.OrderID)
		return nil
	}

	orderRef := "payment_order"
	key := "CREDIT_" + order.OrderID
	if _, err := s.Wallet.Credit(ctx, wallet.EntryInput{
		UserID:         order.UserID,
		Amount:         order.Credits,
		Category:       models.CategoryTopup,
		Description:    fmt.Sprintf("Wallet top-up via %s", order.Gateway),
		ReferenceType:  &orderRef,
		ReferenceID:    &order.OrderID,
		Gateway:        &order.Gateway,
		GatewayOrderID: event.GatewayOrderID,
		IdempotencyKey: &key,
	}); err != nil {
		return fmt.Errorf("crediting top-up: %w", err)
	}
	if err := s.Orders.MarkCredited(ctx, order.OrderID); err != nil {
		return err
	}
	s.Logger.Info("top-up credited", "order_id", order.OrderID, "user_id", order.UserID, "credits", order.Credits)
	return nil
}
