package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction type enums.
const (
	TxnCredit = "credit"
	TxnDebit  = "debit"
	TxnRefund = "refund"
	TxnLock   = "lock"
	TxnUnlock = "unlock"
)

// Transaction status enums. A completed transaction is immutable.
const (
	TxnPending   = "pending"
	TxnCompleted = "completed"
	TxnFailed    = "failed"
	TxnReversed  = "reversed"
)

// Transaction categories (business reason for the movement).
const (
	CategoryTopup         = "topup"
	CategoryContestEntry  = "contest_entry"
	CategoryContestCreate = "contest_create"
	CategoryContestPrize  = "contest_prize"
	CategoryWithdrawal    = "withdrawal"
	CategoryBonus         = "bonus"
	CategoryRefund        = "refund"
	CategoryAdminCredit   = "admin_credit"
	CategoryAdminDebit    = "admin_debit"
)

// Transaction is one immutable ledger entry. balance_before/balance_after
// record the wallet balance around the mutation; for lock/unlock entries
// the balance itself does not move, only locked_balance does.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	UserID         uuid.UUID       `json:"user_id"`
	WalletID       uuid.UUID       `json:"wallet_id"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	ReferenceType  *string         `json:"reference_type,omitempty"`
	ReferenceID    *string         `json:"reference_id,omitempty"`
	Gateway        *string         `json:"gateway,omitempty"`
	GatewayOrderID *string         `json:"gateway_order_id,omitempty"`
	Description    string          `json:"description"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// NewTransactionID returns a public ledger id of the form TXN_<hex16>.
func NewTransactionID() string {
	return "TXN_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
