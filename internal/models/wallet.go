package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet status values.
const (
	WalletActive    = "active"
	WalletFrozen    = "frozen"
	WalletSuspended = "suspended"
)

// Wallet holds a user's credit balance. locked_balance is reserved for
// not-yet-settled commitments (prize pools, withdrawals) and must never
// exceed balance.
type Wallet struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	TotalCredited decimal.Decimal `json:"total_credited"`
	TotalDebited  decimal.Decimal `json:"total_debited"`
	FrozenReason  *string         `json:"frozen_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Available is the spendable portion of the balance.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.LockedBalance)
}
