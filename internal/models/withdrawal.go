package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Withdrawal status state machine:
// pending -> approved -> processing -> completed
// pending -> rejected | cancelled
// approved -> rejected
const (
	WithdrawalPending    = "pending"
	WithdrawalApproved   = "approved"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalRejected   = "rejected"
	WithdrawalCancelled  = "cancelled"
	WithdrawalFailed     = "failed"
)

// Payment method types supported for outbound payouts.
const (
	MethodBankTransfer  = "bank_transfer"
	MethodPaypal        = "paypal"
	MethodWise          = "wise"
	MethodCryptoUSDT    = "crypto_usdt"
	MethodCryptoUSDC    = "crypto_usdc"
	MethodUPI           = "upi"
)

// BankDetails is the payout target for bank_transfer.
type BankDetails struct {
	AccountHolderName string  `json:"account_holder_name"`
	BankName          string  `json:"bank_name"`
	AccountNumber     string  `json:"account_number"`
	SwiftCode         *string `json:"swift_code,omitempty"`
	IBAN              *string `json:"iban,omitempty"`
	IFSCCode          *string `json:"ifsc_code,omitempty"`
	BankCountry       string  `json:"bank_country"`
}

// DigitalWalletDetails is the payout target for paypal/wise style methods.
type DigitalWalletDetails struct {
	AccountHolderName string  `json:"account_holder_name"`
	Email             *string `json:"email,omitempty"`
	AccountID         *string `json:"account_id,omitempty"`
}

// CryptoWalletDetails is the payout target for on-chain methods.
type CryptoWalletDetails struct {
	Currency      string  `json:"currency"`
	Network       string  `json:"network"`
	WalletAddress string  `json:"wallet_address"`
	MemoTag       *string `json:"memo_tag,omitempty"`
}

// UPIDetails is the payout target for India UPI.
type UPIDetails struct {
	UPIID             string `json:"upi_id"`
	AccountHolderName string `json:"account_holder_name"`
}

// PaymentDetails is a tagged union keyed by MethodType; exactly one of
// the detail structs must be set, matching the method. Validated at the
// API boundary before it reaches the ledger.
type PaymentDetails struct {
	MethodType    string                `json:"method_type"`
	Currency      string                `json:"currency"`
	Country       string                `json:"country"`
	Bank          *BankDetails          `json:"bank_details,omitempty"`
	DigitalWallet *DigitalWalletDetails `json:"digital_wallet,omitempty"`
	CryptoWallet  *CryptoWalletDetails  `json:"crypto_wallet,omitempty"`
	UPI           *UPIDetails           `json:"upi_details,omitempty"`
}

// WithdrawalFees is the fee breakdown captured at request time so later
// config changes cannot alter an accepted quote.
type WithdrawalFees struct {
	WithdrawalAmount      decimal.Decimal `json:"withdrawal_amount"`
	PlatformFeePercentage decimal.Decimal `json:"platform_fee_percentage"`
	PlatformFeeFixed      decimal.Decimal `json:"platform_fee_fixed"`
	PlatformFeeTotal      decimal.Decimal `json:"platform_fee_total"`
	MethodFee             decimal.Decimal `json:"method_fee"`
	TotalFees             decimal.Decimal `json:"total_fees"`
	NetAmount             decimal.Decimal `json:"net_amount"`
	Currency              string          `json:"currency"`
}

// Withdrawal is one outbound payout request.
type Withdrawal struct {
	ID                   uuid.UUID       `json:"id"`
	WithdrawalID         string          `json:"withdrawal_id"`
	UserID               uuid.UUID       `json:"user_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	Fees                 WithdrawalFees  `json:"fees"`
	MethodID             string          `json:"method_id"`
	PaymentDetails       PaymentDetails  `json:"payment_details"`
	Status               string          `json:"status"`
	ReviewedBy           *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time      `json:"reviewed_at,omitempty"`
	RejectionReason      *string         `json:"rejection_reason,omitempty"`
	TransactionReference *string         `json:"transaction_reference,omitempty"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	UserNotes            *string         `json:"user_notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// NewWithdrawalID returns a public withdrawal id of the form WD_<hex12>.
func NewWithdrawalID() string {
	return "WD_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// NonTerminalWithdrawalStatuses are the statuses that count against
// daily/monthly limits and the cooldown window (completed counts too:
// the money left).
var NonTerminalWithdrawalStatuses = []string{
	WithdrawalPending, WithdrawalApproved, WithdrawalProcessing, WithdrawalCompleted,
}
