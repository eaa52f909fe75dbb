package models

import "github.com/shopspring/decimal"

// Fee types shared by contest-creation and withdrawal fee rules.
const (
	FeeFixed      = "fixed"
	FeePercentage = "percentage"
	FeeMixed      = "mixed"
)

// Config document ids in the app_configs table.
const (
	ConfigIDContestFees = "contest_fees"
	ConfigIDWithdrawals = "withdrawals"
)

// FeeConfig is the dynamic contest-creation configuration. Admin-editable
// at runtime; engines read it through a TTL-cached provider.
type FeeConfig struct {
	CreationFeeType       string          `json:"creation_fee_type"`
	CreationFeePercentage decimal.Decimal `json:"creation_fee_percentage"`
	CreationFeeFixed      decimal.Decimal `json:"creation_fee_fixed"`
	CreationFeeMin        decimal.Decimal `json:"creation_fee_min"`
	CreationFeeMax        decimal.Decimal `json:"creation_fee_max"`

	MinPrizePool decimal.Decimal `json:"min_prize_pool"`
	MaxPrizePool decimal.Decimal `json:"max_prize_pool"`

	MaxActiveContestsPerUser int `json:"max_active_contests_per_user"`
	MaxParticipantsLimit     int `json:"max_participants_limit"`
	MinParticipants          int `json:"min_participants"`

	RefundOnCancel   bool            `json:"refund_on_cancel"`
	RefundPercentage decimal.Decimal `json:"refund_percentage"`

	ContestCreationEnabled bool   `json:"contest_creation_enabled"`
	MaintenanceMode        bool   `json:"maintenance_mode"`
	MaintenanceMessage     string `json:"maintenance_message"`
}

// DefaultFeeConfig seeds the config document on first read.
func DefaultFeeConfig() *FeeConfig {
	return &FeeConfig{
		CreationFeeType:          FeePercentage,
		CreationFeePercentage:    decimal.NewFromInt(5),
		CreationFeeFixed:         decimal.Zero,
		CreationFeeMin:           decimal.NewFromInt(10),
		CreationFeeMax:           decimal.NewFromInt(1000),
		MinPrizePool:             decimal.NewFromInt(100),
		MaxPrizePool:             decimal.NewFromInt(1000000),
		MaxActiveContestsPerUser: 5,
		MaxParticipantsLimit:     10000,
		MinParticipants:          2,
		RefundOnCancel:           true,
		RefundPercentage:         decimal.NewFromInt(95),
		ContestCreationEnabled:   true,
	}
}

// WithdrawalConfig is the dynamic global withdrawal configuration.
type WithdrawalConfig struct {
	MinWithdrawalAmount    decimal.Decimal `json:"min_withdrawal_amount"`
	MaxWithdrawalAmount    decimal.Decimal `json:"max_withdrawal_amount"`
	DailyWithdrawalLimit   decimal.Decimal `json:"daily_withdrawal_limit"`
	MonthlyWithdrawalLimit decimal.Decimal `json:"monthly_withdrawal_limit"`
	MaxPendingRequests     int             `json:"max_pending_requests"`

	PlatformFeePercentage decimal.Decimal `json:"platform_fee_percentage"`
	PlatformFeeFixed      decimal.Decimal `json:"platform_fee_fixed"`
	PlatformFeeMin        decimal.Decimal `json:"platform_fee_min"`
	PlatformFeeMax        decimal.Decimal `json:"platform_fee_max"`

	// Static credit-to-currency lookup rates; not an FX engine.
	ExchangeRates map[string]decimal.Decimal `json:"exchange_rates"`

	CooldownHours      int  `json:"cooldown_hours"`
	WithdrawalsEnabled bool `json:"withdrawals_enabled"`
	MaintenanceMode    bool `json:"maintenance_mode"`

	SupportedCurrencies []string `json:"supported_currencies"`
	DefaultCurrency     string   `json:"default_currency"`
	MaintenanceMessage  string   `json:"maintenance_message"`
}

// DefaultWithdrawalConfig seeds the config document on first read.
func DefaultWithdrawalConfig() *WithdrawalConfig {
	return &WithdrawalConfig{
		MinWithdrawalAmount:    decimal.NewFromInt(100),
		MaxWithdrawalAmount:    decimal.NewFromInt(100000),
		DailyWithdrawalLimit:   decimal.NewFromInt(50000),
		MonthlyWithdrawalLimit: decimal.NewFromInt(500000),
		MaxPendingRequests:     3,
		PlatformFeePercentage:  decimal.NewFromInt(5),
		PlatformFeeFixed:       decimal.Zero,
		PlatformFeeMin:         decimal.NewFromInt(10),
		PlatformFeeMax:         decimal.NewFromInt(500),
		ExchangeRates: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1),
			"INR": decimal.NewFromInt(83),
			"EUR": decimal.RequireFromString("0.92"),
			"GBP": decimal.RequireFromString("0.79"),
		},
		CooldownHours:       24,
		WithdrawalsEnabled:  true,
		SupportedCurrencies: []string{"USD", "EUR", "GBP", "INR", "USDT", "USDC"},
		DefaultCurrency:     "USD",
	}
}

// WithdrawalMethod is one configured payout rail with its own fee rule
// and limits.
type WithdrawalMethod struct {
	MethodID            string          `json:"method_id"`
	Name                string          `json:"name"`
	IsActive            bool            `json:"is_active"`
	SupportedCurrencies []string        `json:"supported_currencies"`
	FeeType             string          `json:"fee_type"`
	FeeFixed            decimal.Decimal `json:"fee_fixed"`
	FeePercentage       decimal.Decimal `json:"fee_percentage"`
	FeeMin              decimal.Decimal `json:"fee_min"`
	FeeMax              decimal.Decimal `json:"fee_max"`
	MinAmount           decimal.Decimal `json:"min_amount"`
	MaxAmount           decimal.Decimal `json:"max_amount"`
	ProcessingDays      int             `json:"processing_days"`
	SortOrder           int             `json:"sort_order"`
}
