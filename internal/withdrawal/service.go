package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
	"github.com/contestforge/backend/internal/repository"
	"github.com/contestforge/backend/internal/wallet"
)

var (
	ErrDisabled              = errors.New("withdrawals are currently disabled")
	ErrMaintenance           = errors.New("withdrawals are in maintenance mode")
	ErrAmountOutOfRange      = errors.New("amount outside the allowed withdrawal range")
	ErrDailyLimitExceeded    = errors.New("daily withdrawal limit exceeded")
	ErrMonthlyLimitExceeded  = errors.New("monthly withdrawal limit exceeded")
	ErrTooManyPending        = errors.New("too many pending withdrawal requests")
	ErrCooldownActive        = errors.New("withdrawal cooldown period has not elapsed")
	ErrMethodUnavailable     = errors.New("withdrawal method unavailable")
	ErrCurrencyNotSupported  = errors.New("currency not supported by this method")
	ErrInvalidPaymentDetails = errors.New("payment details do not match the method type")
	ErrNotFound              = errors.New("withdrawal not found")
	ErrInvalidTransition     = errors.New("withdrawal is not in the required state")
)

// Store is the withdrawal repository interface for the service.
type Store interface {
	Create(ctx context.Context, w *models.Withdrawal) error
	Get(ctx context.Context, withdrawalID string) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Withdrawal, int, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.Withdrawal, int, error)
	TransitionStatus(ctx context.Context, withdrawalID, from, to string, u repository.WithdrawalUpdate) (bool, error)
	TotalSince(ctx context.Context, userID uuid.UUID, start time.Time, statuses []string) (decimal.Decimal, error)
	CountPending(ctx context.Context, userID uuid.UUID) (int, error)
	LastRequestAt(ctx context.Context, userID uuid.UUID, statuses []string) (*time.Time, error)
}

// WalletReader reads wallets for the balance and status prechecks.
type WalletReader interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// Ledger is the slice of the wallet service withdrawals need.
type Ledger interface {
	Debit(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	LockFunds(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	UnlockFunds(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
}

// Service runs the withdrawal state machine. Requested funds are locked
// at request time so the user cannot spend them while an admin reviews,
// and only debited when the payout actually completes.
type Service struct {
	Config      *Provider
	Store       Store
	Wallets     WalletReader
	Wallet      Ledger
	Logger      *slog.Logger

	now func() time.Time
}

func NewService(config *Provider, store Store, wallets WalletReader, ledger Ledger, logger *slog.Logger) *Service {
	return &Service{Config: config, Store: store, Wallets: wallets, Wallet: ledger, Logger: logger, now: time.Now}
}

// CreateInput is one withdrawal request.
type CreateInput struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	MethodID       string
	PaymentDetails models.PaymentDetails
	UserNotes      *string
}

// CalculateFees prices a withdrawal: the platform fee (clamped) plus the
// method's own fee, quoted in credits.
func CalculateFees(cfg *models.WithdrawalConfig, method *models.WithdrawalMethod, amount decimal.Decimal, currency string) models.WithdrawalFees {
	platformFee := cfg.PlatformFeeFixed.Add(amount.Mul(cfg.PlatformFeePercentage).Div(decimal.NewFromInt(100))).Round(2)
	if platformFee.LessThan(cfg.PlatformFeeMin) {
		platformFee = cfg.PlatformFeeMin
	}
	if platformFee.GreaterThan(cfg.PlatformFeeMax) {
		platformFee = cfg.PlatformFeeMax
	}

	methodFee := feeFor(method, amount)
	total := platformFee.Add(methodFee)
	return models.WithdrawalFees{
		WithdrawalAmount:      amount,
		PlatformFeePercentage: cfg.PlatformFeePercentage,
		PlatformFeeFixed:      cfg.PlatformFeeFixed,
		PlatformFeeTotal:      platformFee,
		MethodFee:             methodFee,
		TotalFees:             total,
		NetAmount:             amount.Sub(total),
		Currency:              currency,
	}
}

func feeFor(method *models.WithdrawalMethod, amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch method.FeeType {
	case models.FeeFixed:
		fee = method.FeeFixed
	case models.FeePercentage:
		fee = amount.Mul(method.FeePercentage).Div(decimal.NewFromInt(100))
	case models.FeeMixed:
		fee = method.FeeFixed.Add(amount.Mul(method.FeePercentage).Div(decimal.NewFromInt(100)))
	}
	fee = fee.Round(2)
	if fee.LessThan(method.FeeMin) {
		fee = method.FeeMin
	}
	if method.FeeMax.IsPositive() && fee.GreaterThan(method.FeeMax) {
		fee = method.FeeMax
	}
	return fee
}

// validateDetails checks that exactly the detail block matching the
// method type is present and filled.
func validateDetails(d models.PaymentDetails) error {
	switch d.MethodType {
	case models.MethodBankTransfer:
		if d.Bank == nil || d.Bank.AccountHolderName == "" || d.Bank.AccountNumber == "" || d.Bank.BankName == "" {
			return ErrInvalidPaymentDetails
		}
	case models.MethodPaypal, models.MethodWise:
		if d.DigitalWallet == nil || d.DigitalWallet.AccountHolderName == "" ||
			(d.DigitalWallet.Email == nil && d.DigitalWallet.AccountID == nil) {
			return ErrInvalidPaymentDetails
		}
	case models.MethodCryptoUSDT, models.MethodCryptoUSDC:
		if d.CryptoWallet == nil || d.CryptoWallet.WalletAddress == "" || d.CryptoWallet.Network == "" {
			return ErrInvalidPaymentDetails
		}
	case models.MethodUPI:
		if d.UPI == nil || d.UPI.UPIID == "" {
			return ErrInvalidPaymentDetails
		}
	default:
		return ErrInvalidPaymentDetails
	}
	return nil
}

// CreateRequest validates every limit, locks the requested amount, and
// records a pending withdrawal for admin review. The captured fee quote
// is frozen on the row so later config changes cannot alter it.
func (s *Service) CreateRequest(ctx context.Context, in CreateInput) (*models.Withdrawal, error) {
	cfg, err := s.Config.Config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.MaintenanceMode {
		return nil, ErrMaintenance
	}
	if !cfg.WithdrawalsEnabled {
		return nil, ErrDisabled
	}
	if !in.Amount.IsPositive() {
		return nil, wallet.ErrInvalidAmount
	}
	if in.Amount.LessThan(cfg.MinWithdrawalAmount) || in.Amount.GreaterThan(cfg.MaxWithdrawalAmount) {
		return nil, ErrAmountOutOfRange
	}

	method, err := s.Config.store.GetWithdrawalMethod(ctx, in.MethodID)
	if err != nil {
		return nil, err
	}
	if method == nil || !method.IsActive {
		return nil, ErrMethodUnavailable
	}
	if in.Amount.LessThan(method.MinAmount) || (method.MaxAmount.IsPositive() && in.Amount.GreaterThan(method.MaxAmount)) {
		return nil, ErrAmountOutOfRange
	}
	if in.Currency == "" {
		in.Currency = cfg.DefaultCurrency
	}
	if !contains(method.SupportedCurrencies, in.Currency) {
		return nil, ErrCurrencyNotSupported
	}
	if in.PaymentDetails.MethodType == "" {
		in.PaymentDetails.MethodType = in.MethodID
	}
	if err := validateDetails(in.PaymentDetails); err != nil {
		return nil, err
	}

	if err := s.checkLimits(ctx, in.UserID, in.Amount, cfg); err != nil {
		return nil, err
	}

	w, err := s.Wallets.GetOrCreate(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if w.Status != models.WalletActive {
		return nil, wallet.ErrWalletNotActive
	}
	if w.Available().LessThan(in.Amount) {
		return nil, wallet.ErrInsufficientBalance
	}

	rate, ok := cfg.ExchangeRates[in.Currency]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	fees := CalculateFees(cfg, method, in.Amount, in.Currency)

	wd := &models.Withdrawal{
		ID:             uuid.New(),
		CreatedAt:      s.now().UTC(),
		WithdrawalID:   models.NewWithdrawalID(),
		UserID:         in.UserID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		ExchangeRate:   rate,
		Fees:           fees,
		MethodID:       in.MethodID,
		PaymentDetails: in.PaymentDetails,
		Status:         models.WithdrawalPending,
		UserNotes:      in.UserNotes,
	}

	withdrawalRef := "withdrawal"
	lockKey := "WITHDRAWAL_LOCK_" + wd.WithdrawalID
	if _, err := s.Wallet.LockFunds(ctx, wallet.EntryInput{
		UserID:         in.UserID,
		Amount:         in.Amount,
		Category:       models.CategoryWithdrawal,
		Description:    fmt.Sprintf("Funds reserved for withdrawal %s", wd.WithdrawalID),
		ReferenceType:  &withdrawalRef,
		ReferenceID:    &wd.WithdrawalID,
		IdempotencyKey: &lockKey,
	}); err != nil {
		return nil, err
	}

	if err := s.Store.Create(ctx, wd); err != nil {
		// The lock must not outlive a failed insert.
		s.compensateUnlock(ctx, in.UserID, in.Amount, wd.WithdrawalID)
		return nil, err
	}
	s.Logger.Info("withdrawal requested", "withdrawal_id", wd.WithdrawalID,
		"user_id", in.UserID, "amount", in.Amount, "method", in.MethodID)
	return wd, nil
}

func (s *Service) checkLimits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, cfg *models.WithdrawalConfig) error {
	pending, err := s.Store.CountPending(ctx, userID)
	if err != nil {
		return err
	}
	if pending >= cfg.MaxPendingRequests {
		return ErrTooManyPending
	}

	if cfg.CooldownHours > 0 {
		last, err := s.Store.LastRequestAt(ctx, userID, models.NonTerminalWithdrawalStatuses)
		if err != nil {
			return err
		}
		if last != nil && s.now().Sub(*last) < time.Duration(cfg.CooldownHours)*time.Hour {
			return ErrCooldownActive
		}
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	daily, err := s.Store.TotalSince(ctx, userID, dayStart, models.NonTerminalWithdrawalStatuses)
	if err != nil {
		return err
	}
	if daily.Add(amount).GreaterThan(cfg.DailyWithdrawalLimit) {
		return ErrDailyLimitExceeded
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthly, err := s.Store.TotalSince(ctx, userID, monthStart, models.NonTerminalWithdrawalStatuses)
	if err != nil {
		return err
	}
	if monthly.Add(amount).GreaterThan(cfg.MonthlyWithdrawalLimit) {
		return ErrMonthlyLimitExceeded
	}
	return nil
}

// Cancel lets the requester withdraw a still-pending request and get the
// locked funds back.
func (s *Service) Cancel(ctx context.Context, withdrawalID string, userID uuid.UUID) error {
	wd, err := s.Store.Get(ctx, withdrawalID)
	if err != nil {
		return err
	}
	if wd == nil || wd.UserID != userID {
		return ErrNotFound
	}
	moved, err := s.Store.TransitionStatus(ctx, withdrawalID, models.WithdrawalPending, models.WithdrawalCancelled, repository.WithdrawalUpdate{})
	if err != nil {
		return err
	}
	if !moved {
		return ErrInvalidTransition
	}
	return s.unlock(ctx, wd, "WITHDRAWAL_CANCEL_"+withdrawalID, "Withdrawal cancelled by user")
}

// Approve moves pending to approved. Admin only; wired behind the admin
// guard at the router.
func (s *Service) Approve(ctx context.Context, withdrawalID string, adminID uuid.UUID) error {
	at := s.now().UTC()
	moved, err := s.Store.TransitionStatus(ctx, withdrawalID, models.WithdrawalPending, models.WithdrawalApproved,
		repository.WithdrawalUpdate{ReviewedBy: &adminID, ReviewedAt: &at})
	if err != nil {
		return err
	}
	if !moved {
		return ErrInvalidTransition
	}
	s.Logger.Info("withdrawal approved", "withdrawal_id", withdrawalID, "admin_id", adminID)
	return nil
}

// Reject refuses a pending or approved request and releases the locked
// funds back to the user.
func (s *Service) Reject(ctx context.Context, withdrawalID string, adminID uuid.UUID, reason string) error {
	wd, err := s.Store.Get(ctx, withdrawalID)
	if err != nil {
		return err
	}
	if wd == nil {
		return ErrNotFound
	}
	at := s.now().UTC()
	update := repository.WithdrawalUpdate{ReviewedBy: &adminID, ReviewedAt: &at, RejectionReason: &reason}
	moved, err := s.Store.TransitionStatus(ctx, withdrawalID, models.WithdrawalPending, models.WithdrawalRejected, update)
	if err != nil {
		return err
	}
	if !moved {
		moved, err = s.Store.TransitionStatus(ctx, withdrawalID, models.WithdrawalApproved, models.WithdrawalRejected, update)
		if err != nil {
			return err
		}
	}
	if !moved {
		return ErrInvalidTransition
	}
	if err := s.unlock(ctx, wd, "WITHDRAWAL_REJECT_"+withdrawalID, "Withdrawal rejected: "+reason); err != nil {
		return err
	}
	s.Logger.Info("withdrawal rejected", "withdrawal_id", withdrawalID, "reason", reason)
	return nil
}

// MarkProcessing moves approved to processing once payout execution has
// started on the payment rail.
func (s *Service) MarkProcessing(ctx context.Context, withdrawalID string) error {
	at := s.now().UTC()
	moved, err := s.Store.TransitionStatus(ctx, withdrawalID, models.WithdrawalApproved, models.WithdrawalProcessing,
		repository.WithdrawalUpdate{ProcessedAt: &at})
	if err != nil {
		return err
	}
	if !moved {
		return ErrInvalidTransition
	}
	return nil
}

// Complete settles a processing withdrawal: the locked funds are
// released and then debited for real. When the debit fails the funds
// are re-locked and the withdrawal stays in processing for another
// attempt. The debit's idempotency key makes Complete itself retryable.
func (s *Service) Complete(ctx context.Context, withdrawalID string, transactionReference string) error {
	wd, err := s.Store.Get(ctx, withdrawalID)
	if err != nil {
		return err
	}
	if wd == nil {
		return ErrNotFound
	}
	if wd.Status != models.WithdrawalProcessing {
		return ErrInvalidTransition
	}

	withdrawalRef := "withdrawal"
	unlockKey := "WITHDRAWAL_UNLOCK_" + withdrawalID
	if _, err := s.Wallet.UnlockFunds(ctx, wallet.EntryInput{
		UserID:         wd.UserID,
		Amount:         wd.Amount,
		Category:       models.CategoryWithdrawal,
		Description:    fmt.Sprintf("Release reserved funds for withdrawal %s", withdrawalID),
		ReferenceType:  &withdrawalRef,
		ReferenceID:    &withdrawalID,
		IdempotencyKey: &unlockKey,
	}); err != nil {
		return err
	}

	debitKey := "WITHDRAWAL_" + withdrawalID
	if _, err := s.Wallet.Debit(ctx, wallet.EntryInput{
		UserID:         wd.UserID,
		Amount:         wd.Amount,
		Category:       models.CategoryWithdrawal,
		Description:    fmt.Sprintf("Withdrawal %s paid out", withdrawalID),
		ReferenceType:  &withdrawalRef,
		ReferenceID:    &withdrawalID,
		IdempotencyKey: &debitKey,
	}); err != nil {
		relockKey := "WITHDRAWAL_RELOCK_" + withdrawalID
		if _, lockErr := s.Wallet.LockFunds(ctx, wallet.EntryInput{
			UserID:         wd.UserID,
			Amount:         wd.Amount,
			Category:       models.CategoryWithdrawal,
			Description:    fmt.Sprintf("Re-reserve funds for withdrawal %s after failed debit", withdrawalID),
			ReferenceType:  &withdrawalRef,
			ReferenceID:    &withdrawalID,
			IdempotencyKey: &relockKey,
		}); lockErr != nil {
			s.Logger.Error("re-locking withdrawal funds failed", "withdrawal_id", withdrawalID, "error", lockErr)
		}
		return err
	}

	at := s.now().UTC()
	moved, err := s.Store.TransitionStatus(ctx, withdrawalID, models.WithdrawalProcessing, models.WithdrawalCompleted,
		repository.WithdrawalUpdate{CompletedAt: &at, TransactionReference: &transactionReference})
	if err != nil {
		return err
	}
	if !moved {
		return ErrInvalidTransition
	}
	s.Logger.Info("withdrawal completed", "withdrawal_id", withdrawalID, "reference", transactionReference)
	return nil
}

func (s *Service) Get(ctx context.Context, withdrawalID string, userID uuid.UUID, isAdmin bool) (*models.Withdrawal, error) {
	wd, err := s.Store.Get(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if wd == nil || (!isAdmin && wd.UserID != userID) {
		return nil, ErrNotFound
	}
	return wd, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Withdrawal, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Store.ListByUser(ctx, userID, status, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, status string, limit, offset int) ([]*models.Withdrawal, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Store.ListByStatus(ctx, status, limit, offset)
}

// Methods returns the active payout rails for the user-facing picker.
func (s *Service) Methods(ctx context.Context) ([]*models.WithdrawalMethod, error) {
	return s.Config.store.ListWithdrawalMethods(ctx, true)
}

// QuoteFees prices a hypothetical withdrawal for the UI.
func (s *Service) QuoteFees(ctx context.Context, methodID string, amount decimal.Decimal, currency string) (*models.WithdrawalFees, error) {
	cfg, err := s.Config.Config(ctx)
	if err != nil {
		return nil, err
	}
	method, err := s.Config.store.GetWithdrawalMethod(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, ErrMethodUnavailable
	}
	if currency == "" {
		currency = cfg.DefaultCurrency
	}
	fees := CalculateFees(cfg, method, amount, currency)
	return &fees, nil
}

func (s *Service) unlock(ctx context.Context, wd *models.Withdrawal, key, description string) error {
	withdrawalRef := "withdrawal"
	_, err := s.Wallet.UnlockFunds(ctx, wallet.EntryInput{
		UserID:         wd.UserID,
		Amount:         wd.Amount,
		Category:       models.CategoryWithdrawal,
		Description:    description,
		ReferenceType:  &withdrawalRef,
		ReferenceID:    &wd.WithdrawalID,
		IdempotencyKey: &key,
	})
	return err
}

func (s *Service) compensateUnlock(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, withdrawalID string) {
	key := "WITHDRAWAL_LOCK_ROLLBACK_" + withdrawalID
	if _, err := s.Wallet.UnlockFunds(ctx, wallet.EntryInput{
		UserID:         userID,
		Amount:         amount,
		Category:       models.CategoryWithdrawal,
		Description:    "Release reserved funds after failed withdrawal request",
		IdempotencyKey: &key,
	}); err != nil {
		s.Logger.Error("compensating unlock failed", "withdrawal_id", withdrawalID, "error", err)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
