package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
	"github.com/contestforge/backend/internal/wallet"
)

var (
	ErrCreationDisabled    = errors.New("contest creation is currently disabled")
	ErrMaintenance         = errors.New("platform is in maintenance mode")
	ErrPrizePoolOutOfRange = errors.New("prize pool outside the allowed range")
	ErrParticipantsOutOfRange = errors.New("participant limit outside the allowed range")
	ErrTooManyActive       = errors.New("active contest limit reached")
	ErrInsufficientFunds   = errors.New("available balance does not cover prize pool plus creation fee")
)

// ContestCounter counts a user's live contests for the per-user cap.
type ContestCounter interface {
	CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

// WalletReader reads the owner's wallet for the balance precheck.
type WalletReader interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// Ledger is the slice of the wallet service the fee engine needs.
type Ledger interface {
	Debit(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	Refund(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	LockFunds(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	UnlockFunds(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
}

// Service prices and charges contest creation. The prize pool is locked
// (still the owner's money, reserved for settlement) while the creation
// fee is debited outright.
type Service struct {
	Config   *Provider
	Contests ContestCounter
	Wallets  WalletReader
	Wallet   Ledger
	Logger   *slog.Logger
}

func NewService(config *Provider, contests ContestCounter, wallets WalletReader, ledger Ledger, logger *slog.Logger) *Service {
	return &Service{Config: config, Contests: contests, Wallets: wallets, Wallet: ledger, Logger: logger}
}

// Quote is the priced cost of creating a contest.
type Quote struct {
	PrizePool   decimal.Decimal `json:"prize_pool"`
	CreationFee decimal.Decimal `json:"creation_fee"`
	FeeType     string          `json:"fee_type"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// CreationFee prices the fee for a pool under cfg: fixed, percentage, or
// both, clamped into [min, max].
func CreationFee(cfg *models.FeeConfig, pool decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch cfg.CreationFeeType {
	case models.FeeFixed:
		fee = cfg.CreationFeeFixed
	case models.FeePercentage:
		fee = pool.Mul(cfg.CreationFeePercentage).Div(decimal.NewFromInt(100))
	case models.FeeMixed:
		fee = cfg.CreationFeeFixed.Add(pool.Mul(cfg.CreationFeePercentage).Div(decimal.NewFromInt(100)))
	default:
		fee = decimal.Zero
	}
	fee = fee.Round(2)
	if fee.LessThan(cfg.CreationFeeMin) {
		return cfg.CreationFeeMin
	}
	if fee.GreaterThan(cfg.CreationFeeMax) {
		return cfg.CreationFeeMax
	}
	return fee
}

// QuoteCreation prices a contest without any validation. Used by the
// pricing endpoint so the UI can show the cost upfront.
func (s *Service) QuoteCreation(ctx context.Context, pool decimal.Decimal) (*Quote, error) {
	cfg, err := s.Config.Config(ctx)
	if err != nil {
		return nil, err
	}
	fee := CreationFee(cfg, pool)
	return &Quote{PrizePool: pool, CreationFee: fee, FeeType: cfg.CreationFeeType, TotalCost: pool.Add(fee)}, nil
}

// ValidateCreation runs every precondition for creating a contest and
// returns the priced quote when they all pass.
func (s *Service) ValidateCreation(ctx context.Context, ownerID uuid.UUID, pool decimal.Decimal, maxParticipants int) (*Quote, error) {
	cfg, err := s.Config.Config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.MaintenanceMode {
		return nil, ErrMaintenance
	}
	if !cfg.ContestCreationEnabled {
		return nil, ErrCreationDisabled
	}
	if pool.LessThan(cfg.MinPrizePool) || pool.GreaterThan(cfg.MaxPrizePool) {
		return nil, ErrPrizePoolOutOfRange
	}
	if maxParticipants < cfg.MinParticipants || maxParticipants > cfg.MaxParticipantsLimit {
		return nil, ErrParticipantsOutOfRange
	}

	active, err := s.Contests.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if active >= cfg.MaxActiveContestsPerUser {
		return nil, ErrTooManyActive
	}

	fee := CreationFee(cfg, pool)
	w, err := s.Wallets.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if w.Available().LessThan(pool.Add(fee)) {
		return nil, ErrInsufficientFunds
	}
	return &Quote{PrizePool: pool, CreationFee: fee, FeeType: cfg.CreationFeeType, TotalCost: pool.Add(fee)}, nil
}

// ChargeCreation locks the prize pool and debits the creation fee. When
// the fee debit fails the pool lock is compensated away so the owner's
// funds are not left stranded.
func (s *Service) ChargeCreation(ctx context.Context, contest *models.Contest, fee decimal.Decimal) error {
	contestRef := "contest"
	contestID := contest.ID.String()
	lockKey := "CONTEST_POOL_LOCK_" + contestID

	if _, err := s.Wallet.LockFunds(ctx, wallet.EntryInput{
		UserID:         contest.OwnerID,
		Amount:         contest.TotalPrize,
		Category:       models.CategoryContestCreate,
		Description:    fmt.Sprintf("Prize pool reserved for contest %q", contest.Title),
		ReferenceType:  &contestRef,
		ReferenceID:    &contestID,
		IdempotencyKey: &lockKey,
	}); err != nil {
		return fmt.Errorf("locking prize pool: %w", err)
	}

	if fee.IsPositive() {
		feeKey := "CONTEST_FEE_" + contestID
		if _, err := s.Wallet.Debit(ctx, wallet.EntryInput{
			UserID:         contest.OwnerID,
			Amount:         fee,
			Category:       models.CategoryContestCreate,
			Description:    fmt.Sprintf("Creation fee for contest %q", contest.Title),
			ReferenceType:  &contestRef,
			ReferenceID:    &contestID,
			IdempotencyKey: &feeKey,
		}); err != nil {
			unlockKey := "CONTEST_POOL_UNLOCK_" + contestID
			if _, unlockErr := s.Wallet.UnlockFunds(ctx, wallet.EntryInput{
				UserID:         contest.OwnerID,
				Amount:         contest.TotalPrize,
				Category:       models.CategoryContestCreate,
				Description:    fmt.Sprintf("Release prize pool after failed fee charge for contest %q", contest.Title),
				ReferenceType:  &contestRef,
				ReferenceID:    &contestID,
				IdempotencyKey: &unlockKey,
			}); unlockErr != nil {
				s.Logger.Error("compensating pool unlock failed", "contest_id", contest.ID, "error", unlockErr)
			}
			return fmt.Errorf("charging creation fee: %w", err)
		}
	}

	s.Logger.Info("contest creation charged", "contest_id", contest.ID,
		"pool", contest.TotalPrize, "fee", fee)
	return nil
}

// RefundCreationFee returns the configured percentage of the creation
// fee when a contest is cancelled. The pool itself is refunded by the
// settlement service; this covers only the fee leg.
func (s *Service) RefundCreationFee(ctx context.Context, contest *models.Contest, feePaid decimal.Decimal) (decimal.Decimal, error) {
	cfg, err := s.Config.Config(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !cfg.RefundOnCancel || !feePaid.IsPositive() {
		return decimal.Zero, nil
	}
	refund := feePaid.Mul(cfg.RefundPercentage).Div(decimal.NewFromInt(100)).Round(2)
	if !refund.IsPositive() {
		return decimal.Zero, nil
	}

	contestRef := "contest"
	contestID := contest.ID.String()
	key := "CONTEST_CANCEL_FEE_" + contestID
	if _, err := s.Wallet.Refund(ctx, wallet.EntryInput{
		UserID:         contest.OwnerID,
		Amount:         refund,
		Category:       models.CategoryRefund,
		Description:    fmt.Sprintf("Creation fee refund for cancelled contest %q", contest.Title),
		ReferenceType:  &contestRef,
		ReferenceID:    &contestID,
		IdempotencyKey: &key,
	}); err != nil {
		return decimal.Zero, err
	}
	s.Logger.Info("creation fee refunded", "contest_id", contest.ID, "refund", refund)
	return refund, nil
}
