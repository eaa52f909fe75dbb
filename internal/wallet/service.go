package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
)

// DB begins the transactions that tie a balance mutation to its ledger
// row. *pgxpool.Pool satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletStore is the minimal wallet repository interface for the service.
// The *Tx mutators apply a guarded single-statement update and report
// ok=false when the guard rejected it.
type WalletStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error)
	DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error)
	LockTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error)
	UnlockTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error)
	SetStatus(ctx context.Context, userID uuid.UUID, status string, reason *string) (bool, error)
}

// TransactionStore is the minimal ledger interface for the service.
type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, category, txnType string, limit, offset int) ([]*models.Transaction, int, error)
}

// Service owns every credit movement in the system. All mutations are
// funneled through Credit/Debit/LockFunds/UnlockFunds so that no balance
// ever changes without a matching ledger row.
type Service struct {
	DB      DB
	Wallets WalletStore
	Txns    TransactionStore
	Logger  *slog.Logger

	now func() time.Time
}

func NewService(db DB, wallets WalletStore, txns TransactionStore, logger *slog.Logger) *Service {
	return &Service{DB: db, Wallets: wallets, Txns: txns, Logger: logger, now: time.Now}
}

// EntryInput describes one requested movement. IdempotencyKey, when set,
// makes the operation replay-safe: a second call with the same key
// returns the original transaction without moving money again.
type EntryInput struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Category       string
	Description    string
	ReferenceType  *string
	ReferenceID    *string
	Gateway        *string
	GatewayOrderID *string
	IdempotencyKey *string
}

func (s *Service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.Wallets.GetOrCreate(ctx, userID)
}

// History returns a page of the user's ledger entries.
func (s *Service) History(ctx context.Context, userID uuid.UUID, category, txnType string, limit, offset int) ([]*models.Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Txns.ListByUser(ctx, userID, category, txnType, limit, offset)
}

// Credit adds funds to the wallet and appends a ledger entry in one
// database transaction.
func (s *Service) Credit(ctx context.Context, in EntryInput) (*models.Transaction, error) {
	return s.apply(ctx, in, models.TxnCredit)
}

// Refund is a credit recorded with type refund so the ledger keeps the
// distinction between new money and returned money.
func (s *Service) Refund(ctx context.Context, in EntryInput) (*models.Transaction, error) {
	return s.apply(ctx, in, models.TxnRefund)
}

// Debit removes funds. Fails with ErrInsufficientBalance when the
// available (unlocked) balance does not cover the amount.
func (s *Service) Debit(ctx context.Context, in EntryInput) (*models.Transaction, error) {
	return s.apply(ctx, in, models.TxnDebit)
}

// LockFunds reserves part of the balance without spending it. The ledger
// entry records the reservation; the balance itself does not move.
func (s *Service) LockFunds(ctx context.Context, in EntryInput) (*models.Transaction, error) {
	return s.apply(ctx, in, models.TxnLock)
}

// UnlockFunds releases a previous reservation.
func (s *Service) UnlockFunds(ctx context.Context, in EntryInput) (*models.Transaction, error) {
	return s.apply(ctx, in, models.TxnUnlock)
}

func (s *Service) apply(ctx context.Context, in EntryInput, txnType string) (*models.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if in.IdempotencyKey != nil {
		existing, err := s.Txns.GetByIdempotencyKey(ctx, *in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.Logger.Info("idempotent replay, returning recorded transaction",
				"key", *in.IdempotencyKey, "transaction_id", existing.TransactionID)
			return existing, nil
		}
	}

	w, err := s.Wallets.GetOrCreate(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var after decimal.Decimal
	var ok bool
	switch txnType {
	case models.TxnCredit, models.TxnRefund:
		after, ok, err = s.Wallets.CreditTx(ctx, tx, in.UserID, in.Amount)
	case models.TxnDebit:
		after, ok, err = s.Wallets.DebitTx(ctx, tx, in.UserID, in.Amount)
	case models.TxnLock:
		after, ok, err = s.Wallets.LockTx(ctx, tx, in.UserID, in.Amount)
	case models.TxnUnlock:
		after, ok, err = s.Wallets.UnlockTx(ctx, tx, in.UserID, in.Amount)
	default:
		return nil, fmt.Errorf("unknown transaction type %q", txnType)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyRejection(ctx, in.UserID, in.Amount, txnType)
	}

	before := after
	switch txnType {
	case models.TxnCredit, models.TxnRefund:
		before = after.Sub(in.Amount)
	case models.TxnDebit:
		before = after.Add(in.Amount)
	}

	now := s.now().UTC()
	entry := &models.Transaction{
		ID:             uuid.New(),
		TransactionID:  models.NewTransactionID(),
		UserID:         in.UserID,
		WalletID:       w.ID,
		Type:           txnType,
		Category:       in.Category,
		Amount:         in.Amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Currency:       w.Currency,
		Status:         models.TxnCompleted,
		ReferenceType:  in.ReferenceType,
		ReferenceID:    in.ReferenceID,
		Gateway:        in.Gateway,
		GatewayOrderID: in.GatewayOrderID,
		Description:    in.Description,
		IdempotencyKey: in.IdempotencyKey,
		CompletedAt:    &now,
	}
	if err := s.Txns.CreateTx(ctx, tx, entry); err != nil {
		// Two calls with the same key can both pass the lookup above;
		// the loser hits the unique index here and gets the winner's
		// recorded transaction instead of the raw constraint error.
		if in.IdempotencyKey != nil && isUniqueViolation(err) {
			_ = tx.Rollback(ctx)
			existing, lookupErr := s.Txns.GetByIdempotencyKey(ctx, *in.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				s.Logger.Info("idempotency race lost, returning recorded transaction",
					"key", *in.IdempotencyKey, "transaction_id", existing.TransactionID)
				return existing, nil
			}
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.Logger.Info("wallet entry applied", "user_id", in.UserID, "type", txnType,
		"category", in.Category, "amount", in.Amount, "transaction_id", entry.TransactionID)
	return entry, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classifyRejection turns a guard failure into the precise error by
// re-reading the wallet. The re-read races with other writers, so when
// the snapshot looks fine the rejection was a lost race.
func (s *Service) classifyRejection(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txnType string) error {
	w, err := s.Wallets.Get(ctx, userID)
	if err != nil {
		return err
	}
	if w == nil {
		return ErrWalletNotFound
	}
	switch txnType {
	case models.TxnUnlock:
		if w.LockedBalance.LessThan(amount) {
			return ErrInsufficientLocked
		}
	default:
		if w.Status != models.WalletActive {
			return ErrWalletNotActive
		}
		if txnType != models.TxnCredit && txnType != models.TxnRefund && w.Available().LessThan(amount) {
			return ErrInsufficientBalance
		}
	}
	return ErrConcurrentModification
}

// Freeze blocks every operation on the wallet until Unfreeze.
func (s *Service) Freeze(ctx context.Context, userID uuid.UUID, reason string) error {
	found, err := s.Wallets.SetStatus(ctx, userID, models.WalletFrozen, &reason)
	if err != nil {
		return err
	}
	if !found {
		return ErrWalletNotFound
	}
	s.Logger.Warn("wallet frozen", "user_id", userID, "reason", reason)
	return nil
}

func (s *Service) Unfreeze(ctx context.Context, userID uuid.UUID) error {
	found, err := s.Wallets.SetStatus(ctx, userID, models.WalletActive, nil)
	if err != nil {
		return err
	}
	if !found {
		return ErrWalletNotFound
	}
	s.Logger.Info("wallet unfrozen", "user_id", userID)
	return nil
}
