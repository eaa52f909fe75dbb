package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// memWallets mimics the guarded single-statement updates in memory.
type memWallets struct {
	wallets map[uuid.UUID]*models.Wallet
}

func newMemWallets() *memWallets {
	return &memWallets{wallets: map[uuid.UUID]*models.Wallet{}}
}

func (m *memWallets) GetOrCreate(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if w, ok := m.wallets[userID]; ok {
		return w, nil
	}
	w := &models.Wallet{ID: uuid.New(), UserID: userID, Currency: "credits", Status: models.WalletActive}
	m.wallets[userID] = w
	return w, nil
}

func (m *memWallets) Get(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return m.wallets[userID], nil
}

func (m *memWallets) CreditTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	w := m.wallets[userID]
	if w == nil || w.Status != models.WalletActive {
		return decimal.Zero, false, nil
	}
	w.Balance = w.Balance.Add(amount)
	w.TotalCredited = w.TotalCredited.Add(amount)
	return w.Balance, true, nil
}

func (m *memWallets) DebitTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	w := m.wallets[userID]
	if w == nil || w.Status != models.WalletActive || w.Available().LessThan(amount) {
		return decimal.Zero, false, nil
	}
	w.Balance = w.Balance.Sub(amount)
	w.TotalDebited = w.TotalDebited.Add(amount)
	return w.Balance, true, nil
}

func (m *memWallets) LockTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	w := m.wallets[userID]
	if w == nil || w.Status != models.WalletActive || w.Available().LessThan(amount) {
		return decimal.Zero, false, nil
	}
	w.LockedBalance = w.LockedBalance.Add(amount)
	return w.Balance, true, nil
}

func (m *memWallets) UnlockTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	w := m.wallets[userID]
	if w == nil || w.LockedBalance.LessThan(amount) {
		return decimal.Zero, false, nil
	}
	w.LockedBalance = w.LockedBalance.Sub(amount)
	return w.Balance, true, nil
}

func (m *memWallets) SetStatus(_ context.Context, userID uuid.UUID, status string, reason *string) (bool, error) {
	w := m.wallets[userID]
	if w == nil {
		return false, nil
	}
	w.Status = status
	w.FrozenReason = reason
	return true, nil
}

type memTxns struct {
	entries []*models.Transaction

	// missLookups makes the next N key lookups come back empty, the way
	// a lookup races past another caller's not-yet-committed insert.
	missLookups int
}

// CreateTx enforces the partial unique index on completed idempotency
// keys the way the database does.
func (m *memTxns) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	if t.IdempotencyKey != nil && t.Status == models.TxnCompleted {
		for _, prev := range m.entries {
			if prev.IdempotencyKey != nil && *prev.IdempotencyKey == *t.IdempotencyKey && prev.Status == models.TxnCompleted {
				return &pgconn.PgError{Code: "23505", ConstraintName: "wallet_transactions_idempotency_uq"}
			}
		}
	}
	m.entries = append(m.entries, t)
	return nil
}

func (m *memTxns) GetByIdempotencyKey(_ context.Context, key string) (*models.Transaction, error) {
	if m.missLookups > 0 {
		m.missLookups--
		return nil, nil
	}
	for _, t := range m.entries {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key && t.Status == models.TxnCompleted {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memTxns) ListByUser(_ context.Context, userID uuid.UUID, _, _ string, _, _ int) ([]*models.Transaction, int, error) {
	var out []*models.Transaction
	for _, t := range m.entries {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func newTestService() (*Service, *memWallets, *memTxns) {
	wallets := newMemWallets()
	txns := &memTxns{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(fakeDB{}, wallets, txns, logger), wallets, txns
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreditAppendsLedgerEntry(t *testing.T) {
	svc, wallets, txns := newTestService()
	userID := uuid.New()

	entry, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("150.50"), Category: models.CategoryTopup, Description: "top-up",
	})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if !entry.BalanceBefore.Equal(dec("0")) || !entry.BalanceAfter.Equal(dec("150.50")) {
		t.Errorf("balance before/after = %s/%s, want 0/150.50", entry.BalanceBefore, entry.BalanceAfter)
	}
	w, _ := wallets.Get(context.Background(), userID)
	if !w.Balance.Equal(dec("150.50")) || !w.TotalCredited.Equal(dec("150.50")) {
		t.Errorf("wallet balance=%s total_credited=%s", w.Balance, w.TotalCredited)
	}
	if len(txns.entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(txns.entries))
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	svc, _, _ := newTestService()
	userID := uuid.New()
	mustCredit(t, svc, userID, "100")

	_, err := svc.Debit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("100.01"), Category: models.CategoryContestEntry,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestDebitRespectsLockedBalance(t *testing.T) {
	svc, _, _ := newTestService()
	userID := uuid.New()
	mustCredit(t, svc, userID, "1000")

	if _, err := svc.LockFunds(context.Background(), EntryInput{
		UserID: userID, Amount: dec("800"), Category: models.CategoryContestCreate,
	}); err != nil {
		t.Fatalf("LockFunds: %v", err)
	}

	// 200 available out of 1000.
	if _, err := svc.Debit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("300"), Category: models.CategoryWithdrawal,
	}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if _, err := svc.Debit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("200"), Category: models.CategoryWithdrawal,
	}); err != nil {
		t.Fatalf("Debit within available: %v", err)
	}
}

func TestUnlockMoreThanLocked(t *testing.T) {
	svc, _, _ := newTestService()
	userID := uuid.New()
	mustCredit(t, svc, userID, "500")

	if _, err := svc.LockFunds(context.Background(), EntryInput{
		UserID: userID, Amount: dec("200"), Category: models.CategoryContestCreate,
	}); err != nil {
		t.Fatalf("LockFunds: %v", err)
	}
	if _, err := svc.UnlockFunds(context.Background(), EntryInput{
		UserID: userID, Amount: dec("200.01"), Category: models.CategoryContestCreate,
	}); !errors.Is(err, ErrInsufficientLocked) {
		t.Fatalf("err = %v, want ErrInsufficientLocked", err)
	}
}

func TestFrozenWalletRejectsOperations(t *testing.T) {
	svc, _, _ := newTestService()
	userID := uuid.New()
	mustCredit(t, svc, userID, "100")

	if err := svc.Freeze(context.Background(), userID, "fraud review"); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if _, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("10"), Category: models.CategoryTopup,
	}); !errors.Is(err, ErrWalletNotActive) {
		t.Fatalf("credit on frozen wallet: err = %v, want ErrWalletNotActive", err)
	}
	if _, err := svc.Debit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("10"), Category: models.CategoryWithdrawal,
	}); !errors.Is(err, ErrWalletNotActive) {
		t.Fatalf("debit on frozen wallet: err = %v, want ErrWalletNotActive", err)
	}

	if err := svc.Unfreeze(context.Background(), userID); err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	if _, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("10"), Category: models.CategoryTopup,
	}); err != nil {
		t.Fatalf("credit after unfreeze: %v", err)
	}
}

func TestIdempotentReplayReturnsOriginal(t *testing.T) {
	svc, wallets, txns := newTestService()
	userID := uuid.New()
	key := "CREDIT_ORD_TEST123"

	first, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("250"), Category: models.CategoryTopup, IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	second, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("250"), Category: models.CategoryTopup, IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("replay returned %s, want original %s", second.TransactionID, first.TransactionID)
	}
	w, _ := wallets.Get(context.Background(), userID)
	if !w.Balance.Equal(dec("250")) {
		t.Errorf("balance = %s, want 250 (money must move once)", w.Balance)
	}
	if len(txns.entries) != 1 {
		t.Errorf("ledger entries = %d, want 1", len(txns.entries))
	}
}

func TestSameKeyRaceReturnsRecordedTransaction(t *testing.T) {
	svc, _, txns := newTestService()
	userID := uuid.New()
	key := "CREDIT_ORD_REDELIVERY"

	first, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("250"), Category: models.CategoryTopup, IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}

	// A redelivered webhook can pass the key lookup before the first
	// insert is visible; the unique index rejects its insert and the
	// caller must still get the recorded transaction back.
	txns.missLookups = 1
	second, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec("250"), Category: models.CategoryTopup, IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("racing credit: %v", err)
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("racing call returned %s, want original %s", second.TransactionID, first.TransactionID)
	}
	if len(txns.entries) != 1 {
		t.Errorf("ledger entries = %d, want 1", len(txns.entries))
	}
}

func TestInvalidAmount(t *testing.T) {
	svc, _, _ := newTestService()
	for _, amount := range []string{"0", "-5"} {
		if _, err := svc.Credit(context.Background(), EntryInput{
			UserID: uuid.New(), Amount: dec(amount), Category: models.CategoryTopup,
		}); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %s: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestLockEntryKeepsBalanceUnchanged(t *testing.T) {
	svc, _, _ := newTestService()
	userID := uuid.New()
	mustCredit(t, svc, userID, "400")

	entry, err := svc.LockFunds(context.Background(), EntryInput{
		UserID: userID, Amount: dec("150"), Category: models.CategoryContestCreate,
	})
	if err != nil {
		t.Fatalf("LockFunds: %v", err)
	}
	if !entry.BalanceBefore.Equal(entry.BalanceAfter) {
		t.Errorf("lock entry moved the balance: %s -> %s", entry.BalanceBefore, entry.BalanceAfter)
	}
	if entry.Type != models.TxnLock {
		t.Errorf("type = %s, want lock", entry.Type)
	}
}

func mustCredit(t *testing.T, svc *Service, userID uuid.UUID, amount string) {
	t.Helper()
	if _, err := svc.Credit(context.Background(), EntryInput{
		UserID: userID, Amount: dec(amount), Category: models.CategoryTopup,
	}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
}
