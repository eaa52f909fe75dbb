package prize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
	"github.com/contestforge/backend/internal/scoring"
	"github.com/contestforge/backend/internal/wallet"
)

var (
	ErrContestNotFound   = errors.New("contest not found")
	ErrNotOwner          = errors.New("only the contest owner or an admin can distribute prizes")
	ErrContestNotEnded   = errors.New("contest has not completed yet")
	ErrAlreadySettled    = errors.New("prizes already distributed or distribution in progress")
	ErrNoEligibleWinners = errors.New("no participants with a score above zero")
	ErrRefundUnavailable = errors.New("refund already processed or settlement in progress")
	ErrPrizesPayable     = errors.New("contest has payable winners and must distribute instead")
)

// ContestStore is the minimal contest repository interface for settlement.
// The Acquire methods are compare-and-swap flag flips on the contest row
// and double as cross-process mutexes.
type ContestStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	AcquireDistributionLock(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseDistributionLock(ctx context.Context, id uuid.UUID) error
	CompleteDistribution(ctx context.Context, id uuid.UUID, failed []models.FailedCredit) error
	AcquireRefundLock(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseRefundLock(ctx context.Context, id uuid.UUID) error
	CompleteRefund(ctx context.Context, id uuid.UUID, reason string) error
	SetFailedCredits(ctx context.Context, id uuid.UUID, failed []models.FailedCredit) error
	ListWithFailedCredits(ctx context.Context) ([]*models.Contest, error)
}

// ParticipantStore records per-winner payout outcomes.
type ParticipantStore interface {
	RecordPrizeResult(ctx context.Context, contestID, userID uuid.UUID, amount decimal.Decimal, creditErr *string) error
}

// Scorer produces the final leaderboard.
type Scorer interface {
	RankAll(ctx context.Context, contestID uuid.UUID) ([]scoring.Ranked, error)
}

// Ledger is the slice of the wallet service settlement needs.
type Ledger interface {
	Credit(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	Debit(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	LockFunds(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
	UnlockFunds(ctx context.Context, in wallet.EntryInput) (*models.Transaction, error)
}

// Service settles contests: it pays winners out of the owner's locked
// prize pool, or refunds the pool when there is nothing to pay.
type Service struct {
	Contests     ContestStore
	Participants ParticipantStore
	Scorer       Scorer
	Wallet       Ledger
	Logger       *slog.Logger
}

func NewService(contests ContestStore, participants ParticipantStore, scorer Scorer, ledger Ledger, logger *slog.Logger) *Service {
	return &Service{Contests: contests, Participants: participants, Scorer: scorer, Wallet: ledger, Logger: logger}
}

// Result summarizes one distribution run.
type Result struct {
	ContestID        uuid.UUID             `json:"contest_id"`
	TotalDistributed decimal.Decimal       `json:"total_distributed"`
	Winners          []WinnerPayout        `json:"winners"`
	FailedCredits    []models.FailedCredit `json:"failed_credits,omitempty"`
}

// WinnerPayout is one paid winner in the result.
type WinnerPayout struct {
	UserID uuid.UUID       `json:"user_id"`
	Rank   int             `json:"rank"`
	Amount decimal.Decimal `json:"amount"`
}

// Distribute pays the prize pool out to eligible winners. The contest
// row's distribution_in_progress flag serializes concurrent calls: the
// loser of the flag race gets ErrAlreadySettled and no money moves
// twice. Individual winner credits that fail are recorded for retry
// rather than aborting the whole run.
func (s *Service) Distribute(ctx context.Context, contestID, actorID uuid.UUID, isAdmin bool) (*Result, error) {
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrContestNotFound
	}
	if !isAdmin && contest.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	if contest.Status != models.ContestCompleted {
		return nil, ErrContestNotEnded
	}

	acquired, err := s.Contests.AcquireDistributionLock(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadySettled
	}

	result, err := s.distributeLocked(ctx, contest)
	if err != nil {
		if relErr := s.Contests.ReleaseDistributionLock(ctx, contestID); relErr != nil {
			s.Logger.Error("releasing distribution lock failed", "contest_id", contestID, "error", relErr)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) distributeLocked(ctx context.Context, contest *models.Contest) (*Result, error) {
	ranked, err := s.Scorer.RankAll(ctx, contest.ID)
	if err != nil {
		return nil, err
	}
	shares := scoring.PrizeShares(contest.TotalPrize, contest.DistributionMode, ranked)
	if shares == nil {
		return nil, ErrNoEligibleWinners
	}

	if err := s.releasePool(ctx, contest); err != nil {
		return nil, err
	}

	contestRef := "contest"
	contestID := contest.ID.String()
	result := &Result{ContestID: contest.ID, TotalDistributed: decimal.Zero}
	var failed []models.FailedCredit
	for _, share := range shares {
		key := fmt.Sprintf("PRIZE_%s_%s", contest.ID, share.UserID)
		desc := fmt.Sprintf("Prize for rank %d in contest %q", share.Rank, contest.Title)
		_, err := s.Wallet.Credit(ctx, wallet.EntryInput{
			UserID:         share.UserID,
			Amount:         share.Amount,
			Category:       models.CategoryContestPrize,
			Description:    desc,
			ReferenceType:  &contestRef,
			ReferenceID:    &contestID,
			IdempotencyKey: &key,
		})
		if err != nil {
			s.Logger.Error("winner credit failed", "contest_id", contest.ID,
				"user_id", share.UserID, "amount", share.Amount, "error", err)
			msg := err.Error()
			failed = append(failed, models.FailedCredit{UserID: share.UserID, Amount: share.Amount, Error: msg})
			if recErr := s.Participants.RecordPrizeResult(ctx, contest.ID, share.UserID, share.Amount, &msg); recErr != nil {
				s.Logger.Error("recording failed credit failed", "contest_id", contest.ID, "error", recErr)
			}
			continue
		}
		if err := s.Participants.RecordPrizeResult(ctx, contest.ID, share.UserID, share.Amount, nil); err != nil {
			return nil, err
		}
		result.TotalDistributed = result.TotalDistributed.Add(share.Amount)
		result.Winners = append(result.Winners, WinnerPayout{UserID: share.UserID, Rank: share.Rank, Amount: share.Amount})
	}
	if failed == nil {
		failed = []models.FailedCredit{}
	}
	result.FailedCredits = failed

	if err := s.Contests.CompleteDistribution(ctx, contest.ID, failed); err != nil {
		return nil, err
	}
	s.Logger.Info("prizes distributed", "contest_id", contest.ID,
		"winners", len(result.Winners), "failed", len(failed), "total", result.TotalDistributed)
	return result, nil
}

// releasePool turns the owner's locked pool into a real debit: unlock
// first, then debit, re-locking when the debit fails so no funds leak
// free. Both legs carry idempotency keys and survive a crash between
// them.
func (s *Service) releasePool(ctx context.Context, contest *models.Contest) error {
	contestRef := "contest"
	contestID := contest.ID.String()
	unlockKey := "PRIZE_UNLOCK_" + contestID
	debitKey := "PRIZE_DIST_" + contestID

	if contest.PrizePoolLocked {
		if _, err := s.Wallet.UnlockFunds(ctx, wallet.EntryInput{
			UserID:         contest.OwnerID,
			Amount:         contest.TotalPrize,
			Category:       models.CategoryContestPrize,
			Description:    fmt.Sprintf("Release prize pool for contest %q", contest.Title),
			ReferenceType:  &contestRef,
			ReferenceID:    &contestID,
			IdempotencyKey: &unlockKey,
		}); err != nil {
			return fmt.Errorf("unlocking prize pool: %w", err)
		}
	}

	if _, err := s.Wallet.Debit(ctx, wallet.EntryInput{
		UserID:         contest.OwnerID,
		Amount:         contest.TotalPrize,
		Category:       models.CategoryContestPrize,
		Description:    fmt.Sprintf("Prize pool payout for contest %q", contest.Title),
		ReferenceType:  &contestRef,
		ReferenceID:    &contestID,
		IdempotencyKey: &debitKey,
	}); err != nil {
		relockKey := "PRIZE_RELOCK_" + contestID
		if _, lockErr := s.Wallet.LockFunds(ctx, wallet.EntryInput{
			UserID:         contest.OwnerID,
			Amount:         contest.TotalPrize,
			Category:       models.CategoryContestPrize,
			Description:    fmt.Sprintf("Re-lock prize pool for contest %q after failed payout", contest.Title),
			ReferenceType:  &contestRef,
			ReferenceID:    &contestID,
			IdempotencyKey: &relockKey,
		}); lockErr != nil {
			s.Logger.Error("re-locking prize pool failed", "contest_id", contest.ID, "error", lockErr)
		}
		return fmt.Errorf("debiting prize pool: %w", err)
	}
	return nil
}

// RetryFailedCredits re-attempts every recorded failed winner credit.
// The per-winner idempotency key guarantees a winner whose credit in
// fact landed is not paid twice.
func (s *Service) RetryFailedCredits(ctx context.Context) (retried, recovered int, err error) {
	contests, err := s.Contests.ListWithFailedCredits(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, contest := range contests {
		var remaining []models.FailedCredit
		contestRef := "contest"
		contestID := contest.ID.String()
		for _, fc := range contest.FailedCredits {
			retried++
			key := fmt.Sprintf("PRIZE_%s_%s", contest.ID, fc.UserID)
			_, creditErr := s.Wallet.Credit(ctx, wallet.EntryInput{
				UserID:         fc.UserID,
				Amount:         fc.Amount,
				Category:       models.CategoryContestPrize,
				Description:    fmt.Sprintf("Prize payout retry for contest %q", contest.Title),
				ReferenceType:  &contestRef,
				ReferenceID:    &contestID,
				IdempotencyKey: &key,
			})
			if creditErr != nil {
				msg := creditErr.Error()
				remaining = append(remaining, models.FailedCredit{UserID: fc.UserID, Amount: fc.Amount, Error: msg})
				continue
			}
			recovered++
			if recErr := s.Participants.RecordPrizeResult(ctx, contest.ID, fc.UserID, fc.Amount, nil); recErr != nil {
				s.Logger.Error("recording recovered credit failed", "contest_id", contest.ID, "error", recErr)
			}
		}
		if remaining == nil {
			remaining = []models.FailedCredit{}
		}
		if err := s.Contests.SetFailedCredits(ctx, contest.ID, remaining); err != nil {
			return retried, recovered, err
		}
	}
	if retried > 0 {
		s.Logger.Info("failed credit retry pass finished", "retried", retried, "recovered", recovered)
	}
	return retried, recovered, nil
}

// RefundPool returns the locked prize pool to the owner when a contest
// ends without anything to pay (no approved submissions, or cancelled
// before completion). A completed contest that still has winners with a
// payable score is rejected: its pool belongs to Distribute. The refund
// flags mirror the distribution flags so refund and distribution are
// mutually exclusive.
func (s *Service) RefundPool(ctx context.Context, contestID uuid.UUID, reason string) error {
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		return err
	}
	if contest == nil {
		return ErrContestNotFound
	}

	acquired, err := s.Contests.AcquireRefundLock(ctx, contestID)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrRefundUnavailable
	}

	if contest.Status == models.ContestCompleted {
		ranked, err := s.Scorer.RankAll(ctx, contestID)
		if err != nil {
			if relErr := s.Contests.ReleaseRefundLock(ctx, contestID); relErr != nil {
				s.Logger.Error("releasing refund lock failed", "contest_id", contestID, "error", relErr)
			}
			return err
		}
		if scoring.PrizeShares(contest.TotalPrize, contest.DistributionMode, ranked) != nil {
			if relErr := s.Contests.ReleaseRefundLock(ctx, contestID); relErr != nil {
				s.Logger.Error("releasing refund lock failed", "contest_id", contestID, "error", relErr)
			}
			return ErrPrizesPayable
		}
	}

	if contest.PrizePoolLocked {
		contestRef := "contest"
		refID := contestID.String()
		key := "REFUND_POOL_" + refID
		if _, err := s.Wallet.UnlockFunds(ctx, wallet.EntryInput{
			UserID:         contest.OwnerID,
			Amount:         contest.TotalPrize,
			Category:       models.CategoryRefund,
			Description:    fmt.Sprintf("Prize pool refund for contest %q: %s", contest.Title, reason),
			ReferenceType:  &contestRef,
			ReferenceID:    &refID,
			IdempotencyKey: &key,
		}); err != nil {
			if relErr := s.Contests.ReleaseRefundLock(ctx, contestID); relErr != nil {
				s.Logger.Error("releasing refund lock failed", "contest_id", contestID, "error", relErr)
			}
			return fmt.Errorf("unlocking prize pool for refund: %w", err)
		}
	}

	if err := s.Contests.CompleteRefund(ctx, contestID, reason); err != nil {
		return err
	}
	s.Logger.Info("prize pool refunded", "contest_id", contestID, "reason", reason)
	return nil
}

// Preview returns what Distribute would pay right now without moving
// money or taking any settlement flag.
func (s *Service) Preview(ctx context.Context, contestID uuid.UUID) (*Result, error) {
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrContestNotFound
	}
	ranked, err := s.Scorer.RankAll(ctx, contestID)
	if err != nil {
		return nil, err
	}
	shares := scoring.PrizeShares(contest.TotalPrize, contest.DistributionMode, ranked)
	result := &Result{ContestID: contestID, TotalDistributed: decimal.Zero}
	for _, share := range shares {
		result.TotalDistributed = result.TotalDistributed.Add(share.Amount)
		result.Winners = append(result.Winners, WinnerPayout{UserID: share.UserID, Rank: share.Rank, Amount: share.Amount})
	}
	return result, nil
}
