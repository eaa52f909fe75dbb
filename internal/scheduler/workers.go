package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/contestforge/backend/internal/models"
	"github.com/contestforge/backend/internal/prize"
)

// ContestStore is the contest access the periodic jobs need.
type ContestStore interface {
	ListDueToStart(ctx context.Context, now time.Time) ([]*models.Contest, error)
	ListDueForJudging(ctx context.Context, now time.Time) ([]*models.Contest, error)
	ListDueForSettlement(ctx context.Context, now time.Time) ([]*models.Contest, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// Settler is the settlement service surface the jobs drive.
type Settler interface {
	Distribute(ctx context.Context, contestID, actorID uuid.UUID, isAdmin bool) (*prize.Result, error)
	RefundPool(ctx context.Context, contestID uuid.UUID, reason string) error
	RetryFailedCredits(ctx context.Context) (retried, recovered int, err error)
}

// SubmissionCounter decides between payout and refund at settlement.
type SubmissionCounter interface {
	CountApprovedByContest(ctx context.Context, contestID uuid.UUID) (int, error)
}

// ContestLifecycleArgs drives the periodic status sweep: upcoming
// contests past their start date go active, active ones past their end
// date go to judging.
type ContestLifecycleArgs struct{}

func (ContestLifecycleArgs) Kind() string { return "contest_lifecycle" }

type ContestLifecycleWorker struct {
	river.WorkerDefaults[ContestLifecycleArgs]
	contests ContestStore
	log      *slog.Logger
}

func NewContestLifecycleWorker(contests ContestStore, log *slog.Logger) *ContestLifecycleWorker {
	return &ContestLifecycleWorker{contests: contests, log: log}
}

func (w *ContestLifecycleWorker) Work(ctx context.Context, _ *river.Job[ContestLifecycleArgs]) error {
	now := time.Now().UTC()

	due, err := w.contests.ListDueToStart(ctx, now)
	if err != nil {
		return err
	}
	for _, c := range due {
		moved, err := w.contests.TransitionStatus(ctx, c.ID, models.ContestUpcoming, models.ContestActive)
		if err != nil {
			return err
		}
		if moved {
			w.log.Info("contest started", "contest_id", c.ID)
		}
	}

	ended, err := w.contests.ListDueForJudging(ctx, now)
	if err != nil {
		return err
	}
	for _, c := range ended {
		moved, err := w.contests.TransitionStatus(ctx, c.ID, models.ContestActive, models.ContestJudging)
		if err != nil {
			return err
		}
		if moved {
			w.log.Info("contest moved to judging", "contest_id", c.ID)
		}
	}
	return nil
}

// ContestSettlementArgs drives the periodic settlement sweep: judging
// contests whose grace period has elapsed are completed, then either
// paid out or refunded depending on whether anything was approved.
type ContestSettlementArgs struct{}

func (ContestSettlementArgs) Kind() string { return "contest_settlement" }

type ContestSettlementWorker struct {
	river.WorkerDefaults[ContestSettlementArgs]
	contests    ContestStore
	settler     Settler
	submissions SubmissionCounter
	log         *slog.Logger
}

func NewContestSettlementWorker(contests ContestStore, settler Settler, submissions SubmissionCounter, log *slog.Logger) *ContestSettlementWorker {
	return &ContestSettlementWorker{contests: contests, settler: settler, submissions: submissions, log: log}
}

func (w *ContestSettlementWorker) Work(ctx context.Context, _ *river.Job[ContestSettlementArgs]) error {
	due, err := w.contests.ListDueForSettlement(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, c := range due {
		moved, err := w.contests.TransitionStatus(ctx, c.ID, models.ContestJudging, models.ContestCompleted)
		if err != nil {
			return err
		}
		if !moved {
			continue // another node won this contest
		}
		w.settle(ctx, c)
	}
	return nil
}

// settle decides the outcome for one freshly completed contest. Errors
// here are logged but never fail the sweep: one stuck contest must not
// starve the rest, and the settlement flags keep retries safe on the
// next tick.
func (w *ContestSettlementWorker) settle(ctx context.Context, c *models.Contest) {
	approved, err := w.submissions.CountApprovedByContest(ctx, c.ID)
	if err != nil {
		w.log.Error("counting approved submissions failed", "contest_id", c.ID, "error", err)
		return
	}
	if approved == 0 {
		if err := w.settler.RefundPool(ctx, c.ID, "no approved submissions"); err != nil &&
			!errors.Is(err, prize.ErrRefundUnavailable) {
			w.log.Error("auto refund failed", "contest_id", c.ID, "error", err)
		}
		return
	}

	_, err = w.settler.Distribute(ctx, c.ID, uuid.Nil, true)
	switch {
	case err == nil:
		w.log.Info("contest auto-settled", "contest_id", c.ID)
	case errors.Is(err, prize.ErrAlreadySettled):
		// lost the race to a manual distribution, nothing to do
	case errors.Is(err, prize.ErrNoEligibleWinners):
		if refundErr := w.settler.RefundPool(ctx, c.ID, "no eligible winners"); refundErr != nil &&
			!errors.Is(refundErr, prize.ErrRefundUnavailable) {
			w.log.Error("auto refund failed", "contest_id", c.ID, "error", refundErr)
		}
	default:
		w.log.Error("auto distribution failed", "contest_id", c.ID, "error", err)
	}
}

// RetryFailedCreditsArgs drives the periodic retry of winner credits
// that failed during distribution.
type RetryFailedCreditsArgs struct{}

func (RetryFailedCreditsArgs) Kind() string { return "retry_failed_credits" }

type RetryFailedCreditsWorker struct {
	river.WorkerDefaults[RetryFailedCreditsArgs]
	settler Settler
	log     *slog.Logger
}

func NewRetryFailedCreditsWorker(settler Settler, log *slog.Logger) *RetryFailedCreditsWorker {
	return &RetryFailedCreditsWorker{settler: settler, log: log}
}

func (w *RetryFailedCreditsWorker) Work(ctx context.Context, _ *river.Job[RetryFailedCreditsArgs]) error {
	_, _, err := w.settler.RetryFailedCredits(ctx)
	return err
}
