package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contestforge/backend/internal/models"
)

const contestColumns = `id, owner_id, title, status, distribution_mode, total_prize, max_participants, start_date, end_date,
	grace_period_hours, prize_pool_locked, prizes_distributed, distribution_in_progress,
	refund_processed, refund_in_progress, refund_reason, failed_credits, completed_at, created_at, updated_at`

type ContestRepo struct {
	pool *pgxpool.Pool
}

func NewContestRepo(pool *pgxpool.Pool) *ContestRepo {
	return &ContestRepo{pool: pool}
}

func scanContest(row pgx.Row) (*models.Contest, error) {
	var c models.Contest
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Status, &c.DistributionMode, &c.TotalPrize, &c.MaxParticipants,
		&c.StartDate, &c.EndDate, &c.GracePeriodHours, &c.PrizePoolLocked, &c.PrizesDistributed,
		&c.DistributionInProgress, &c.RefundProcessed, &c.RefundInProgress, &c.RefundReason,
		&c.FailedCredits, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContestRepo) Get(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id)
	c, err := scanContest(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *ContestRepo) Create(ctx context.Context, c *models.Contest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO contests (id, owner_id, title, status, distribution_mode, total_prize, max_participants,
			start_date, end_date, grace_period_hours, prize_pool_locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, c.ID, c.OwnerID, c.Title, c.Status, c.DistributionMode, c.TotalPrize, c.MaxParticipants, c.StartDate, c.EndDate,
		c.GracePeriodHours, c.PrizePoolLocked).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// AcquireDistributionLock flips distribution_in_progress for a completed
// contest whose prizes have not been paid and whose pool has not been
// refunded. False means another caller holds a settlement lock or the
// contest already settled, which is the signal to back off rather than
// an error.
func (r *ContestRepo) AcquireDistributionLock(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contests
		SET distribution_in_progress = TRUE, updated_at = now()
		WHERE id = $1 AND status = 'completed'
		  AND prizes_distributed = FALSE AND distribution_in_progress = FALSE
		  AND refund_processed = FALSE AND refund_in_progress = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseDistributionLock clears the flag after a failed run so a later
// attempt can retry.
func (r *ContestRepo) ReleaseDistributionLock(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contests SET distribution_in_progress = FALSE, updated_at = now() WHERE id = $1
	`, id)
	return err
}

// CompleteDistribution marks the contest settled and records any winner
// credits that failed and need scheduler retry. A nil slice would encode
// as jsonb NULL, which the column rejects.
func (r *ContestRepo) CompleteDistribution(ctx context.Context, id uuid.UUID, failed []models.FailedCredit) error {
	if failed == nil {
		failed = []models.FailedCredit{}
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE contests
		SET prizes_distributed = TRUE, distribution_in_progress = FALSE,
		    prize_pool_locked = FALSE, failed_credits = $2, updated_at = now()
		WHERE id = $1
	`, id, failed)
	return err
}

// AcquireRefundLock is the refund-side counterpart of the distribution
// lock. A contest that distributed prizes can never also refund.
func (r *ContestRepo) AcquireRefundLock(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contests
		SET refund_in_progress = TRUE, updated_at = now()
		WHERE id = $1 AND prizes_distributed = FALSE
		  AND refund_processed = FALSE AND refund_in_progress = FALSE
		  AND distribution_in_progress = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ContestRepo) ReleaseRefundLock(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contests SET refund_in_progress = FALSE, updated_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *ContestRepo) CompleteRefund(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contests
		SET refund_processed = TRUE, refund_in_progress = FALSE,
		    prize_pool_locked = FALSE, refund_reason = $2, updated_at = now()
		WHERE id = $1
	`, id, reason)
	return err
}

// SetFailedCredits replaces the retry list after a retry pass.
func (r *ContestRepo) SetFailedCredits(ctx context.Context, id uuid.UUID, failed []models.FailedCredit) error {
	if failed == nil {
		failed = []models.FailedCredit{}
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE contests SET failed_credits = $2, updated_at = now() WHERE id = $1
	`, id, failed)
	return err
}

// MarkPoolLocked records that the owner's prize pool reservation landed.
// Settlement and refund both key off this flag.
func (r *ContestRepo) MarkPoolLocked(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contests SET prize_pool_locked = TRUE, updated_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *ContestRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contests SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// TransitionStatus moves status only when the contest is still in from.
// The guard makes concurrent scheduler ticks idempotent.
func (r *ContestRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	var setCompleted string
	if to == models.ContestCompleted {
		setCompleted = `, completed_at = now()`
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE contests SET status = $3, updated_at = now()`+setCompleted+`
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountActiveByOwner counts the owner's contests that still hold or will
// hold a locked pool.
func (r *ContestRepo) CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM contests
		WHERE owner_id = $1 AND status IN ('draft', 'upcoming', 'active', 'judging')
	`, ownerID).Scan(&n)
	return n, err
}

func (r *ContestRepo) ListDueToStart(ctx context.Context, now time.Time) ([]*models.Contest, error) {
	return r.list(ctx, `
		SELECT `+contestColumns+` FROM contests
		WHERE status = 'upcoming' AND start_date <= $1
	`, now)
}

func (r *ContestRepo) ListDueForJudging(ctx context.Context, now time.Time) ([]*models.Contest, error) {
	return r.list(ctx, `
		SELECT `+contestColumns+` FROM contests
		WHERE status = 'active' AND end_date <= $1
	`, now)
}

// ListDueForSettlement returns judging contests whose grace period has
// elapsed since end_date.
func (r *ContestRepo) ListDueForSettlement(ctx context.Context, now time.Time) ([]*models.Contest, error) {
	return r.list(ctx, `
		SELECT `+contestColumns+` FROM contests
		WHERE status = 'judging'
		  AND end_date + make_interval(hours => grace_period_hours) <= $1
	`, now)
}

// ListWithFailedCredits feeds the retry job.
func (r *ContestRepo) ListWithFailedCredits(ctx context.Context) ([]*models.Contest, error) {
	return r.list(ctx, `
		SELECT `+contestColumns+` FROM contests
		WHERE prizes_distributed = TRUE AND jsonb_array_length(failed_credits) > 0
	`)
}

func (r *ContestRepo) list(ctx context.Context, query string, args ...any) ([]*models.Contest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
