package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
)

const participantColumns = `id, contest_id, user_id, username, weighted_score, task_scores, earnings,
	final_rank, prize_distributed, credit_failed, credit_error, prize_distributed_at, joined_at, updated_at`

type ParticipantRepo struct {
	pool *pgxpool.Pool
}

func NewParticipantRepo(pool *pgxpool.Pool) *ParticipantRepo {
	return &ParticipantRepo{pool: pool}
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.ContestID, &p.UserID, &p.Username, &p.WeightedScore, &p.TaskScores,
		&p.Earnings, &p.FinalRank, &p.PrizeDistributed, &p.CreditFailed, &p.CreditError,
		&p.PrizeDistributedAt, &p.JoinedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create registers a user as a participant. The unique index on
// (contest_id, user_id) makes a second join a no-op; the bool reports
// whether a row was actually inserted.
func (r *ParticipantRepo) Create(ctx context.Context, contestID, userID uuid.UUID, username string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO contest_participants (id, contest_id, user_id, username, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (contest_id, user_id) DO NOTHING
	`, uuid.New(), contestID, userID, username)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ParticipantRepo) CountByContest(ctx context.Context, contestID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM contest_participants WHERE contest_id = $1`, contestID).Scan(&n)
	return n, err
}

func (r *ParticipantRepo) ListByContest(ctx context.Context, contestID uuid.UUID) ([]*models.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+` FROM contest_participants
		WHERE contest_id = $1 ORDER BY joined_at
	`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *ParticipantRepo) Get(ctx context.Context, contestID, userID uuid.UUID) (*models.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM contest_participants
		WHERE contest_id = $1 AND user_id = $2
	`, contestID, userID)
	p, err := scanParticipant(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// UpdateScore persists the recomputed weighted score with its per-task
// breakdown. A nil breakdown would encode as jsonb NULL, which
// task_scores rejects.
func (r *ParticipantRepo) UpdateScore(ctx context.Context, contestID, userID uuid.UUID, score float64, breakdown []models.TaskScore) error {
	if breakdown == nil {
		breakdown = []models.TaskScore{}
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE contest_participants
		SET weighted_score = $3, task_scores = $4, updated_at = now()
		WHERE contest_id = $1 AND user_id = $2
	`, contestID, userID, score, breakdown)
	return err
}

func (r *ParticipantRepo) SetFinalRank(ctx context.Context, contestID, userID uuid.UUID, rank int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contest_participants SET final_rank = $3, updated_at = now()
		WHERE contest_id = $1 AND user_id = $2
	`, contestID, userID, rank)
	return err
}

// RecordPrizeResult stores the outcome of one winner credit. A success
// clears any earlier failure flag so retries converge.
func (r *ParticipantRepo) RecordPrizeResult(ctx context.Context, contestID, userID uuid.UUID, amount decimal.Decimal, creditErr *string) error {
	if creditErr != nil {
		_, err := r.pool.Exec(ctx, `
			UPDATE contest_participants
			SET credit_failed = TRUE, credit_error = $3, updated_at = now()
			WHERE contest_id = $1 AND user_id = $2
		`, contestID, userID, *creditErr)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE contest_participants
		SET earnings = $3, prize_distributed = TRUE, prize_distributed_at = now(),
		    credit_failed = FALSE, credit_error = NULL, updated_at = now()
		WHERE contest_id = $1 AND user_id = $2
	`, contestID, userID, amount)
	return err
}
