package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contestforge/backend/internal/models"
)

const submissionColumns = `id, contest_id, task_id, user_id, status, score, feedback, submitted_at, approved_at`

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

// ListApprovedByContest returns every approved, scored submission in the
// contest, oldest approval first.
func (r *SubmissionRepo) ListApprovedByContest(ctx context.Context, contestID uuid.UUID) ([]*models.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM contest_submissions
		WHERE contest_id = $1 AND status = 'approved' AND score IS NOT NULL
		ORDER BY approved_at
	`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Submission
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.ContestID, &s.TaskID, &s.UserID, &s.Status, &s.Score,
			&s.Feedback, &s.SubmittedAt, &s.ApprovedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

func (r *SubmissionRepo) CountByContest(ctx context.Context, contestID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM contest_submissions WHERE contest_id = $1
	`, contestID).Scan(&n)
	return n, err
}

func (r *SubmissionRepo) CountApprovedByContest(ctx context.Context, contestID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM contest_submissions
		WHERE contest_id = $1 AND status = 'approved' AND score IS NOT NULL
	`, contestID).Scan(&n)
	return n, err
}
