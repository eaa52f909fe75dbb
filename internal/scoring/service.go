package scoring

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
)

// TaskStore is the minimal task repository interface for scoring.
type TaskStore interface {
	ListByContest(ctx context.Context, contestID uuid.UUID) ([]*models.Task, error)
}

// SubmissionStore is the minimal submission repository interface for scoring.
type SubmissionStore interface {
	ListApprovedByContest(ctx context.Context, contestID uuid.UUID) ([]*models.Submission, error)
}

// ParticipantStore is the minimal participant repository interface for scoring.
type ParticipantStore interface {
	ListByContest(ctx context.Context, contestID uuid.UUID) ([]*models.Participant, error)
	UpdateScore(ctx context.Context, contestID, userID uuid.UUID, score float64, breakdown []models.TaskScore) error
	SetFinalRank(ctx context.Context, contestID, userID uuid.UUID, rank int) error
}

// Service computes weighted scores and the final ranking. A task's
// weightage is its points divided by the contest's total points, so the
// maximum weighted score is always 100 regardless of how points are
// distributed across tasks.
type Service struct {
	Tasks        TaskStore
	Submissions  SubmissionStore
	Participants ParticipantStore
	Logger       *slog.Logger
}

func NewService(tasks TaskStore, submissions SubmissionStore, participants ParticipantStore, logger *slog.Logger) *Service {
	return &Service{Tasks: tasks, Submissions: submissions, Participants: participants, Logger: logger}
}

// Weightages maps each task to points/totalPoints. A contest whose tasks
// carry zero total points yields zero weightages across the board.
func Weightages(tasks []*models.Task) map[uuid.UUID]float64 {
	total := 0
	for _, t := range tasks {
		total += t.Points
	}
	out := make(map[uuid.UUID]float64, len(tasks))
	for _, t := range tasks {
		if total > 0 {
			out[t.ID] = float64(t.Points) / float64(total)
		} else {
			out[t.ID] = 0
		}
	}
	return out
}

// ComputeScore returns the participant's weighted score (rounded to two
// decimals) with its per-task breakdown. Only approved, scored
// submissions contribute; a task without one contributes nothing. The
// breakdown is never nil, so it persists as an empty jsonb array for
// participants with nothing scored.
func ComputeScore(tasks []*models.Task, submissions []*models.Submission) (float64, []models.TaskScore) {
	weightages := Weightages(tasks)
	byTask := make(map[uuid.UUID]*models.Submission, len(submissions))
	for _, s := range submissions {
		byTask[s.TaskID] = s
	}

	var total float64
	breakdown := make([]models.TaskScore, 0, len(tasks))
	for _, t := range tasks {
		sub, ok := byTask[t.ID]
		if !ok || sub.Score == nil {
			continue
		}
		weighted := float64(*sub.Score) * weightages[t.ID]
		total += weighted
		breakdown = append(breakdown, models.TaskScore{
			TaskID:          t.ID,
			TaskTitle:       t.Title,
			Points:          t.Points,
			Weightage:       weightages[t.ID],
			SubmissionScore: *sub.Score,
			WeightedScore:   round2(weighted),
		})
	}
	return round2(total), breakdown
}

// UpdateParticipantScore recomputes and persists one participant's score.
// Called when a submission of theirs gets reviewed.
func (s *Service) UpdateParticipantScore(ctx context.Context, contestID, userID uuid.UUID) (float64, error) {
	tasks, err := s.Tasks.ListByContest(ctx, contestID)
	if err != nil {
		return 0, err
	}
	submissions, err := s.Submissions.ListApprovedByContest(ctx, contestID)
	if err != nil {
		return 0, err
	}
	var mine []*models.Submission
	for _, sub := range submissions {
		if sub.UserID == userID {
			mine = append(mine, sub)
		}
	}
	score, breakdown := ComputeScore(tasks, mine)
	if err := s.Participants.UpdateScore(ctx, contestID, userID, score, breakdown); err != nil {
		return 0, err
	}
	s.Logger.Info("participant score updated", "contest_id", contestID, "user_id", userID, "score", score)
	return score, nil
}

// Ranked is one leaderboard row.
type Ranked struct {
	Participant *models.Participant
	Score       float64
	Rank        int
}

// RankAll recomputes every participant's score, persists scores and final
// ranks, and returns the leaderboard in rank order. Ties break on the
// earliest approved submission, then on user id so the order is total.
func (s *Service) RankAll(ctx context.Context, contestID uuid.UUID) ([]Ranked, error) {
	tasks, err := s.Tasks.ListByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.Submissions.ListApprovedByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	participants, err := s.Participants.ListByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	byUser := make(map[uuid.UUID][]*models.Submission)
	firstApproval := make(map[uuid.UUID]time.Time)
	for _, sub := range submissions {
		byUser[sub.UserID] = append(byUser[sub.UserID], sub)
		if sub.ApprovedAt != nil {
			if at, ok := firstApproval[sub.UserID]; !ok || sub.ApprovedAt.Before(at) {
				firstApproval[sub.UserID] = *sub.ApprovedAt
			}
		}
	}

	ranked := make([]Ranked, 0, len(participants))
	for _, p := range participants {
		score, breakdown := ComputeScore(tasks, byUser[p.UserID])
		if err := s.Participants.UpdateScore(ctx, contestID, p.UserID, score, breakdown); err != nil {
			return nil, err
		}
		p.WeightedScore = score
		ranked = append(ranked, Ranked{Participant: p, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, aok := firstApproval[a.Participant.UserID]
		bt, bok := firstApproval[b.Participant.UserID]
		if aok && bok && !at.Equal(bt) {
			return at.Before(bt)
		}
		if aok != bok {
			return aok
		}
		return a.Participant.UserID.String() < b.Participant.UserID.String()
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
		if err := s.Participants.SetFinalRank(ctx, contestID, ranked[i].Participant.UserID, i+1); err != nil {
			return nil, err
		}
	}
	return ranked, nil
}

// Share is one winner's cut of the prize pool.
type Share struct {
	UserID uuid.UUID
	Amount decimal.Decimal
	Rank   int
}

// PrizeShares splits pool across the ranked participants. Only scores
// above zero are eligible. Proportional shares are rounded to two
// decimals and the rounding residual goes to the top winner so the
// shares always sum to the pool exactly. Returns nil when nobody is
// eligible.
func PrizeShares(pool decimal.Decimal, mode string, ranked []Ranked) []Share {
	var eligible []Ranked
	for _, r := range ranked {
		if r.Score > 0 {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 || !pool.IsPositive() {
		return nil
	}

	if mode == models.DistributionWinnerTakeAll {
		return []Share{{UserID: eligible[0].Participant.UserID, Amount: pool, Rank: eligible[0].Rank}}
	}

	var totalScore float64
	for _, r := range eligible {
		totalScore += r.Score
	}

	shares := make([]Share, len(eligible))
	sum := decimal.Zero
	for i, r := range eligible {
		amount := pool.Mul(decimal.NewFromFloat(r.Score)).Div(decimal.NewFromFloat(totalScore)).Round(2)
		shares[i] = Share{UserID: r.Participant.UserID, Amount: amount, Rank: r.Rank}
		sum = sum.Add(amount)
	}
	if residual := pool.Sub(sum); !residual.IsZero() {
		shares[0].Amount = shares[0].Amount.Add(residual)
	}
	return shares
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
