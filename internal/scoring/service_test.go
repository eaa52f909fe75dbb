package scoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/models"
)

type memTasks struct{ tasks []*models.Task }

func (m *memTasks) ListByContest(context.Context, uuid.UUID) ([]*models.Task, error) {
	return m.tasks, nil
}

type memSubmissions struct{ subs []*models.Submission }

func (m *memSubmissions) ListApprovedByContest(context.Context, uuid.UUID) ([]*models.Submission, error) {
	return m.subs, nil
}

type memParticipants struct {
	participants []*models.Participant
	scores       map[uuid.UUID]float64
	ranks        map[uuid.UUID]int
}

func newMemParticipants(ps ...*models.Participant) *memParticipants {
	return &memParticipants{
		participants: ps,
		scores:       map[uuid.UUID]float64{},
		ranks:        map[uuid.UUID]int{},
	}
}

func (m *memParticipants) ListByContest(context.Context, uuid.UUID) ([]*models.Participant, error) {
	return m.participants, nil
}

func (m *memParticipants) UpdateScore(_ context.Context, _, userID uuid.UUID, score float64, breakdown []models.TaskScore) error {
	if breakdown == nil {
		// task_scores is NOT NULL; a nil slice reaches it as jsonb NULL.
		return errors.New(`null value in column "task_scores" violates not-null constraint`)
	}
	m.scores[userID] = score
	return nil
}

func (m *memParticipants) SetFinalRank(_ context.Context, _, userID uuid.UUID, rank int) error {
	m.ranks[userID] = rank
	return nil
}

func intPtr(n int) *int { return &n }

func approvedSub(taskID, userID uuid.UUID, score int, approvedAt time.Time) *models.Submission {
	return &models.Submission{
		ID: uuid.New(), TaskID: taskID, UserID: userID,
		Status: models.SubmissionApproved, Score: intPtr(score), ApprovedAt: &approvedAt,
	}
}

func TestComputeScoreWeightsByPoints(t *testing.T) {
	userID := uuid.New()
	tasks := []*models.Task{
		{ID: uuid.New(), Title: "design", Points: 90},
		{ID: uuid.New(), Title: "build", Points: 23},
		{ID: uuid.New(), Title: "writeup", Points: 30},
	}
	now := time.Now()
	subs := []*models.Submission{
		approvedSub(tasks[0].ID, userID, 100, now),
		approvedSub(tasks[1].ID, userID, 80, now),
		approvedSub(tasks[2].ID, userID, 60, now),
	}

	score, breakdown := ComputeScore(tasks, subs)
	if score != 88.39 {
		t.Errorf("score = %v, want 88.39", score)
	}
	if len(breakdown) != 3 {
		t.Fatalf("breakdown rows = %d, want 3", len(breakdown))
	}
}

func TestComputeScoreSkipsUnscoredTasks(t *testing.T) {
	userID := uuid.New()
	tasks := []*models.Task{
		{ID: uuid.New(), Points: 50},
		{ID: uuid.New(), Points: 50},
	}
	subs := []*models.Submission{
		approvedSub(tasks[0].ID, userID, 100, time.Now()),
	}

	score, breakdown := ComputeScore(tasks, subs)
	if score != 50 {
		t.Errorf("score = %v, want 50 (only half the weight earned)", score)
	}
	if len(breakdown) != 1 {
		t.Errorf("breakdown rows = %d, want 1", len(breakdown))
	}
}

func TestComputeScoreNoSubmissions(t *testing.T) {
	tasks := []*models.Task{{ID: uuid.New(), Points: 100}}

	score, breakdown := ComputeScore(tasks, nil)
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
	if breakdown == nil || len(breakdown) != 0 {
		t.Errorf("breakdown = %#v, want empty non-nil slice", breakdown)
	}
}

func TestComputeScoreZeroTotalPoints(t *testing.T) {
	userID := uuid.New()
	tasks := []*models.Task{{ID: uuid.New(), Points: 0}}
	subs := []*models.Submission{approvedSub(tasks[0].ID, userID, 100, time.Now())}

	score, _ := ComputeScore(tasks, subs)
	if score != 0 {
		t.Errorf("score = %v, want 0 when tasks carry no points", score)
	}
}

func TestRankAllOrdersAndBreaksTies(t *testing.T) {
	contestID := uuid.New()
	taskID := uuid.New()
	tasks := &memTasks{tasks: []*models.Task{{ID: taskID, Points: 100}}}

	alice := &models.Participant{ID: uuid.New(), UserID: uuid.New(), Username: "alice"}
	bob := &models.Participant{ID: uuid.New(), UserID: uuid.New(), Username: "bob"}
	carol := &models.Participant{ID: uuid.New(), UserID: uuid.New(), Username: "carol"}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	subs := &memSubmissions{subs: []*models.Submission{
		// bob and carol tie on 70; bob was approved first.
		approvedSub(taskID, alice.UserID, 90, base.Add(2*time.Hour)),
		approvedSub(taskID, bob.UserID, 70, base),
		approvedSub(taskID, carol.UserID, 70, base.Add(time.Hour)),
	}}
	participants := newMemParticipants(alice, bob, carol)

	svc := NewService(tasks, subs, participants, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ranked, err := svc.RankAll(context.Background(), contestID)
	if err != nil {
		t.Fatalf("RankAll: %v", err)
	}
	want := []uuid.UUID{alice.UserID, bob.UserID, carol.UserID}
	for i, userID := range want {
		if ranked[i].Participant.UserID != userID {
			t.Errorf("rank %d = %s, want %s", i+1, ranked[i].Participant.Username, userID)
		}
	}
	if participants.ranks[bob.UserID] != 2 || participants.ranks[carol.UserID] != 3 {
		t.Errorf("tie-break ranks: bob=%d carol=%d, want 2/3",
			participants.ranks[bob.UserID], participants.ranks[carol.UserID])
	}
}

func TestRankAllPersistsScorelessParticipants(t *testing.T) {
	contestID := uuid.New()
	taskID := uuid.New()
	tasks := &memTasks{tasks: []*models.Task{{ID: taskID, Points: 100}}}

	alice := &models.Participant{ID: uuid.New(), UserID: uuid.New(), Username: "alice"}
	idle := &models.Participant{ID: uuid.New(), UserID: uuid.New(), Username: "idle"}
	subs := &memSubmissions{subs: []*models.Submission{
		approvedSub(taskID, alice.UserID, 80, time.Now()),
	}}
	participants := newMemParticipants(alice, idle)

	svc := NewService(tasks, subs, participants, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ranked, err := svc.RankAll(context.Background(), contestID)
	if err != nil {
		t.Fatalf("RankAll with a scoreless participant: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked = %d participants, want 2", len(ranked))
	}
	if got, ok := participants.scores[idle.UserID]; !ok || got != 0 {
		t.Errorf("scoreless participant score = %v (recorded=%v), want 0 recorded", got, ok)
	}
}

func TestPrizeSharesProportional(t *testing.T) {
	a := Ranked{Participant: &models.Participant{UserID: uuid.New()}, Score: 80, Rank: 1}
	b := Ranked{Participant: &models.Participant{UserID: uuid.New()}, Score: 20, Rank: 2}

	shares := PrizeShares(decimal.NewFromInt(1000), models.DistributionProportional, []Ranked{a, b})
	if len(shares) != 2 {
		t.Fatalf("shares = %d, want 2", len(shares))
	}
	if !shares[0].Amount.Equal(decimal.NewFromInt(800)) || !shares[1].Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("shares = %s/%s, want 800/200", shares[0].Amount, shares[1].Amount)
	}
}

func TestPrizeSharesRoundingResidualGoesToTop(t *testing.T) {
	pool := decimal.NewFromInt(100)
	ranked := []Ranked{
		{Participant: &models.Participant{UserID: uuid.New()}, Score: 33.33, Rank: 1},
		{Participant: &models.Participant{UserID: uuid.New()}, Score: 33.33, Rank: 2},
		{Participant: &models.Participant{UserID: uuid.New()}, Score: 33.33, Rank: 3},
	}

	shares := PrizeShares(pool, models.DistributionProportional, ranked)
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(pool) {
		t.Errorf("shares sum to %s, want exactly %s", sum, pool)
	}
	if !shares[0].Amount.GreaterThanOrEqual(shares[1].Amount) {
		t.Errorf("residual should land on the top winner: %s < %s", shares[0].Amount, shares[1].Amount)
	}
}

func TestPrizeSharesWinnerTakesAll(t *testing.T) {
	winner := Ranked{Participant: &models.Participant{UserID: uuid.New()}, Score: 55, Rank: 1}
	second := Ranked{Participant: &models.Participant{UserID: uuid.New()}, Score: 54, Rank: 2}

	shares := PrizeShares(decimal.NewFromInt(500), models.DistributionWinnerTakeAll, []Ranked{winner, second})
	if len(shares) != 1 {
		t.Fatalf("shares = %d, want 1", len(shares))
	}
	if shares[0].UserID != winner.Participant.UserID || !shares[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("winner share = %s for %s", shares[0].Amount, shares[0].UserID)
	}
}

func TestPrizeSharesNoEligibleWinners(t *testing.T) {
	zero := Ranked{Participant: &models.Participant{UserID: uuid.New()}, Score: 0, Rank: 1}
	if shares := PrizeShares(decimal.NewFromInt(1000), models.DistributionProportional, []Ranked{zero}); shares != nil {
		t.Errorf("shares = %v, want nil when all scores are zero", shares)
	}
}
