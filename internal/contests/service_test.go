package contests

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/fees"
	"github.com/contestforge/backend/internal/models"
)

type memContests struct {
	byID map[uuid.UUID]*models.Contest
}

func newMemContests() *memContests {
	return &memContests{byID: map[uuid.UUID]*models.Contest{}}
}

func (m *memContests) Get(_ context.Context, id uuid.UUID) (*models.Contest, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memContests) Create(_ context.Context, c *models.Contest) error {
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memContests) MarkPoolLocked(_ context.Context, id uuid.UUID) error {
	if c, ok := m.byID[id]; ok {
		c.PrizePoolLocked = true
	}
	return nil
}

func (m *memContests) TransitionStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	c, ok := m.byID[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

type memParticipants struct {
	members map[uuid.UUID][]*models.Participant
}

func newMemParticipants() *memParticipants {
	return &memParticipants{members: map[uuid.UUID][]*models.Participant{}}
}

func (m *memParticipants) Create(_ context.Context, contestID, userID uuid.UUID, username string) (bool, error) {
	for _, p := range m.members[contestID] {
		if p.UserID == userID {
			return false, nil
		}
	}
	m.members[contestID] = append(m.members[contestID], &models.Participant{
		ContestID: contestID, UserID: userID, Username: username,
	})
	return true, nil
}

func (m *memParticipants) CountByContest(_ context.Context, contestID uuid.UUID) (int, error) {
	return len(m.members[contestID]), nil
}

func (m *memParticipants) ListByContest(_ context.Context, contestID uuid.UUID) ([]*models.Participant, error) {
	return m.members[contestID], nil
}

type stubFees struct {
	fee          decimal.Decimal
	validateErr  error
	chargeErr    error
	charged      []uuid.UUID
	feeRefunds   []decimal.Decimal
	refundAmount decimal.Decimal
}

func (s *stubFees) ValidateCreation(_ context.Context, _ uuid.UUID, pool decimal.Decimal, _ int) (*fees.Quote, error) {
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return &fees.Quote{PrizePool: pool, CreationFee: s.fee, TotalCost: pool.Add(s.fee)}, nil
}

func (s *stubFees) ChargeCreation(_ context.Context, c *models.Contest, _ decimal.Decimal) error {
	if s.chargeErr != nil {
		return s.chargeErr
	}
	s.charged = append(s.charged, c.ID)
	return nil
}

func (s *stubFees) RefundCreationFee(_ context.Context, _ *models.Contest, feePaid decimal.Decimal) (decimal.Decimal, error) {
	s.feeRefunds = append(s.feeRefunds, feePaid)
	return s.refundAmount, nil
}

type stubRefunder struct {
	refunded map[uuid.UUID]string
}

func (s *stubRefunder) RefundPool(_ context.Context, contestID uuid.UUID, reason string) error {
	if s.refunded == nil {
		s.refunded = map[uuid.UUID]string{}
	}
	s.refunded[contestID] = reason
	return nil
}

type stubTxns struct {
	byKey map[string]*models.Transaction
}

func (s *stubTxns) GetByIdempotencyKey(_ context.Context, key string) (*models.Transaction, error) {
	return s.byKey[key], nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService() (*Service, *memContests, *memParticipants, *stubFees, *stubRefunder, *stubTxns) {
	contests := newMemContests()
	participants := newMemParticipants()
	feeSvc := &stubFees{fee: dec("100")}
	refunder := &stubRefunder{}
	txns := &stubTxns{byKey: map[string]*models.Transaction{}}
	svc := NewService(contests, participants, feeSvc, refunder, txns,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	return svc, contests, participants, feeSvc, refunder, txns
}

func validInput(owner uuid.UUID) CreateInput {
	return CreateInput{
		OwnerID:         owner,
		Title:           "Spring sprint",
		TotalPrize:      dec("1000"),
		MaxParticipants: 50,
		StartDate:       time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateChargesAndPromotes(t *testing.T) {
	svc, contests, _, feeSvc, _, _ := newTestService()
	owner := uuid.New()

	contest, err := svc.Create(context.Background(), validInput(owner))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if contest.Status != models.ContestUpcoming {
		t.Errorf("status = %s, want upcoming", contest.Status)
	}
	if contest.DistributionMode != models.DistributionProportional {
		t.Errorf("mode = %s, want proportional default", contest.DistributionMode)
	}
	if len(feeSvc.charged) != 1 || feeSvc.charged[0] != contest.ID {
		t.Error("creation was not charged exactly once")
	}
	if stored := contests.byID[contest.ID]; stored.Status != models.ContestUpcoming {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestCreateFailedChargeLeavesDraft(t *testing.T) {
	svc, contests, _, feeSvc, _, _ := newTestService()
	feeSvc.chargeErr = errors.New("debit failed")

	_, err := svc.Create(context.Background(), validInput(uuid.New()))
	if err == nil {
		t.Fatal("expected charge error")
	}
	for _, c := range contests.byID {
		if c.Status != models.ContestDraft {
			t.Errorf("unfunded contest status = %s, want draft", c.Status)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, feeSvc, _, _ := newTestService()
	owner := uuid.New()

	in := validInput(owner)
	in.Title = ""
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidTitle) {
		t.Errorf("empty title: %v", err)
	}

	in = validInput(owner)
	in.EndDate = in.StartDate.Add(-time.Hour)
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("end before start: %v", err)
	}

	in = validInput(owner)
	in.StartDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in.EndDate = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("already ended: %v", err)
	}

	feeSvc.validateErr = fees.ErrInsufficientFunds
	if _, err := svc.Create(context.Background(), validInput(owner)); !errors.Is(err, fees.ErrInsufficientFunds) {
		t.Errorf("fee validation error not surfaced: %v", err)
	}
}

func TestCancelRefundsPoolAndFee(t *testing.T) {
	svc, contests, _, feeSvc, refunder, txns := newTestService()
	owner := uuid.New()
	contest, err := svc.Create(context.Background(), validInput(owner))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	contests.byID[contest.ID].PrizePoolLocked = true
	txns.byKey["CONTEST_FEE_"+contest.ID.String()] = &models.Transaction{Amount: dec("100")}
	feeSvc.refundAmount = dec("95")

	if err := svc.Cancel(context.Background(), contest.ID, owner, false, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if contests.byID[contest.ID].Status != models.ContestCancelled {
		t.Errorf("status = %s, want cancelled", contests.byID[contest.ID].Status)
	}
	if reason := refunder.refunded[contest.ID]; reason != "cancelled by owner" {
		t.Errorf("pool refund reason = %q", reason)
	}
	if len(feeSvc.feeRefunds) != 1 || !feeSvc.feeRefunds[0].Equal(dec("100")) {
		t.Errorf("fee refund called with %v, want the recorded 100", feeSvc.feeRefunds)
	}
}

func TestCancelOnlyOwnerOrAdmin(t *testing.T) {
	svc, _, _, _, _, _ := newTestService()
	owner := uuid.New()
	contest, _ := svc.Create(context.Background(), validInput(owner))

	if err := svc.Cancel(context.Background(), contest.ID, uuid.New(), false, ""); !errors.Is(err, ErrNotOwner) {
		t.Errorf("stranger cancel: %v", err)
	}
	if err := svc.Cancel(context.Background(), contest.ID, uuid.New(), true, "policy violation"); err != nil {
		t.Errorf("admin cancel: %v", err)
	}
}

func TestCancelRejectsStartedContest(t *testing.T) {
	svc, contests, _, _, _, _ := newTestService()
	owner := uuid.New()
	contest, _ := svc.Create(context.Background(), validInput(owner))
	contests.byID[contest.ID].Status = models.ContestActive

	if err := svc.Cancel(context.Background(), contest.ID, owner, false, ""); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("active contest cancel: %v", err)
	}
}

func TestJoinEnforcesCapacityAndMembership(t *testing.T) {
	svc, contests, _, _, _, _ := newTestService()
	owner := uuid.New()
	in := validInput(owner)
	in.MaxParticipants = 2
	contest, _ := svc.Create(context.Background(), in)
	contests.byID[contest.ID].Status = models.ContestActive

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	if _, err := svc.Join(context.Background(), contest.ID, alice, "alice"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := svc.Join(context.Background(), contest.ID, alice, "alice"); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("double join: %v", err)
	}
	if _, err := svc.Join(context.Background(), contest.ID, bob, "bob"); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if _, err := svc.Join(context.Background(), contest.ID, carol, "carol"); !errors.Is(err, ErrContestFull) {
		t.Errorf("join over capacity: %v", err)
	}
	if _, err := svc.Join(context.Background(), contest.ID, owner, "owner"); !errors.Is(err, ErrOwnerCannotJoin) {
		t.Errorf("owner join: %v", err)
	}
}

func TestJoinRequiresOpenContest(t *testing.T) {
	svc, contests, _, _, _, _ := newTestService()
	contest, _ := svc.Create(context.Background(), validInput(uuid.New()))
	contests.byID[contest.ID].Status = models.ContestCompleted

	if _, err := svc.Join(context.Background(), contest.ID, uuid.New(), "late"); !errors.Is(err, ErrNotJoinable) {
		t.Errorf("join completed contest: %v", err)
	}
}

func TestLeaderboardOrdersByRankThenScore(t *testing.T) {
	svc, contests, participants, _, _, _ := newTestService()
	contest, _ := svc.Create(context.Background(), validInput(uuid.New()))
	contests.byID[contest.ID].Status = models.ContestCompleted

	rank1, rank2 := 1, 2
	participants.members[contest.ID] = []*models.Participant{
		{UserID: uuid.New(), Username: "silver", WeightedScore: 70, FinalRank: &rank2, Earnings: dec("200")},
		{UserID: uuid.New(), Username: "gold", WeightedScore: 90, FinalRank: &rank1, Earnings: dec("800")},
		{UserID: uuid.New(), Username: "scoreless", WeightedScore: 0, Earnings: decimal.Zero},
	}

	entries, err := svc.Leaderboard(context.Background(), contest.ID)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	want := []string{"gold", "silver", "scoreless"}
	for i, name := range want {
		if entries[i].Username != name {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Username, name)
		}
	}
}
