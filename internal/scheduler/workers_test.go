package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/contestforge/backend/internal/models"
	"github.com/contestforge/backend/internal/prize"
)

type memContests struct {
	dueToStart      []*models.Contest
	dueForJudging   []*models.Contest
	dueForSettle    []*models.Contest
	statuses        map[uuid.UUID]string
}

func newMemContests() *memContests {
	return &memContests{statuses: map[uuid.UUID]string{}}
}

func (m *memContests) ListDueToStart(context.Context, time.Time) ([]*models.Contest, error) {
	return m.dueToStart, nil
}

func (m *memContests) ListDueForJudging(context.Context, time.Time) ([]*models.Contest, error) {
	return m.dueForJudging, nil
}

func (m *memContests) ListDueForSettlement(context.Context, time.Time) ([]*models.Contest, error) {
	return m.dueForSettle, nil
}

func (m *memContests) TransitionStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	if m.statuses[id] != from {
		return false, nil
	}
	m.statuses[id] = to
	return true, nil
}

type stubSettler struct {
	distributed map[uuid.UUID]int
	refunded    map[uuid.UUID]string
	distributeErr error
}

func newStubSettler() *stubSettler {
	return &stubSettler{distributed: map[uuid.UUID]int{}, refunded: map[uuid.UUID]string{}}
}

func (s *stubSettler) Distribute(_ context.Context, contestID, _ uuid.UUID, _ bool) (*prize.Result, error) {
	if s.distributeErr != nil {
		return nil, s.distributeErr
	}
	s.distributed[contestID]++
	return &prize.Result{ContestID: contestID}, nil
}

func (s *stubSettler) RefundPool(_ context.Context, contestID uuid.UUID, reason string) error {
	s.refunded[contestID] = reason
	return nil
}

func (s *stubSettler) RetryFailedCredits(context.Context) (int, int, error) { return 0, 0, nil }

type stubCounter struct{ approved map[uuid.UUID]int }

func (s *stubCounter) CountApprovedByContest(_ context.Context, id uuid.UUID) (int, error) {
	return s.approved[id], nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLifecycleWorkerAdvancesStatuses(t *testing.T) {
	starting := &models.Contest{ID: uuid.New()}
	ending := &models.Contest{ID: uuid.New()}
	contests := newMemContests()
	contests.dueToStart = []*models.Contest{starting}
	contests.dueForJudging = []*models.Contest{ending}
	contests.statuses[starting.ID] = models.ContestUpcoming
	contests.statuses[ending.ID] = models.ContestActive

	w := NewContestLifecycleWorker(contests, testLogger())
	if err := w.Work(context.Background(), &river.Job[ContestLifecycleArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if contests.statuses[starting.ID] != models.ContestActive {
		t.Errorf("starting contest status = %s, want active", contests.statuses[starting.ID])
	}
	if contests.statuses[ending.ID] != models.ContestJudging {
		t.Errorf("ending contest status = %s, want judging", contests.statuses[ending.ID])
	}
}

func TestSettlementWorkerDistributesWhenApproved(t *testing.T) {
	c := &models.Contest{ID: uuid.New()}
	contests := newMemContests()
	contests.dueForSettle = []*models.Contest{c}
	contests.statuses[c.ID] = models.ContestJudging
	settler := newStubSettler()
	counter := &stubCounter{approved: map[uuid.UUID]int{c.ID: 3}}

	w := NewContestSettlementWorker(contests, settler, counter, testLogger())
	if err := w.Work(context.Background(), &river.Job[ContestSettlementArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if contests.statuses[c.ID] != models.ContestCompleted {
		t.Errorf("status = %s, want completed", contests.statuses[c.ID])
	}
	if settler.distributed[c.ID] != 1 {
		t.Errorf("distributed %d times, want 1", settler.distributed[c.ID])
	}
	if _, refunded := settler.refunded[c.ID]; refunded {
		t.Error("contest with approved submissions must not be refunded")
	}
}

func TestSettlementWorkerRefundsWithoutSubmissions(t *testing.T) {
	c := &models.Contest{ID: uuid.New()}
	contests := newMemContests()
	contests.dueForSettle = []*models.Contest{c}
	contests.statuses[c.ID] = models.ContestJudging
	settler := newStubSettler()
	counter := &stubCounter{approved: map[uuid.UUID]int{}}

	w := NewContestSettlementWorker(contests, settler, counter, testLogger())
	if err := w.Work(context.Background(), &river.Job[ContestSettlementArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if settler.distributed[c.ID] != 0 {
		t.Error("nothing approved, nothing to distribute")
	}
	if reason := settler.refunded[c.ID]; reason != "no approved submissions" {
		t.Errorf("refund reason = %q", reason)
	}
}

func TestSettlementWorkerRefundsWhenNoEligibleWinners(t *testing.T) {
	c := &models.Contest{ID: uuid.New()}
	contests := newMemContests()
	contests.dueForSettle = []*models.Contest{c}
	contests.statuses[c.ID] = models.ContestJudging
	settler := newStubSettler()
	settler.distributeErr = prize.ErrNoEligibleWinners
	counter := &stubCounter{approved: map[uuid.UUID]int{c.ID: 2}}

	w := NewContestSettlementWorker(contests, settler, counter, testLogger())
	if err := w.Work(context.Background(), &river.Job[ContestSettlementArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if reason := settler.refunded[c.ID]; reason != "no eligible winners" {
		t.Errorf("refund reason = %q", reason)
	}
}

func TestSettlementWorkerSkipsLostRaces(t *testing.T) {
	c := &models.Contest{ID: uuid.New()}
	contests := newMemContests()
	contests.dueForSettle = []*models.Contest{c}
	contests.statuses[c.ID] = models.ContestCompleted // another node already moved it
	settler := newStubSettler()
	counter := &stubCounter{approved: map[uuid.UUID]int{c.ID: 3}}

	w := NewContestSettlementWorker(contests, settler, counter, testLogger())
	if err := w.Work(context.Background(), &river.Job[ContestSettlementArgs]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if settler.distributed[c.ID] != 0 {
		t.Error("lost race must not trigger a second settlement")
	}
}
