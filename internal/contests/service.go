package contests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/fees"
	"github.com/contestforge/backend/internal/models"
)

var (
	ErrNotFound         = errors.New("contest not found")
	ErrNotOwner         = errors.New("only the contest owner or an admin can do this")
	ErrInvalidSchedule  = errors.New("contest dates are invalid")
	ErrInvalidTitle     = errors.New("contest title is required")
	ErrNotCancellable   = errors.New("contest can no longer be cancelled")
	ErrNotJoinable      = errors.New("contest is not open for joining")
	ErrContestFull      = errors.New("contest has reached its participant limit")
	ErrAlreadyJoined    = errors.New("already joined this contest")
	ErrOwnerCannotJoin  = errors.New("the contest owner cannot join their own contest")
)

// Store is the contest repository surface the lifecycle service needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	Create(ctx context.Context, c *models.Contest) error
	MarkPoolLocked(ctx context.Context, id uuid.UUID) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// ParticipantStore manages contest membership and the leaderboard rows.
type ParticipantStore interface {
	Create(ctx context.Context, contestID, userID uuid.UUID, username string) (bool, error)
	CountByContest(ctx context.Context, contestID uuid.UUID) (int, error)
	ListByContest(ctx context.Context, contestID uuid.UUID) ([]*models.Participant, error)
}

// FeeCharger is the fee engine surface for creation and cancellation.
type FeeCharger interface {
	ValidateCreation(ctx context.Context, ownerID uuid.UUID, pool decimal.Decimal, maxParticipants int) (*fees.Quote, error)
	ChargeCreation(ctx context.Context, contest *models.Contest, fee decimal.Decimal) error
	RefundCreationFee(ctx context.Context, contest *models.Contest, feePaid decimal.Decimal) (decimal.Decimal, error)
}

// Refunder releases a cancelled contest's locked prize pool.
type Refunder interface {
	RefundPool(ctx context.Context, contestID uuid.UUID, reason string) error
}

// FeeLookup resolves how much creation fee a contest actually paid, by
// its idempotency key. Cancellation refunds the recorded amount rather
// than repricing under possibly changed config.
type FeeLookup interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
}

// Service runs the contest lifecycle around the money engines: creation
// charges and locks, cancellation unwinds both legs.
type Service struct {
	Contests     Store
	Participants ParticipantStore
	Fees         FeeCharger
	Settlement   Refunder
	Txns         FeeLookup
	Logger       *slog.Logger
	now          func() time.Time
}

func NewService(contests Store, participants ParticipantStore, feeSvc FeeCharger, settlement Refunder, txns FeeLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Contests:     contests,
		Participants: participants,
		Fees:         feeSvc,
		Settlement:   settlement,
		Txns:         txns,
		Logger:       logger,
		now:          time.Now,
	}
}

// CreateInput is the owner-supplied contest definition.
type CreateInput struct {
	OwnerID          uuid.UUID
	Title            string
	TotalPrize       decimal.Decimal
	MaxParticipants  int
	DistributionMode string
	StartDate        time.Time
	EndDate          time.Time
	GracePeriodHours int
}

func (in *CreateInput) validate(now time.Time) error {
	if in.Title == "" {
		return ErrInvalidTitle
	}
	if !in.EndDate.After(in.StartDate) || in.EndDate.Before(now) {
		return ErrInvalidSchedule
	}
	if in.DistributionMode == "" {
		in.DistributionMode = models.DistributionProportional
	}
	if in.DistributionMode != models.DistributionProportional &&
		in.DistributionMode != models.DistributionWinnerTakeAll {
		return fmt.Errorf("unknown distribution mode %q", in.DistributionMode)
	}
	if in.GracePeriodHours <= 0 {
		in.GracePeriodHours = 24
	}
	return nil
}

// Create validates, persists, and funds a new contest. The row is
// written as a draft first so a failed charge leaves an unfunded draft
// instead of a live contest; only a successful charge promotes it to
// upcoming.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Contest, error) {
	now := s.now().UTC()
	if err := in.validate(now); err != nil {
		return nil, err
	}
	quote, err := s.Fees.ValidateCreation(ctx, in.OwnerID, in.TotalPrize, in.MaxParticipants)
	if err != nil {
		return nil, err
	}

	contest := &models.Contest{
		ID:               uuid.New(),
		OwnerID:          in.OwnerID,
		Title:            in.Title,
		Status:           models.ContestDraft,
		DistributionMode: in.DistributionMode,
		TotalPrize:       in.TotalPrize,
		MaxParticipants:  in.MaxParticipants,
		StartDate:        in.StartDate.UTC(),
		EndDate:          in.EndDate.UTC(),
		GracePeriodHours: in.GracePeriodHours,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Contests.Create(ctx, contest); err != nil {
		return nil, fmt.Errorf("creating contest: %w", err)
	}

	if err := s.Fees.ChargeCreation(ctx, contest, quote.CreationFee); err != nil {
		return nil, err
	}
	if err := s.Contests.MarkPoolLocked(ctx, contest.ID); err != nil {
		return nil, err
	}
	contest.PrizePoolLocked = true

	promoted, err := s.Contests.TransitionStatus(ctx, contest.ID, models.ContestDraft, models.ContestUpcoming)
	if err != nil {
		return nil, err
	}
	if promoted {
		contest.Status = models.ContestUpcoming
	}
	s.Logger.Info("contest created", "contest_id", contest.ID, "owner_id", in.OwnerID,
		"pool", in.TotalPrize, "fee", quote.CreationFee)
	return contest, nil
}

// Cancel withdraws a contest before it starts. The prize pool is
// unlocked in full and the creation fee partially refunded per config.
// Only draft and upcoming contests qualify; once participants are
// competing the pool is committed until settlement.
func (s *Service) Cancel(ctx context.Context, contestID, actorID uuid.UUID, isAdmin bool, reason string) error {
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		return err
	}
	if contest == nil {
		return ErrNotFound
	}
	if !isAdmin && contest.OwnerID != actorID {
		return ErrNotOwner
	}
	if contest.Status != models.ContestDraft && contest.Status != models.ContestUpcoming {
		return ErrNotCancellable
	}

	cancelled, err := s.Contests.TransitionStatus(ctx, contestID, contest.Status, models.ContestCancelled)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrNotCancellable
	}

	if reason == "" {
		reason = "cancelled by owner"
	}
	if contest.PrizePoolLocked {
		if err := s.Settlement.RefundPool(ctx, contestID, reason); err != nil {
			return fmt.Errorf("refunding prize pool: %w", err)
		}
	}

	feePaid := decimal.Zero
	feeTxn, err := s.Txns.GetByIdempotencyKey(ctx, "CONTEST_FEE_"+contestID.String())
	if err != nil {
		return err
	}
	if feeTxn != nil {
		feePaid = feeTxn.Amount
	}
	refunded, err := s.Fees.RefundCreationFee(ctx, contest, feePaid)
	if err != nil {
		return err
	}

	s.Logger.Info("contest cancelled", "contest_id", contestID, "reason", reason,
		"fee_refunded", refunded)
	return nil
}

// Join registers the caller as a participant, enforcing the capacity
// cap. The membership insert is idempotent at the database level, so a
// double join reports ErrAlreadyJoined without a second row.
func (s *Service) Join(ctx context.Context, contestID, userID uuid.UUID, username string) (*models.Contest, error) {
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrNotFound
	}
	if contest.OwnerID == userID {
		return nil, ErrOwnerCannotJoin
	}
	if contest.Status != models.ContestUpcoming && contest.Status != models.ContestActive {
		return nil, ErrNotJoinable
	}
	count, err := s.Participants.CountByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.MaxParticipants > 0 && count >= contest.MaxParticipants {
		return nil, ErrContestFull
	}

	joined, err := s.Participants.Create(ctx, contestID, userID, username)
	if err != nil {
		return nil, err
	}
	if !joined {
		return nil, ErrAlreadyJoined
	}
	s.Logger.Info("participant joined", "contest_id", contestID, "user_id", userID)
	return contest, nil
}

// Get returns one contest.
func (s *Service) Get(ctx context.Context, contestID uuid.UUID) (*models.Contest, error) {
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrNotFound
	}
	return contest, nil
}

// LeaderboardEntry is one row of the public standings.
type LeaderboardEntry struct {
	UserID        uuid.UUID       `json:"user_id"`
	Username      string          `json:"username"`
	WeightedScore float64         `json:"weighted_score"`
	FinalRank     *int            `json:"final_rank,omitempty"`
	Earnings      decimal.Decimal `json:"earnings"`
}

// Leaderboard lists participants best first. Final ranks exist only
// after settlement; before that the order is the live weighted score.
func (s *Service) Leaderboard(ctx context.Context, contestID uuid.UUID) ([]LeaderboardEntry, error) {
	contest, err := s.Contests.Get(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrNotFound
	}
	participants, err := s.Participants.ListByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, LeaderboardEntry{
			UserID:        p.UserID,
			Username:      p.Username,
			WeightedScore: p.WeightedScore,
			FinalRank:     p.FinalRank,
			Earnings:      p.Earnings,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return leaderboardLess(entries[i], entries[j])
	})
	return entries, nil
}

func leaderboardLess(a, b LeaderboardEntry) bool {
	if a.FinalRank != nil && b.FinalRank != nil && *a.FinalRank != *b.FinalRank {
		return *a.FinalRank < *b.FinalRank
	}
	if a.WeightedScore != b.WeightedScore {
		return a.WeightedScore > b.WeightedScore
	}
	return a.Username < b.Username
}
