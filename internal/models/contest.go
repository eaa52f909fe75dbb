package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Contest status values.
const (
	ContestDraft     = "draft"
	ContestUpcoming  = "upcoming"
	ContestActive    = "active"
	ContestJudging   = "judging"
	ContestCompleted = "completed"
	ContestCancelled = "cancelled"
)

// Submission status values. Only approved submissions with a score count
// toward a participant's weighted score.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Prize distribution modes.
const (
	DistributionProportional  = "proportional"
	DistributionWinnerTakeAll = "winner_takes_all"
)

// FailedCredit records a winner credit that failed during distribution
// and is awaiting retry by the scheduler.
type FailedCredit struct {
	UserID uuid.UUID       `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Error  string          `json:"error"`
}

// Contest carries the settlement-relevant state inline: the two
// in-progress flags are compare-and-swap mutexes shared by the API and
// the scheduler.
type Contest struct {
	ID                     uuid.UUID       `json:"id"`
	OwnerID                uuid.UUID       `json:"owner_id"`
	Title                  string          `json:"title"`
	Status                 string          `json:"status"`
	DistributionMode       string          `json:"distribution_mode"`
	TotalPrize             decimal.Decimal `json:"total_prize"`
	MaxParticipants        int             `json:"max_participants"`
	StartDate              time.Time       `json:"start_date"`
	EndDate                time.Time       `json:"end_date"`
	GracePeriodHours       int             `json:"grace_period_hours"`
	PrizePoolLocked        bool            `json:"prize_pool_locked"`
	PrizesDistributed      bool            `json:"prizes_distributed"`
	DistributionInProgress bool            `json:"distribution_in_progress"`
	RefundProcessed        bool            `json:"refund_processed"`
	RefundInProgress       bool            `json:"refund_in_progress"`
	RefundReason           *string         `json:"refund_reason,omitempty"`
	FailedCredits          []FailedCredit  `json:"failed_credits,omitempty"`
	CompletedAt            *time.Time      `json:"completed_at,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Task is a judged unit of work inside a contest. Points drive the task's
// weightage in the final score.
type Task struct {
	ID        uuid.UUID `json:"id"`
	ContestID uuid.UUID `json:"contest_id"`
	Title     string    `json:"title"`
	Points    int       `json:"points"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// Submission is a participant's answer to one task. Score is 0-100 and
// only set once reviewed.
type Submission struct {
	ID         uuid.UUID  `json:"id"`
	ContestID  uuid.UUID  `json:"contest_id"`
	TaskID     uuid.UUID  `json:"task_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Status     string     `json:"status"`
	Score      *int       `json:"score,omitempty"`
	Feedback   *string    `json:"feedback,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// TaskScore is the per-task breakdown stored on the participant.
type TaskScore struct {
	TaskID          uuid.UUID `json:"task_id"`
	TaskTitle       string    `json:"task_title"`
	Points          int       `json:"points"`
	Weightage       float64   `json:"weightage"`
	SubmissionScore int       `json:"submission_score"`
	WeightedScore   float64   `json:"weighted_score"`
}

// Participant links a user to a contest. prize_distributed and
// credit_failed make distribution resumable after partial failure.
type Participant struct {
	ID                 uuid.UUID       `json:"id"`
	ContestID          uuid.UUID       `json:"contest_id"`
	UserID             uuid.UUID       `json:"user_id"`
	Username           string          `json:"username"`
	WeightedScore      float64         `json:"weighted_score"`
	TaskScores         []TaskScore     `json:"task_scores,omitempty"`
	Earnings           decimal.Decimal `json:"earnings"`
	FinalRank          *int            `json:"final_rank,omitempty"`
	PrizeDistributed   bool            `json:"prize_distributed"`
	CreditFailed       bool            `json:"credit_failed"`
	CreditError        *string         `json:"credit_error,omitempty"`
	PrizeDistributedAt *time.Time      `json:"prize_distributed_at,omitempty"`
	JoinedAt           time.Time       `json:"joined_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
