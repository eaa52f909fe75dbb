package contests

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/fees"
	"github.com/contestforge/backend/internal/middleware"
	"github.com/contestforge/backend/internal/models"
)

type CreateRequestBody struct {
	Title            string          `json:"title"`
	TotalPrize       decimal.Decimal `json:"total_prize"`
	MaxParticipants  int             `json:"max_participants"`
	DistributionMode string          `json:"distribution_mode,omitempty"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	GracePeriodHours int             `json:"grace_period_hours,omitempty"`
}

type CancelBody struct {
	Reason string `json:"reason,omitempty"`
}

type JoinBody struct {
	Username string `json:"username"`
}

// Quoter prices contest creation for the upfront cost endpoint.
type Quoter interface {
	QuoteCreation(ctx context.Context, pool decimal.Decimal) (*fees.Quote, error)
}

type Handler struct {
	svc    *Service
	quoter Quoter
	log    *slog.Logger
}

func NewHandler(svc *Service, quoter Quoter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, quoter: quoter, log: log}
}

// Create handles POST /contests.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	contest, err := h.svc.Create(r.Context(), CreateInput{
		OwnerID:          userID,
		Title:            body.Title,
		TotalPrize:       body.TotalPrize,
		MaxParticipants:  body.MaxParticipants,
		DistributionMode: body.DistributionMode,
		StartDate:        body.StartDate,
		EndDate:          body.EndDate,
		GracePeriodHours: body.GracePeriodHours,
	})
	if err != nil {
		h.writeError(w, "create contest failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, contest)
}

// Quote handles GET /contests/quote?prize_pool=.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	pool, err := decimal.NewFromString(r.URL.Query().Get("prize_pool"))
	if err != nil || !pool.IsPositive() {
		http.Error(w, "invalid prize_pool", http.StatusBadRequest)
		return
	}
	quote, err := h.quoter.QuoteCreation(r.Context(), pool)
	if err != nil {
		h.log.Error("quote failed", "error", err)
		http.Error(w, "quote failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Get handles GET /contests/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contest id", http.StatusBadRequest)
		return
	}
	contest, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get contest failed", err)
		return
	}
	writeJSON(w, http.StatusOK, contest)
}

// Cancel handles POST /contests/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contest id", http.StatusBadRequest)
		return
	}
	var body CancelBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	isAdmin := middleware.RoleFromCtx(r.Context()) == "admin"
	if err := h.svc.Cancel(r.Context(), id, userID, isAdmin, body.Reason); err != nil {
		h.writeError(w, "cancel contest failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.ContestCancelled})
}

// Join handles POST /contests/{id}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contest id", http.StatusBadRequest)
		return
	}
	var body JoinBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}
	contest, err := h.svc.Join(r.Context(), id, userID, body.Username)
	if err != nil {
		h.writeError(w, "join contest failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"contest_id": contest.ID,
		"status":     contest.Status,
	})
}

// Leaderboard handles GET /contests/{id}/leaderboard.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contest id", http.StatusBadRequest)
		return
	}
	entries, err := h.svc.Leaderboard(r.Context(), id)
	if err != nil {
		h.writeError(w, "leaderboard failed", err)
		return
	}
	if entries == nil {
		entries = []LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrNotJoinable),
		errors.Is(err, ErrContestFull), errors.Is(err, ErrAlreadyJoined):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidTitle), errors.Is(err, ErrInvalidSchedule),
		errors.Is(err, ErrOwnerCannotJoin):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, fees.ErrCreationDisabled), errors.Is(err, fees.ErrMaintenance):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, fees.ErrPrizePoolOutOfRange), errors.Is(err, fees.ErrParticipantsOutOfRange),
		errors.Is(err, fees.ErrTooManyActive), errors.Is(err, fees.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error(msg, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
