package prize

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/contestforge/backend/internal/middleware"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Distribute handles POST /contests/{id}/distribute.
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	contestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contest id", http.StatusBadRequest)
		return
	}
	isAdmin := middleware.RoleFromCtx(r.Context()) == "admin"
	result, err := h.svc.Distribute(r.Context(), contestID, userID, isAdmin)
	if err != nil {
		h.writeError(w, "distribution failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Preview handles GET /contests/{id}/prizes/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	contestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid contest id", http.StatusBadRequest)
		return
	}
	result, err := h.svc.Preview(r.Context(), contestID)
	if err != nil {
		h.writeError(w, "prize preview failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RetryFailedCredits handles POST /admin/prizes/retry-failed.
func (h *Handler) RetryFailedCredits(w http.ResponseWriter, r *http.Request) {
	retried, recovered, err := h.svc.RetryFailedCredits(r.Context())
	if err != nil {
		h.log.Error("failed credit retry failed", "error", err)
		http.Error(w, "retry failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"retried": retried, "recovered": recovered})
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrContestNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrContestNotEnded), errors.Is(err, ErrNoEligibleWinners):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrRefundUnavailable), errors.Is(err, ErrPrizesPayable):
		http.Error(w, err.Error(), http.StatusConflict)
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
