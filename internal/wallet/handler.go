package wallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/middleware"
	"github.com/contestforge/backend/internal/models"
)

type BalanceResponse struct {
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	Available     decimal.Decimal `json:"available_balance"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	TotalCredited decimal.Decimal `json:"total_credited"`
	TotalDebited  decimal.Decimal `json:"total_debited"`
}

type HistoryResponse struct {
	Transactions []*models.Transaction `json:"transactions"`
	Total        int                   `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type AdjustRequest struct {
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type FreezeRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

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

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	wal, err := h.svc.GetOrCreate(r.Context(), userID)
	if err != nil {
		h.log.Error("get wallet failed", "error", err)
		http.Error(w, "get wallet failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Balance:       wal.Balance,
		LockedBalance: wal.LockedBalance,
		Available:     wal.Available(),
		Currency:      wal.Currency,
		Status:        wal.Status,
		TotalCredited: wal.TotalCredited,
		TotalDebited:  wal.TotalDebited,
	})
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	list, total, err := h.svc.History(r.Context(), userID, q.Get("category"), q.Get("type"), limit, offset)
	if err != nil {
		h.log.Error("wallet history failed", "error", err)
		http.Error(w, "wallet history failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Transactions: list, Total: total, Limit: limit, Offset: offset})
}

// AdminCredit adjusts a user's balance upward. Admin only.
func (h *Handler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	h.adminAdjust(w, r, models.CategoryAdminCredit)
}

// AdminDebit adjusts a user's balance downward. Admin only.
func (h *Handler) AdminDebit(w http.ResponseWriter, r *http.Request) {
	h.adminAdjust(w, r, models.CategoryAdminDebit)
}

func (h *Handler) adminAdjust(w http.ResponseWriter, r *http.Request, category string) {
	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	in := EntryInput{UserID: req.UserID, Amount: req.Amount, Category: category, Description: req.Description}
	var (
		entry *models.Transaction
		err   error
	)
	if category == models.CategoryAdminCredit {
		entry, err = h.svc.Credit(r.Context(), in)
	} else {
		entry, err = h.svc.Debit(r.Context(), in)
	}
	if err != nil {
		writeWalletError(w, h.log, "admin adjustment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) Freeze(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil || req.Reason == "" {
		http.Error(w, "user_id and reason are required", http.StatusBadRequest)
		return
	}
	if err := h.svc.Freeze(r.Context(), req.UserID, req.Reason); err != nil {
		writeWalletError(w, h.log, "freeze failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WalletFrozen})
}

func (h *Handler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if err := h.svc.Unfreeze(r.Context(), req.UserID); err != nil {
		writeWalletError(w, h.log, "unfreeze failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WalletActive})
}

// writeWalletError maps the service's sentinel errors to HTTP statuses.
func writeWalletError(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientLocked):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrWalletNotActive):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrWalletNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrConcurrentModification):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error(msg, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
