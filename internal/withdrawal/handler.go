package withdrawal

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
	"github.com/contestforge/backend/internal/wallet"
)

type CreateRequestBody struct {
	Amount         decimal.Decimal       `json:"amount"`
	Currency       string                `json:"currency"`
	MethodID       string                `json:"method_id"`
	PaymentDetails models.PaymentDetails `json:"payment_details"`
	UserNotes      *string               `json:"user_notes,omitempty"`
}

type ListResponse struct {
	Withdrawals []*models.Withdrawal `json:"withdrawals"`
	Total       int                  `json:"total"`
}

type ReviewBody struct {
	Reason               string `json:"reason,omitempty"`
	TransactionReference string `json:"transaction_reference,omitempty"`
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

// Create handles POST /withdrawals.
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
	wd, err := h.svc.CreateRequest(r.Context(), CreateInput{
		UserID:         userID,
		Amount:         body.Amount,
		Currency:       body.Currency,
		MethodID:       body.MethodID,
		PaymentDetails: body.PaymentDetails,
		UserNotes:      body.UserNotes,
	})
	if err != nil {
		h.writeError(w, "withdrawal request failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// List handles GET /withdrawals.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	list, total, err := h.svc.ListForUser(r.Context(), userID, q.Get("status"), limit, offset)
	if err != nil {
		h.log.Error("list withdrawals failed", "error", err)
		http.Error(w, "list withdrawals failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Withdrawal{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Withdrawals: list, Total: total})
}

// Get handles GET /withdrawals/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	isAdmin := middleware.RoleFromCtx(r.Context()) == "admin"
	wd, err := h.svc.Get(r.Context(), r.PathValue("id"), userID, isAdmin)
	if err != nil {
		h.writeError(w, "get withdrawal failed", err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// Cancel handles POST /withdrawals/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.svc.Cancel(r.Context(), r.PathValue("id"), userID); err != nil {
		h.writeError(w, "cancel withdrawal failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WithdrawalCancelled})
}

// Methods handles GET /withdrawals/methods.
func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.svc.Methods(r.Context())
	if err != nil {
		h.log.Error("list methods failed", "error", err)
		http.Error(w, "list methods failed", http.StatusInternalServerError)
		return
	}
	if methods == nil {
		methods = []*models.WithdrawalMethod{}
	}
	writeJSON(w, http.StatusOK, methods)
}

// QuoteFees handles GET /withdrawals/fees?method_id=&amount=&currency=.
func (h *Handler) QuoteFees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || !amount.IsPositive() {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	fees, err := h.svc.QuoteFees(r.Context(), q.Get("method_id"), amount, q.Get("currency"))
	if err != nil {
		h.writeError(w, "fee quote failed", err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

// AdminList handles GET /admin/withdrawals.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	list, total, err := h.svc.ListAll(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		h.log.Error("admin list withdrawals failed", "error", err)
		http.Error(w, "list withdrawals failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Withdrawal{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Withdrawals: list, Total: total})
}

// Approve handles POST /admin/withdrawals/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.UserFromCtx(r.Context())
	if err := h.svc.Approve(r.Context(), r.PathValue("id"), adminID); err != nil {
		h.writeError(w, "approve failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WithdrawalApproved})
}

// Reject handles POST /admin/withdrawals/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.UserFromCtx(r.Context())
	var body ReviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}
	if err := h.svc.Reject(r.Context(), r.PathValue("id"), adminID, body.Reason); err != nil {
		h.writeError(w, "reject failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WithdrawalRejected})
}

// MarkProcessing handles POST /admin/withdrawals/{id}/processing.
func (h *Handler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkProcessing(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, "mark processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WithdrawalProcessing})
}

// Complete handles POST /admin/withdrawals/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var body ReviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.svc.Complete(r.Context(), r.PathValue("id"), body.TransactionReference); err != nil {
		h.writeError(w, "complete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.WithdrawalCompleted})
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrDisabled), errors.Is(err, ErrMaintenance):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrAmountOutOfRange), errors.Is(err, ErrMethodUnavailable),
		errors.Is(err, ErrCurrencyNotSupported), errors.Is(err, ErrInvalidPaymentDetails),
		errors.Is(err, wallet.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrDailyLimitExceeded), errors.Is(err, ErrMonthlyLimitExceeded),
		errors.Is(err, ErrTooManyPending), errors.Is(err, ErrCooldownActive),
		errors.Is(err, wallet.ErrInsufficientBalance), errors.Is(err, wallet.ErrWalletNotActive):
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
