package payments

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contestforge/backend/internal/middleware"
)

type CreateOrderRequest struct {
	Credits  decimal.Decimal `json:"credits"`
	Currency string          `json:"currency"`
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

// CreateOrder handles POST /payments/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	order, err := h.svc.CreateOrder(r.Context(), userID, req.Credits, req.Currency)
	if err != nil {
		if errors.Is(err, ErrInvalidOrder) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("create order failed", "error", err)
		http.Error(w, "create order failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(order)
}

// GetOrder handles GET /payments/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	order, err := h.svc.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error("get order failed", "error", err)
		http.Error(w, "get order failed", http.StatusInternalServerError)
		return
	}
	if order.UserID != userID && middleware.RoleFromCtx(r.Context()) != "admin" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(order)
}

// Webhook handles POST /payments/webhook. Unauthenticated: trust comes
// from the HMAC signature header, not from a session.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "reading body failed", http.StatusBadRequest)
		return
	}
	signature := r.Header.Get("X-Webhook-Signature")
	if err := h.svc.ProcessWebhook(r.Context(), body, signature); err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		case errors.Is(err, ErrOrderNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.log.Error("webhook processing failed", "error", err)
			http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}
