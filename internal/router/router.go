package router

import (
	"net/http"

	"github.com/contestforge/backend/internal/auth"
	"github.com/contestforge/backend/internal/contests"
	"github.com/contestforge/backend/internal/middleware"
	"github.com/contestforge/backend/internal/payments"
	"github.com/contestforge/backend/internal/prize"
	"github.com/contestforge/backend/internal/wallet"
	"github.com/contestforge/backend/internal/withdrawal"
)

// Handlers bundles every feature handler the API serves.
type Handlers struct {
	Auth        *auth.Handler
	Wallet      *wallet.Handler
	Contests    *contests.Handler
	Prizes      *prize.Handler
	Payments    *payments.Handler
	Withdrawals *withdrawal.Handler
}

// New returns an http.Handler serving the API under /api/v1. Auth
// middleware wraps everything except registration, login, public
// contest reads, and the gateway webhook (which authenticates by
// signature instead).
func New(h Handlers, tokens middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.JWTAuth(tokens)
	admin := func(fn http.HandlerFunc) http.Handler {
		return authed(middleware.RequireAdmin(fn))
	}

	// Public.
	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)
	mux.HandleFunc("POST "+base+"/payments/webhook", h.Payments.Webhook)
	mux.HandleFunc("GET "+base+"/contests/{id}", h.Contests.Get)
	mux.HandleFunc("GET "+base+"/contests/{id}/leaderboard", h.Contests.Leaderboard)
	mux.HandleFunc("GET "+base+"/contests/quote", h.Contests.Quote)
	mux.HandleFunc("GET "+base+"/withdrawals/methods", h.Withdrawals.Methods)

	// Wallet.
	mux.Handle("GET "+base+"/wallet/balance", authed(http.HandlerFunc(h.Wallet.GetBalance)))
	mux.Handle("GET "+base+"/wallet/transactions", authed(http.HandlerFunc(h.Wallet.GetHistory)))

	// Contests and settlement.
	mux.Handle("POST "+base+"/contests", authed(http.HandlerFunc(h.Contests.Create)))
	mux.Handle("POST "+base+"/contests/{id}/join", authed(http.HandlerFunc(h.Contests.Join)))
	mux.Handle("POST "+base+"/contests/{id}/cancel", authed(http.HandlerFunc(h.Contests.Cancel)))
	mux.Handle("POST "+base+"/contests/{id}/distribute", authed(http.HandlerFunc(h.Prizes.Distribute)))
	mux.Handle("GET "+base+"/contests/{id}/prizes/preview", authed(http.HandlerFunc(h.Prizes.Preview)))

	// Payments.
	mux.Handle("POST "+base+"/payments/orders", authed(http.HandlerFunc(h.Payments.CreateOrder)))
	mux.Handle("GET "+base+"/payments/orders/{id}", authed(http.HandlerFunc(h.Payments.GetOrder)))

	// Withdrawals.
	mux.Handle("POST "+base+"/withdrawals", authed(http.HandlerFunc(h.Withdrawals.Create)))
	mux.Handle("GET "+base+"/withdrawals", authed(http.HandlerFunc(h.Withdrawals.List)))
	mux.Handle("GET "+base+"/withdrawals/fees", authed(http.HandlerFunc(h.Withdrawals.QuoteFees)))
	mux.Handle("GET "+base+"/withdrawals/{id}", authed(http.HandlerFunc(h.Withdrawals.Get)))
	mux.Handle("POST "+base+"/withdrawals/{id}/cancel", authed(http.HandlerFunc(h.Withdrawals.Cancel)))

	// Admin.
	mux.Handle("POST "+base+"/admin/wallet/credit", admin(h.Wallet.AdminCredit))
	mux.Handle("POST "+base+"/admin/wallet/debit", admin(h.Wallet.AdminDebit))
	mux.Handle("POST "+base+"/admin/wallet/freeze", admin(h.Wallet.Freeze))
	mux.Handle("POST "+base+"/admin/wallet/unfreeze", admin(h.Wallet.Unfreeze))
	mux.Handle("GET "+base+"/admin/withdrawals", admin(h.Withdrawals.AdminList))
	mux.Handle("POST "+base+"/admin/withdrawals/{id}/approve", admin(h.Withdrawals.Approve))
	mux.Handle("POST "+base+"/admin/withdrawals/{id}/reject", admin(h.Withdrawals.Reject))
	mux.Handle("POST "+base+"/admin/withdrawals/{id}/processing", admin(h.Withdrawals.MarkProcessing))
	mux.Handle("POST "+base+"/admin/withdrawals/{id}/complete", admin(h.Withdrawals.Complete))
	mux.Handle("POST "+base+"/admin/prizes/retry-failed", admin(h.Prizes.RetryFailedCredits))

	return mux
}
