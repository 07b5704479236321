package main

import (
	"log/slog"
	"net/http"

	"github.com/styleforge/backend/internal/config"
	"github.com/styleforge/backend/internal/handlers"
	"github.com/styleforge/backend/internal/middleware"
	"github.com/styleforge/backend/internal/payments"
	"github.com/styleforge/backend/internal/repository"
	"github.com/styleforge/backend/internal/tasks"
)

// RegisterV1Routes adds the /v1/ API endpoints to the given mux.
// Middleware chain: Identity -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	cfg *config.Config,
	taskSvc *tasks.Service,
	reconciler *payments.Reconciler,
	orderRepo *repository.OrderRepo,
	accountRepo *repository.AccountRepo,
	creditRepo *repository.CreditRepo,
	validator *tasks.Validator,
	logger *slog.Logger,
) {
	th := &handlers.TaskHandler{
		Tasks:     taskSvc,
		Validator: validator,
		Logger:    logger,
	}
	ph := &handlers.PaymentHandler{
		Payments: reconciler,
		Orders:   orderRepo,
		Logger:   logger,
	}
	ch := &handlers.CreditHandler{
		Accounts: accountRepo,
		Log:      creditRepo,
		Logger:   logger,
	}

	auth := middleware.Identity([]byte(cfg.JWTSecret))

	mux.Handle("POST /v1/tasks", auth(http.HandlerFunc(th.CreateTask)))
	mux.Handle("GET /v1/tasks", auth(http.HandlerFunc(th.ListTasks)))
	mux.Handle("GET /v1/tasks/{id}", auth(http.HandlerFunc(th.GetTask)))
	mux.Handle("POST /v1/tasks/{id}/cancel", auth(http.HandlerFunc(th.CancelTask)))

	mux.Handle("POST /v1/orders", auth(http.HandlerFunc(ph.CreateOrder)))
	mux.Handle("GET /v1/orders", auth(http.HandlerFunc(ph.ListOrders)))
	mux.Handle("GET /v1/orders/{order_no}", auth(http.HandlerFunc(ph.GetOrder)))
	mux.Handle("POST /v1/orders/{order_no}/reconcile", auth(http.HandlerFunc(ph.Reconcile)))

	mux.Handle("GET /v1/credits/balance", auth(http.HandlerFunc(ch.Balance)))
	mux.Handle("GET /v1/credits/ledger", auth(http.HandlerFunc(ch.Ledger)))
}
