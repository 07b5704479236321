package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/styleforge/backend/internal/middleware"
	"github.com/styleforge/backend/internal/models"
	"github.com/styleforge/backend/internal/payments"
)

// PaymentService is the subset of the reconciler the handler needs.
type PaymentService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, orderNo string, credits int) (*models.PaymentOrder, error)
	Order(ctx context.Context, orderNo string) (*models.PaymentOrder, error)
	Reconcile(ctx context.Context, orderNo string) (payments.Outcome, error)
}

// OrderLister loads a user's payment history.
type OrderLister interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.PaymentOrder, error)
}

// PaymentHandler serves /v1/orders endpoints.
type PaymentHandler struct {
	Payments PaymentService
	Orders   OrderLister
	Logger   *slog.Logger
}

// --- POST /v1/orders ---

type createOrderRequest struct {
	OrderNo string `json:"order_no"`
	Credits int    `json:"credits"`
}

func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	order, err := h.Payments.CreateOrder(r.Context(), userID, req.OrderNo, req.Credits)
	if err != nil {
		if errors.Is(err, payments.ErrBadOrder) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.Logger.Error("create order", "order_no", req.OrderNo, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// --- POST /v1/orders/{order_no}/reconcile ---

type reconcileResponse struct {
	OrderNo string `json:"order_no"`
	Outcome string `json:"outcome"`
}

// Reconcile confirms a payment against the upstream gateway and credits the
// account exactly once. Safe to call any number of times for the same order.
func (h *PaymentHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	orderNo := r.PathValue("order_no")
	if orderNo == "" {
		http.Error(w, `{"error":"missing order_no"}`, http.StatusBadRequest)
		return
	}

	order, err := h.Payments.Order(r.Context(), orderNo)
	if errors.Is(err, payments.ErrOrderNotFound) {
		http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("load order", "order_no", orderNo, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if order.UserID != userID {
		http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
		return
	}

	outcome, err := h.Payments.Reconcile(r.Context(), orderNo)
	if err != nil {
		h.Logger.Error("reconcile order", "order_no", orderNo, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{OrderNo: orderNo, Outcome: string(outcome)})
}

// --- GET /v1/orders ---

func (h *PaymentHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.Orders.ListByUserID(r.Context(), userID)
	if err != nil {
		h.Logger.Error("list orders", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- GET /v1/orders/{order_no} ---

func (h *PaymentHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	orderNo := r.PathValue("order_no")

	order, err := h.Payments.Order(r.Context(), orderNo)
	if errors.Is(err, payments.ErrOrderNotFound) {
		http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("load order", "order_no", orderNo, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if order.UserID != userID {
		http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
