package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/styleforge/backend/internal/middleware"
	"github.com/styleforge/backend/internal/models"
)

// AccountReader loads account balances.
type AccountReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error)
}

// CreditLogReader loads the audit trail for an account.
type CreditLogReader interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CreditLogEntry, error)
}

// CreditHandler serves /v1/credits endpoints.
type CreditHandler struct {
	Accounts AccountReader
	Log      CreditLogReader
	Logger   *slog.Logger
}

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
}

// Balance handles GET /v1/credits/balance. A user with no account yet
// simply has a zero balance.
func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	acc, err := h.Accounts.GetByUserID(r.Context(), userID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusOK, balanceResponse{UserID: userID.String(), Balance: 0})
		return
	}
	if err != nil {
		h.Logger.Error("get balance", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{UserID: userID.String(), Balance: acc.Balance})
}

// Ledger handles GET /v1/credits/ledger.
func (h *CreditHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	entries, err := h.Log.ListByUserID(r.Context(), userID)
	if err != nil {
		h.Logger.Error("list credit log", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
