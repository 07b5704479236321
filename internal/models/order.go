package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment order status enum. Orders only ever move pending → success.
const (
	OrderStatusPending = "pending"
	OrderStatusSuccess = "success"
)

// PaymentOrder is one external payment attempt. OrderNo is the gateway's
// identifier and is what callbacks and reconciliation calls carry.
type PaymentOrder struct {
	OrderNo         string          `json:"order_no"`
	UserID          uuid.UUID       `json:"user_id"`
	Credits         int             `json:"credits"`
	Status          string          `json:"status"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	RawCallbackData json.RawMessage `json:"raw_callback_data,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
