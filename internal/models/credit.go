package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit log operation enum.
const (
	CreditOpDeduct   = "deduct"
	CreditOpRefund   = "refund"
	CreditOpRecharge = "recharge"
)

// CreditLogEntry is one append-only audit row for a balance change.
// Reference is the task ID or order number that caused the change; the
// presence of a recharge entry for an order number is the idempotency
// witness the payment reconciler relies on.
type CreditLogEntry struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Reference string    `json:"reference"`
	Operation string    `json:"operation"`
	OldValue  int       `json:"old_value"`
	Delta     int       `json:"delta"`
	NewValue  int       `json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}
