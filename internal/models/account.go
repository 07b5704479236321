package models

import (
	"time"

	"github.com/google/uuid"
)

// Account holds one credit balance per user. The balance is never written
// directly; every mutation goes through the ledger service so a CreditLogEntry
// exists for each change.
type Account struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   int       `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
