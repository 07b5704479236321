package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status enum. pending → processing → {completed, failed, cancelled};
// the three right-hand states are terminal.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
	TaskStatusCancelled  = "cancelled"
)

type Task struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Status          string    `json:"status"`
	Prompt          string    `json:"prompt"`
	InputImageRef   *string   `json:"input_image_ref,omitempty"`
	Style           *string   `json:"style,omitempty"`
	ResultRef       *string   `json:"result_ref,omitempty"`
	CreditsDeducted bool      `json:"credits_deducted"`
	CreditsRefunded bool      `json:"credits_refunded"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Terminal reports whether no further status transition is permitted.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
