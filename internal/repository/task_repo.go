package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/styleforge/backend/internal/models"
)

// TaskRepo persists generation tasks. State transitions are conditional
// UPDATEs whose WHERE clause names the legal source states, so a terminal
// row can never be overwritten regardless of how many processes race on it.
type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, user_id, status, prompt, input_image_ref, style)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, t.ID, t.UserID, t.Status, t.Prompt, t.InputImageRef, t.Style).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, status, prompt, input_image_ref, style, result_ref,
		       credits_deducted, credits_refunded, error_message, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.Status, &t.Prompt, &t.InputImageRef, &t.Style, &t.ResultRef,
		&t.CreditsDeducted, &t.CreditsRefunded, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, status, prompt, input_image_ref, style, result_ref,
		       credits_deducted, credits_refunded, error_message, created_at, updated_at
		FROM tasks WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Status, &t.Prompt, &t.InputImageRef, &t.Style, &t.ResultRef,
			&t.CreditsDeducted, &t.CreditsRefunded, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// MarkProcessing moves pending → processing. Re-marking a task that is
// already processing is a no-op that still reports success.
func (r *TaskRepo) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $2)
	`, id, models.TaskStatusProcessing, models.TaskStatusPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ClaimChargeTx flips credits_deducted for a still-running, not-yet-charged
// task. The conditional update is the at-most-once guard for charges: a
// re-delivered job, or a charge racing a cancellation, sees RowsAffected == 0
// and must not deduct. Call in the same transaction as the ledger deduct.
func (r *TaskRepo) ClaimChargeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE tasks SET credits_deducted = TRUE, updated_at = now()
		WHERE id = $1 AND credits_deducted = FALSE AND status IN ($2, $3)
	`, id, models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkCompleted writes the terminal completed state with its result
// reference. Returns false if the task was no longer running (e.g. a
// cancellation landed first).
func (r *TaskRepo) MarkCompleted(ctx context.Context, id uuid.UUID, resultRef string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, result_ref = $3, updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, models.TaskStatusCompleted, resultRef, models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkFailedTx writes the terminal failed state. Returns false if the task
// was already terminal.
func (r *TaskRepo) MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, errMsg string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE tasks SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, models.TaskStatusFailed, errMsg, models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkCancelledTx writes the terminal cancelled state for a task owned by
// userID. Returns false if the task was already terminal or not owned.
func (r *TaskRepo) MarkCancelledTx(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE tasks SET status = $2, updated_at = now()
		WHERE id = $1 AND user_id = $3 AND status IN ($4, $5)
	`, id, models.TaskStatusCancelled, userID, models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ClaimRefundTx flips credits_refunded for a charged, not-yet-refunded task.
// The conditional update is the at-most-once guard for refunds: of any number
// of racing refund attempts, exactly one sees RowsAffected == 1. Call in the
// same transaction as the ledger refund.
func (r *TaskRepo) ClaimRefundTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE tasks SET credits_refunded = TRUE, updated_at = now()
		WHERE id = $1 AND credits_deducted = TRUE AND credits_refunded = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
