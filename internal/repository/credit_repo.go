package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/styleforge/backend/internal/models"
)

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

// CreateTx appends an audit row inside the given transaction.
func (r *CreditRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.CreditLogEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_log (id, user_id, reference, operation, old_value, delta, new_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.UserID, e.Reference, e.Operation, e.OldValue, e.Delta, e.NewValue).Scan(&e.CreatedAt)
}

// ExistsByReference reports whether an entry with the given operation exists
// for the reference. Used with models.CreditOpRecharge as the reconciler's
// idempotency witness.
func (r *CreditRepo) ExistsByReference(ctx context.Context, reference, operation string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM credit_log WHERE reference = $1 AND operation = $2)
	`, reference, operation).Scan(&exists)
	return exists, err
}

func (r *CreditRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CreditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, reference, operation, old_value, delta, new_value, created_at
		FROM credit_log WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditLogEntry
	for rows.Next() {
		var e models.CreditLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Reference, &e.Operation, &e.OldValue, &e.Delta, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
