package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/styleforge/backend/internal/models"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Create(ctx context.Context, o *models.PaymentOrder) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payment_orders (order_no, user_id, credits, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, o.OrderNo, o.UserID, o.Credits, o.Status).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *OrderRepo) GetByOrderNo(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	err := r.pool.QueryRow(ctx, `
		SELECT order_no, user_id, credits, status, paid_at, raw_callback_data, created_at, updated_at
		FROM payment_orders WHERE order_no = $1
	`, orderNo).Scan(&o.OrderNo, &o.UserID, &o.Credits, &o.Status, &o.PaidAt, &o.RawCallbackData, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.PaymentOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_no, user_id, credits, status, paid_at, raw_callback_data, created_at, updated_at
		FROM payment_orders WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentOrder
	for rows.Next() {
		var o models.PaymentOrder
		if err := rows.Scan(&o.OrderNo, &o.UserID, &o.Credits, &o.Status, &o.PaidAt, &o.RawCallbackData, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &o)
	}
	return list, rows.Err()
}

// MarkSuccessTx flips the order pending → success with the gateway's raw
// callback payload. Returns false when another attempt already settled it.
// The flip is never reversed.
func (r *OrderRepo) MarkSuccessTx(ctx context.Context, tx pgx.Tx, orderNo string, rawCallback []byte) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE payment_orders
		SET status = $2, paid_at = now(), raw_callback_data = $3, updated_at = now()
		WHERE order_no = $1 AND status = $4
	`, orderNo, models.OrderStatusSuccess, rawCallback, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkSuccess is the non-transactional variant used when the credit has
// already been applied and only the order flag is behind.
func (r *OrderRepo) MarkSuccess(ctx context.Context, orderNo string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payment_orders
		SET status = $2, paid_at = COALESCE(paid_at, now()), updated_at = now()
		WHERE order_no = $1 AND status = $3
	`, orderNo, models.OrderStatusSuccess, models.OrderStatusPending)
	return err
}
