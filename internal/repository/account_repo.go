package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/styleforge/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, balance, created_at, updated_at
		FROM accounts WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateIfAbsent inserts a zero-balance account for the user if none exists.
// Returns true when a row was created.
func (r *AccountRepo) CreateIfAbsent(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// GetBalanceTx reads the balance inside the given transaction.
func (r *AccountRepo) GetBalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error) {
	var balance int
	err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	return balance, err
}

// DeductBalance atomically deducts amount if balance >= amount. Returns the
// new balance, or pgx.ErrNoRows when the balance was insufficient. Call
// within a transaction so the audit row commits with the balance change.
func (r *AccountRepo) DeductBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}

// AddBalance atomically adds amount and returns the new balance. The account
// row is created on the fly, so a recharge can land before the user's first
// task ever did.
func (r *AccountRepo) AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (user_id, balance)
		VALUES ($2, $1)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = accounts.balance + $1, updated_at = now()
		RETURNING balance
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}
