// Package ledger implements the credit ledger: a balance per user plus an
// append-only audit log. Every mutation is an atomic conditional update on
// the balance paired with a CreditLogEntry written in the same transaction,
// so the balance and the log can never disagree.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/styleforge/backend/internal/models"
)

// AccountRepo is the minimal account interface the ledger needs. DeductBalance
// must be conditional (balance >= amount) and return pgx.ErrNoRows when the
// condition fails.
type AccountRepo interface {
	DeductBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error)
	AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error)
}

// CreditRepo is the minimal audit-log interface for the ledger.
type CreditRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.CreditLogEntry) error
	ExistsByReference(ctx context.Context, reference, operation string) (bool, error)
}

type Service struct {
	Accounts AccountRepo
	Credits  CreditRepo
}

func NewService(accounts AccountRepo, credits CreditRepo) *Service {
	return &Service{Accounts: accounts, Credits: credits}
}

// Deduct decrements the balance by amount if it covers it, and appends a
// deduct audit row. Returns false (not an error) on insufficient balance;
// the caller must treat that as a terminal failure of whatever the reference
// points at. Call within a transaction.
func (s *Service) Deduct(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string, amount int) (bool, error) {
	newBalance, err := s.Accounts.DeductBalance(ctx, tx, userID, amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deduct balance: %w", err)
	}
	entry := &models.CreditLogEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Reference: reference,
		Operation: models.CreditOpDeduct,
		OldValue:  newBalance + amount,
		Delta:     -amount,
		NewValue:  newBalance,
	}
	if err := s.Credits.CreateTx(ctx, tx, entry); err != nil {
		return false, fmt.Errorf("write deduct entry: %w", err)
	}
	return true, nil
}

// Refund increments the balance and appends a refund audit row. At-most-once
// per reference is enforced by the caller's credits_refunded check-and-set,
// which must run in the same transaction.
func (s *Service) Refund(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string, amount int) error {
	return s.credit(ctx, tx, userID, reference, models.CreditOpRefund, amount)
}

// Recharge increments the balance and appends a recharge audit row. The
// entry doubles as the reconciler's idempotency witness for the reference.
func (s *Service) Recharge(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string, amount int) error {
	return s.credit(ctx, tx, userID, reference, models.CreditOpRecharge, amount)
}

// HasRecharge reports whether a recharge entry already exists for reference.
func (s *Service) HasRecharge(ctx context.Context, reference string) (bool, error) {
	return s.Credits.ExistsByReference(ctx, reference, models.CreditOpRecharge)
}

func (s *Service) credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference, operation string, amount int) error {
	newBalance, err := s.Accounts.AddBalance(ctx, tx, userID, amount)
	if err != nil {
		return fmt.Errorf("add balance: %w", err)
	}
	entry := &models.CreditLogEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Reference: reference,
		Operation: operation,
		OldValue:  newBalance - amount,
		Delta:     amount,
		NewValue:  newBalance,
	}
	if err := s.Credits.CreateTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("write %s entry: %w", operation, err)
	}
	return nil
}
