package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/styleforge/backend/internal/generation"
	"github.com/styleforge/backend/internal/models"
)

// TaskRepo is the task storage interface. Transition methods report whether
// the conditional update matched a row; a false return means the task was
// already terminal (or not owned), never that the write half-applied.
type TaskRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	ClaimChargeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, resultRef string) (bool, error)
	MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, errMsg string) (bool, error)
	MarkCancelledTx(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) (bool, error)
	ClaimRefundTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// AccountRepo is the account subset needed to admit new tasks.
type AccountRepo interface {
	CreateIfAbsent(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error)
	GetBalanceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int, error)
}

// Ledger is the credit ledger subset the task lifecycle uses.
type Ledger interface {
	Deduct(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string, amount int) (bool, error)
	Refund(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string, amount int) error
	Recharge(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string, amount int) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InsertGenerateJobTxFunc enqueues a generation job within the given
// transaction. Provided by main using river.Client.InsertTx.
type InsertGenerateJobTxFunc func(ctx context.Context, tx pgx.Tx, args generation.GenerateJobArgs) error

// Service owns the task state machine and the ledger writes tied to it.
type Service struct {
	pool              TxBeginner
	tasks             TaskRepo
	accounts          AccountRepo
	ledger            Ledger
	insertGenerateJob InsertGenerateJobTxFunc
	taskCost          int
	welcomeCredits    int
	logger            *slog.Logger
}

func NewService(
	pool TxBeginner,
	tasks TaskRepo,
	accounts AccountRepo,
	ledger Ledger,
	insertGenerateJob InsertGenerateJobTxFunc,
	taskCost, welcomeCredits int,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:              pool,
		tasks:             tasks,
		accounts:          accounts,
		ledger:            ledger,
		insertGenerateJob: insertGenerateJob,
		taskCost:          taskCost,
		welcomeCredits:    welcomeCredits,
		logger:            logger,
	}
}

var _ generation.TaskService = (*Service)(nil)

type CreateTaskInput struct {
	Prompt        string
	InputImageRef *string
	Style         *string
}

// CreateTask validates the submission, admits the user (first use creates the
// account with a welcome grant), writes a pending task, and enqueues the
// generation job. Task row and job insert commit together.
func (s *Service) CreateTask(ctx context.Context, userID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	hasImage := in.InputImageRef != nil && *in.InputImageRef != ""
	hasStyle := in.Style != nil && *in.Style != ""
	if in.Prompt == "" && !(hasImage && hasStyle) {
		return nil, fmt.Errorf("%w: prompt or input image plus style is required", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.accounts.CreateIfAbsent(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	if created && s.welcomeCredits > 0 {
		if err := s.ledger.Recharge(ctx, tx, userID, "welcome:"+userID.String(), s.welcomeCredits); err != nil {
			return nil, fmt.Errorf("welcome grant: %w", err)
		}
	}

	balance, err := s.accounts.GetBalanceTx(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance <= 0 {
		return nil, ErrInsufficientCredits
	}

	task := &models.Task{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        models.TaskStatusPending,
		Prompt:        in.Prompt,
		InputImageRef: in.InputImageRef,
		Style:         in.Style,
	}
	if err := s.tasks.CreateTx(ctx, tx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := s.insertGenerateJob(ctx, tx, generation.GenerateJobArgs{TaskID: task.ID}); err != nil {
		return nil, fmt.Errorf("enqueue generation job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return task, nil
}

// Task loads a task by ID without an ownership check. Internal use (worker, poller).
func (s *Service) Task(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask loads a task for its owner. An existing task owned by someone else
// is reported as not found.
func (s *Service) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, ErrNotFound
	}
	return task, nil
}

func (s *Service) ListTasks(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	return s.tasks.ListByUserID(ctx, userID)
}

// BeginProcessing moves the task pending → processing. started is false when
// the task is already terminal (or missing); re-marking a processing task is
// a successful no-op.
func (s *Service) BeginProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.tasks.MarkProcessing(ctx, id)
}

// ChargeTask deducts the task cost at most once per task. The charge claim
// and the ledger deduct commit together, and the deduct only runs when the
// conditional claim matched a still-running, not-yet-charged row. charged
// reports whether the task holds a committed charge after the call: true on
// a fresh deduct or a re-delivered job re-seeing its own charge, false on
// insufficient balance or a task that resolved before the claim.
func (s *Service) ChargeTask(ctx context.Context, id uuid.UUID) (bool, error) {
	task, err := s.Task(ctx, id)
	if err != nil {
		return false, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin charge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	claimed, err := s.tasks.ClaimChargeTx(ctx, tx, id)
	if err != nil {
		return false, fmt.Errorf("claim charge: %w", err)
	}
	if !claimed {
		cur, err := s.Task(ctx, id)
		if err != nil {
			return false, err
		}
		return cur.CreditsDeducted && !cur.CreditsRefunded, nil
	}
	charged, err := s.ledger.Deduct(ctx, tx, task.UserID, task.ID.String(), s.taskCost)
	if err != nil {
		return false, err
	}
	if !charged {
		// The rollback releases the claim.
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit charge tx: %w", err)
	}
	return true, nil
}

// CompleteTask writes the terminal completed state. If a cancellation landed
// first the completion is discarded and any unrefunded charge is returned,
// since the cancel may have run before credits_deducted was visible to it.
func (s *Service) CompleteTask(ctx context.Context, id uuid.UUID, resultRef string) error {
	ok, err := s.tasks.MarkCompleted(ctx, id, resultRef)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if ok {
		return nil
	}
	s.logger.Info("completion superseded by terminal state", "task_id", id)
	return s.RefundIfCharged(ctx, id)
}

// FailTask writes the terminal failed state and refunds the charge, if any.
// Safe to call when a cancellation already resolved the task: the status
// write is then a no-op and the refund claim decides who credits back.
func (s *Service) FailTask(ctx context.Context, id uuid.UUID, reason string) error {
	task, err := s.Task(ctx, id)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.tasks.MarkFailedTx(ctx, tx, id, reason); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	claimed, err := s.tasks.ClaimRefundTx(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("claim refund: %w", err)
	}
	if claimed {
		if err := s.ledger.Refund(ctx, tx, task.UserID, task.ID.String(), s.taskCost); err != nil {
			return fmt.Errorf("refund: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Cancel resolves a pending/processing task owned by userID to cancelled and
// refunds the charge if one was taken. The refund claim and the ledger credit
// commit with the status write.
func (s *Service) Cancel(ctx context.Context, userID, taskID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := s.tasks.MarkCancelledTx(ctx, tx, taskID, userID)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if !ok {
		task, gerr := s.tasks.GetByID(ctx, taskID)
		if errors.Is(gerr, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if gerr != nil {
			return gerr
		}
		if task.UserID != userID {
			return ErrNotFound
		}
		return ErrInvalidState
	}

	claimed, err := s.tasks.ClaimRefundTx(ctx, tx, taskID)
	if err != nil {
		return fmt.Errorf("claim refund: %w", err)
	}
	if claimed {
		if err := s.ledger.Refund(ctx, tx, userID, taskID.String(), s.taskCost); err != nil {
			return fmt.Errorf("refund: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// RefundIfCharged claims and performs the refund for a task that resolved
// elsewhere while still holding its charge, such as a completion superseded
// by a cancel, or a job re-delivered after its task was cancelled.
func (s *Service) RefundIfCharged(ctx context.Context, id uuid.UUID) error {
	task, err := s.Task(ctx, id)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	claimed, err := s.tasks.ClaimRefundTx(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("claim refund: %w", err)
	}
	if !claimed {
		return nil
	}
	if err := s.ledger.Refund(ctx, tx, task.UserID, task.ID.String(), s.taskCost); err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	return tx.Commit(ctx)
}
