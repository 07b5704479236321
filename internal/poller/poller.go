// Package poller drives the client-side wait loops: task status until a
// terminal state, and payment reconciliation until settlement, both on the
// shared backoff policy.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/styleforge/backend/internal/models"
	"github.com/styleforge/backend/internal/payments"
)

var (
	// ErrStillProcessing means the poll budget ran out while the task was
	// still in flight server-side. Not a failure; check back later.
	ErrStillProcessing = errors.New("task still processing, check back later")
	// ErrStillPending means the payment poll budget ran out without the
	// gateway confirming; the caller should offer a manual retry.
	ErrStillPending = errors.New("payment still pending, retry later")
)

// TaskGetter loads the current task state.
type TaskGetter interface {
	Task(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// PaymentReconciler is one reconciliation attempt.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, orderNo string) (payments.Outcome, error)
}

type Poller struct {
	Tasks          TaskGetter
	Payments       PaymentReconciler
	TaskBackoff    Backoff
	PaymentBackoff Backoff
	Logger         *slog.Logger
}

func New(tasks TaskGetter, reconciler PaymentReconciler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		Tasks:          tasks,
		Payments:       reconciler,
		TaskBackoff:    DefaultTaskBackoff(),
		PaymentBackoff: DefaultPaymentBackoff(),
		Logger:         logger,
	}
}

// WaitForTask polls until the task reaches a terminal state or the attempt
// budget runs out. On exhaustion the last observed task is returned together
// with ErrStillProcessing.
func (p *Poller) WaitForTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	var last *models.Task
	for attempt := 0; attempt < p.TaskBackoff.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.TaskBackoff.Delay(attempt-1)); err != nil {
				return last, err
			}
		}
		task, err := p.Tasks.Task(ctx, taskID)
		if err != nil {
			return nil, err
		}
		last = task
		if task.Terminal() {
			return task, nil
		}
	}
	return last, ErrStillProcessing
}

// WaitForPayment reconciles on the backoff schedule until the order settles.
// settled_now and already_settled are treated identically. On exhaustion one
// best-effort background attempt is fired without waiting for its result.
func (p *Poller) WaitForPayment(ctx context.Context, orderNo string) (payments.Outcome, error) {
	for attempt := 0; attempt < p.PaymentBackoff.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.PaymentBackoff.Delay(attempt-1)); err != nil {
				return payments.OutcomePendingUpstream, err
			}
		}
		outcome, err := p.Payments.Reconcile(ctx, orderNo)
		if err != nil {
			return "", err
		}
		if outcome == payments.OutcomeSettledNow || outcome == payments.OutcomeAlreadySettled {
			return outcome, nil
		}
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := p.Payments.Reconcile(bgCtx, orderNo); err != nil {
			p.Logger.Warn("background reconcile failed", "order_no", orderNo, "error", err)
		}
	}()
	return payments.OutcomePendingUpstream, ErrStillPending
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
