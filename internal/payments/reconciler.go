// Package payments turns confirmed external payments into ledger credits
// exactly once. The reconciliation is safe to call any number of times,
// concurrently, for the same order: the recharge audit entry is the
// authoritative idempotency witness, and the lock lease only spares
// duplicate gateway calls.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/styleforge/backend/internal/models"
)

// Outcome of one reconciliation attempt. already_settled and settled_now are
// both success from the caller's point of view; pending_upstream means "poll
// again" and is never an error.
type Outcome string

const (
	OutcomeSettledNow      Outcome = "settled_now"
	OutcomeAlreadySettled  Outcome = "already_settled"
	OutcomePendingUpstream Outcome = "pending_upstream"
)

var (
	ErrOrderNotFound = errors.New("payment order not found")
	ErrBadOrder      = errors.New("invalid order")
)

// OrderRepo is the payment-order storage interface.
type OrderRepo interface {
	Create(ctx context.Context, o *models.PaymentOrder) error
	GetByOrderNo(ctx context.Context, orderNo string) (*models.PaymentOrder, error)
	MarkSuccessTx(ctx context.Context, tx pgx.Tx, orderNo string, rawCallback []byte) (bool, error)
	MarkSuccess(ctx context.Context, orderNo string) error
}

// Ledger is the credit-ledger subset reconciliation uses.
type Ledger interface {
	Recharge(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string, amount int) error
	HasRecharge(ctx context.Context, reference string) (bool, error)
}

// Locker hands out short-TTL leases; a failed acquire must not block.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

// Verifier is the external gateway status check.
type Verifier interface {
	VerifyPayment(ctx context.Context, orderNo string) (bool, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Reconciler struct {
	pool    TxBeginner
	orders  OrderRepo
	ledger  Ledger
	locks   Locker
	gateway Verifier
	lockTTL time.Duration
	logger  *slog.Logger
}

func NewReconciler(pool TxBeginner, orders OrderRepo, ledger Ledger, locks Locker, gateway Verifier, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		pool:    pool,
		orders:  orders,
		ledger:  ledger,
		locks:   locks,
		gateway: gateway,
		lockTTL: 30 * time.Second,
		logger:  logger,
	}
}

// CreateOrder records a pending order so later callbacks and reconciliation
// calls have something to act on.
func (r *Reconciler) CreateOrder(ctx context.Context, userID uuid.UUID, orderNo string, credits int) (*models.PaymentOrder, error) {
	if orderNo == "" || credits <= 0 {
		return nil, fmt.Errorf("%w: order_no and positive credits are required", ErrBadOrder)
	}
	order := &models.PaymentOrder{
		OrderNo: orderNo,
		UserID:  userID,
		Credits: credits,
		Status:  models.OrderStatusPending,
	}
	if err := r.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// Order loads one order by its external number.
func (r *Reconciler) Order(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	order, err := r.orders.GetByOrderNo(ctx, orderNo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Reconcile verifies the order with the gateway and, exactly once, marks it
// successful and credits the ledger. A contended lock returns
// pending_upstream immediately so concurrent callers are cheap no-ops.
func (r *Reconciler) Reconcile(ctx context.Context, orderNo string) (Outcome, error) {
	release, ok, err := r.locks.Acquire(ctx, "reconcile:"+orderNo, r.lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return OutcomePendingUpstream, nil
	}
	defer release(ctx)

	order, err := r.Order(ctx, orderNo)
	if err != nil {
		return "", err
	}
	if order.Status == models.OrderStatusSuccess {
		return OutcomeAlreadySettled, nil
	}

	// The authoritative idempotency check: a prior attempt may have written
	// the recharge and crashed before the order flag became visible. This
	// must hold even if the status read above raced a concurrent settle.
	credited, err := r.ledger.HasRecharge(ctx, orderNo)
	if err != nil {
		return "", fmt.Errorf("check recharge entry: %w", err)
	}
	if credited {
		if err := r.orders.MarkSuccess(ctx, orderNo); err != nil {
			return "", fmt.Errorf("mark order success: %w", err)
		}
		return OutcomeAlreadySettled, nil
	}

	confirmed, err := r.gateway.VerifyPayment(ctx, orderNo)
	if err != nil {
		// A verification failure is "not yet", not an error: nothing was
		// mutated and the poller will come back.
		r.logger.Warn("gateway verification failed", "order_no", orderNo, "error", err)
		return OutcomePendingUpstream, nil
	}
	if !confirmed {
		return OutcomePendingUpstream, nil
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"order_no":    orderNo,
		"verified_at": time.Now().UTC(),
	})

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	flipped, err := r.orders.MarkSuccessTx(ctx, tx, orderNo, raw)
	if err != nil {
		return "", fmt.Errorf("mark order success: %w", err)
	}
	if !flipped {
		return OutcomeAlreadySettled, nil
	}
	if err := r.ledger.Recharge(ctx, tx, order.UserID, orderNo, order.Credits); err != nil {
		return "", fmt.Errorf("recharge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit settle tx: %w", err)
	}
	r.logger.Info("order settled", "order_no", orderNo, "user_id", order.UserID, "credits", order.Credits)
	return OutcomeSettledNow, nil
}
