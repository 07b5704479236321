package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/styleforge/backend/internal/models"
	"github.com/styleforge/backend/internal/payments"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- TaskGetter mock: a scripted sequence of statuses. ---

type scriptedTasks struct {
	mu       sync.Mutex
	taskID   uuid.UUID
	statuses []string
	calls    int
}

func (m *scriptedTasks) Task(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i >= len(m.statuses) {
		i = len(m.statuses) - 1
	}
	return &models.Task{ID: id, Status: m.statuses[i]}, nil
}

// --- PaymentReconciler mock: a scripted sequence of outcomes. ---

type scriptedReconciler struct {
	mu       sync.Mutex
	outcomes []payments.Outcome
	err      error
	calls    int
}

func (m *scriptedReconciler) Reconcile(_ context.Context, _ string) (payments.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if i >= len(m.outcomes) {
		i = len(m.outcomes) - 1
	}
	return m.outcomes[i], nil
}

func (m *scriptedReconciler) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fastBackoff keeps the tests quick.
func fastBackoff(attempts int) Backoff {
	return Backoff{Initial: time.Millisecond, Multiplier: 1, Max: time.Millisecond, MaxAttempts: attempts}
}

func newTestPoller(tasks TaskGetter, reconciler PaymentReconciler, attempts int) *Poller {
	p := New(tasks, reconciler, nil)
	p.TaskBackoff = fastBackoff(attempts)
	p.PaymentBackoff = fastBackoff(attempts)
	return p
}

// ---------------------------------------------------------------------------
// 1. TestWaitForTask_Completes
// ---------------------------------------------------------------------------

func TestWaitForTask_Completes(t *testing.T) {
	id := uuid.New()
	tasks := &scriptedTasks{taskID: id, statuses: []string{
		models.TaskStatusPending,
		models.TaskStatusProcessing,
		models.TaskStatusProcessing,
		models.TaskStatusCompleted,
	}}
	p := newTestPoller(tasks, &scriptedReconciler{}, 10)

	task, err := p.WaitForTask(context.Background(), id)
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("status: got %q, want completed", task.Status)
	}
	if tasks.calls != 4 {
		t.Errorf("polls: got %d, want 4", tasks.calls)
	}
}

// ---------------------------------------------------------------------------
// 2. TestWaitForTask_Exhaustion
// ---------------------------------------------------------------------------

func TestWaitForTask_Exhaustion(t *testing.T) {
	id := uuid.New()
	tasks := &scriptedTasks{taskID: id, statuses: []string{models.TaskStatusProcessing}}
	p := newTestPoller(tasks, &scriptedReconciler{}, 3)

	task, err := p.WaitForTask(context.Background(), id)
	if !errors.Is(err, ErrStillProcessing) {
		t.Fatalf("expected ErrStillProcessing, got: %v", err)
	}
	if task == nil || task.Status != models.TaskStatusProcessing {
		t.Errorf("last observed task should come back: %+v", task)
	}
	if tasks.calls != 3 {
		t.Errorf("polls: got %d, want 3", tasks.calls)
	}
}

// ---------------------------------------------------------------------------
// 3. TestWaitForTask_ContextCancel
// ---------------------------------------------------------------------------

func TestWaitForTask_ContextCancel(t *testing.T) {
	id := uuid.New()
	tasks := &scriptedTasks{taskID: id, statuses: []string{models.TaskStatusProcessing}}
	p := New(tasks, &scriptedReconciler{}, nil)
	p.TaskBackoff = Backoff{Initial: time.Hour, Multiplier: 1, Max: time.Hour, MaxAttempts: 5}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.WaitForTask(ctx, id)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// 4. TestWaitForPayment_Settles
// ---------------------------------------------------------------------------

func TestWaitForPayment_Settles(t *testing.T) {
	rec := &scriptedReconciler{outcomes: []payments.Outcome{
		payments.OutcomePendingUpstream,
		payments.OutcomePendingUpstream,
		payments.OutcomeSettledNow,
	}}
	p := newTestPoller(&scriptedTasks{}, rec, 10)

	outcome, err := p.WaitForPayment(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("WaitForPayment: %v", err)
	}
	if outcome != payments.OutcomeSettledNow {
		t.Errorf("outcome: got %q, want settled_now", outcome)
	}
	if rec.callCount() != 3 {
		t.Errorf("reconcile calls: got %d, want 3", rec.callCount())
	}
}

// already_settled terminates the loop just like settled_now.
func TestWaitForPayment_AlreadySettled(t *testing.T) {
	rec := &scriptedReconciler{outcomes: []payments.Outcome{payments.OutcomeAlreadySettled}}
	p := newTestPoller(&scriptedTasks{}, rec, 10)

	outcome, err := p.WaitForPayment(context.Background(), "ord-1")
	if err != nil || outcome != payments.OutcomeAlreadySettled {
		t.Errorf("got (%q, %v), want already_settled", outcome, err)
	}
}

// ---------------------------------------------------------------------------
// 5. TestWaitForPayment_Exhaustion
// ---------------------------------------------------------------------------

func TestWaitForPayment_Exhaustion(t *testing.T) {
	rec := &scriptedReconciler{outcomes: []payments.Outcome{payments.OutcomePendingUpstream}}
	p := newTestPoller(&scriptedTasks{}, rec, 4)

	outcome, err := p.WaitForPayment(context.Background(), "ord-1")
	if !errors.Is(err, ErrStillPending) {
		t.Fatalf("expected ErrStillPending, got: %v", err)
	}
	if outcome != payments.OutcomePendingUpstream {
		t.Errorf("outcome: got %q, want pending_upstream", outcome)
	}

	// The fire-and-forget attempt eventually lands on top of the 4 loop calls.
	deadline := time.After(time.Second)
	for rec.callCount() < 5 {
		select {
		case <-deadline:
			t.Fatalf("background reconcile never ran: calls=%d", rec.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// ---------------------------------------------------------------------------
// 6. TestWaitForPayment_ReconcileError
// ---------------------------------------------------------------------------

func TestWaitForPayment_ReconcileError(t *testing.T) {
	rec := &scriptedReconciler{err: errors.New("order vanished")}
	p := newTestPoller(&scriptedTasks{}, rec, 10)

	if _, err := p.WaitForPayment(context.Background(), "ord-1"); err == nil {
		t.Fatal("a reconcile error must surface")
	}
	if rec.callCount() != 1 {
		t.Errorf("hard error must not be retried: calls=%d", rec.callCount())
	}
}
