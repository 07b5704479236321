package poller

import (
	"testing"
	"time"
)

func TestDelayGrowth(t *testing.T) {
	b := Backoff{Initial: time.Second, Multiplier: 2, Max: time.Minute}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d): got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayCap(t *testing.T) {
	b := Backoff{Initial: time.Second, Multiplier: 2, Max: 10 * time.Second}
	for attempt := 4; attempt < 30; attempt++ {
		if got := b.Delay(attempt); got != 10*time.Second {
			t.Errorf("Delay(%d): got %v, want capped at 10s", attempt, got)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	b := Backoff{Initial: time.Second, Multiplier: 2, Max: time.Minute, Jitter: 0.2}
	for i := 0; i < 200; i++ {
		d := b.Delay(2) // base 4s
		if d < 4*time.Second || d > 4800*time.Millisecond {
			t.Fatalf("jittered delay %v outside [4s, 4.8s]", d)
		}
	}
}

func TestDefaultPolicies(t *testing.T) {
	task := DefaultTaskBackoff()
	if task.MaxAttempts != 20 || task.Max != 15*time.Second {
		t.Errorf("task policy: %+v", task)
	}
	pay := DefaultPaymentBackoff()
	if pay.MaxAttempts != 8 || pay.Max != 10*time.Second {
		t.Errorf("payment policy: %+v", pay)
	}
}
