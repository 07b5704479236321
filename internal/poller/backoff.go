package poller

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is a capped exponential schedule with jitter. One policy serves
// every polling loop in the system; call sites only pick the parameters.
type Backoff struct {
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration
	Jitter      float64 // fraction of the delay added at random, 0..1
	MaxAttempts int
}

// DefaultTaskBackoff bounds task polling to a few minutes of wall clock.
func DefaultTaskBackoff() Backoff {
	return Backoff{Initial: time.Second, Multiplier: 1.5, Max: 15 * time.Second, Jitter: 0.2, MaxAttempts: 20}
}

// DefaultPaymentBackoff is shorter: payment confirmation usually lands fast
// and exhaustion has a manual-retry affordance behind it.
func DefaultPaymentBackoff() Backoff {
	return Backoff{Initial: time.Second, Multiplier: 2, Max: 10 * time.Second, Jitter: 0.2, MaxAttempts: 8}
}

// Delay returns the wait before attempt n (0-based; attempt 0 runs
// immediately, so callers pass n-1 when sleeping before attempt n).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if ceil := float64(b.Max); d > ceil {
		d = ceil
	}
	if b.Jitter > 0 {
		d += rand.Float64() * b.Jitter * d
	}
	return time.Duration(d)
}
