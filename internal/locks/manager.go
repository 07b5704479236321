// Package locks provides short-lived named mutual-exclusion leases on Redis.
// A lease serializes the payment-reconciliation critical section for one
// order; it exists to avoid duplicate gateway calls, not for ledger
// correctness, which the recharge-entry check guarantees on its own.
package locks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lease re-acquired by someone else is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// Acquire attempts to take the lease once, without blocking. ok is false when
// another holder has it. The returned release func is safe to call even after
// the lease expired.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error) {
	token := uuid.NewString()
	ok, err = m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release = func(ctx context.Context) {
		_, _ = releaseScript.Run(ctx, m.client, []string{key}, token).Result()
	}
	return release, true, nil
}
