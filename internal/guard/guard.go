// Package guard provides Redis-backed admission counters using the
// INCR + EXPIRE window pattern. It carries two concerns the Postgres store
// cannot do atomically: the optional duplicate guard, which makes the
// count-then-insert duplicate check race-free across concurrent requests,
// and a cheap per-address inbound throttle applied before any store work.
package guard

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DupPrefix is the Redis key prefix for duplicate-guard counters.
	DupPrefix = "dup:"

	// ThrottlePrefix is the Redis key prefix for inbound throttle counters.
	ThrottlePrefix = "rl:in:"
)

// DupGuard counts identical submissions atomically, keyed on address,
// fingerprint, and the time bucket the submission falls in. Bucketing the
// window means the count resets at bucket edges rather than sliding, which
// errs toward admitting — acceptable, since the Postgres count remains the
// authoritative detector when the guard is not configured.
type DupGuard struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

// NewDupGuard creates a duplicate guard with the given window.
func NewDupGuard(client *redis.Client, window time.Duration) *DupGuard {
	return &DupGuard{client: client, window: window, now: time.Now}
}

// Bump records one occurrence of (address, fingerprint) in the current
// bucket and returns how many occurrences preceded it. Errors propagate so
// the caller can fall back to the store count.
func (g *DupGuard) Bump(ctx context.Context, address, fingerprint string) (int, error) {
	bucket := g.now().Unix() / int64(g.window.Seconds())
	key := fmt.Sprintf("%s%s:%s:%d", DupPrefix, address, fingerprint, bucket)

	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("guard: incr: %w", err)
	}

	// Set the expiry on first increment. Two windows, so a bucket still
	// being counted never vanishes mid-check.
	if count == 1 {
		if err := g.client.Expire(ctx, key, 2*g.window).Err(); err != nil {
			// The counter exists without a TTL; delete it so it cannot
			// pin the pair forever.
			g.client.Del(ctx, key)
			return 0, fmt.Errorf("guard: expire: %w", err)
		}
	}

	return int(count - 1), nil
}

// Throttle enforces a per-address request ceiling ahead of the engine.
type Throttle struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewThrottle creates a throttle allowing limit requests per window per
// address.
func NewThrottle(client *redis.Client, limit int, window time.Duration) *Throttle {
	return &Throttle{client: client, limit: limit, window: window}
}

// Allow reports whether the address is within its request ceiling. On
// Redis errors it fails open so an outage never blocks legitimate traffic.
func (t *Throttle) Allow(ctx context.Context, address string) bool {
	key := ThrottlePrefix + address

	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[guard] throttle INCR error key=%s: %v (failing open)", key, err)
		return true
	}

	if count == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			log.Printf("[guard] throttle EXPIRE error key=%s: %v (failing open)", key, err)
			t.client.Del(ctx, key)
			return true
		}
	}

	return int(count) <= t.limit
}
