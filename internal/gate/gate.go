// Package gate implements the admission-control engine: per-request ban
// checking, payload validation, duplicate detection with ban escalation,
// and retention housekeeping. The engine is stateless between requests;
// all durable state lives behind the MessageRepo and BanRepo interfaces.
//
// The duplicate check and the subsequent insert are two separate store
// operations, so concurrent requests from one address can slip past the
// threshold (a false negative). That window is accepted; deployments that
// need a hard guarantee plug in a DupGuard, which counts atomically in a
// shared counter keyed on address, fingerprint, and time bucket.
package gate

import (
	"context"
	"log"
	"time"

	"github.com/gatewall/relay/internal/embed"
	"github.com/gatewall/relay/internal/metrics"
	"github.com/gatewall/relay/internal/normalize"
)

// Policy holds every tunable the engine consults. Durations are compressed
// in tests; production values come from configuration.
type Policy struct {
	// DuplicateWindow is the sliding window over which identical messages
	// from one address are counted.
	DuplicateWindow time.Duration

	// DuplicateThreshold is the number of prior identical messages that
	// triggers a ban. With the default of 3, the first three copies are
	// admitted and the fourth earns the ban.
	DuplicateThreshold int

	// BanDuration is how long a duplicate-triggered ban lasts.
	BanDuration time.Duration

	// PurgeBatch is how many of the offender's most-recent rows are
	// deleted when a ban is issued.
	PurgeBatch int

	// MessageCap is the per-address history ceiling enforced after each
	// insert.
	MessageCap int

	// RetentionAge is the global age limit; older rows are swept on the
	// next request.
	RetentionAge time.Duration

	// Rules are the validation rules applied before any abuse logic runs.
	Rules embed.Rules
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{
		DuplicateWindow:    60 * time.Second,
		DuplicateThreshold: 3,
		BanDuration:        3 * 24 * time.Hour,
		PurgeBatch:         5,
		MessageCap:         100,
		RetentionAge:       7 * 24 * time.Hour,
		Rules:              embed.DefaultRules(),
	}
}

// MessageRepo is the message-history side of the external store.
type MessageRepo interface {
	Insert(ctx context.Context, address, fingerprint string) (string, error)
	CountRecent(ctx context.Context, address, fingerprint string, window time.Duration) (int, error)
	DeleteNewest(ctx context.Context, address string, n int) error
	EnforceCap(ctx context.Context, address string, cap int) (int64, error)
	SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error)
}

// BanRepo is the ban-registry side of the external store.
type BanRepo interface {
	BannedUntil(ctx context.Context, address string) (time.Time, bool, error)
	Ban(ctx context.Context, address string, until time.Time) error
}

// Deliverer forwards an accepted payload to the downstream channel. One
// synchronous attempt per request; the engine never retries.
type Deliverer interface {
	Deliver(ctx context.Context, p embed.Payload) error
}

// DupGuard is the optional atomic duplicate counter. Bump records one
// occurrence and returns how many occurrences preceded it in the current
// window. Implementations may fail; the engine falls back to the repo
// count when they do.
type DupGuard interface {
	Bump(ctx context.Context, address, fingerprint string) (prior int, err error)
}

// Decision is the event published after each request reaches a terminal
// outcome.
type Decision struct {
	Address     string    `json:"address"`
	Outcome     string    `json:"outcome"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	BannedUntil time.Time `json:"banned_until,omitempty"`
	Ts          int64     `json:"ts"`
}

// DecisionPublisher fans decisions out to interested consumers. Publishing
// is best-effort and never affects the request outcome.
type DecisionPublisher interface {
	PublishDecision(d Decision) error
}

// GateKeeper sequences the admission pipeline for each inbound request.
type GateKeeper struct {
	policy    Policy
	messages  MessageRepo
	bans      BanRepo
	deliverer Deliverer
	guard     DupGuard          // optional
	publisher DecisionPublisher // optional
	now       func() time.Time
}

// Option configures optional GateKeeper collaborators.
type Option func(*GateKeeper)

// WithDupGuard plugs in an atomic duplicate counter for deployments that
// cannot tolerate the count-then-insert race.
func WithDupGuard(g DupGuard) Option {
	return func(gk *GateKeeper) { gk.guard = g }
}

// WithPublisher plugs in a decision event publisher.
func WithPublisher(p DecisionPublisher) Option {
	return func(gk *GateKeeper) { gk.publisher = p }
}

// WithClock overrides the engine's clock. Tests use this to compress the
// duplicate window and ban durations.
func WithClock(now func() time.Time) Option {
	return func(gk *GateKeeper) { gk.now = now }
}

// New creates a GateKeeper over the given collaborators.
func New(policy Policy, messages MessageRepo, bans BanRepo, deliverer Deliverer, opts ...Option) *GateKeeper {
	gk := &GateKeeper{
		policy:    policy,
		messages:  messages,
		bans:      bans,
		deliverer: deliverer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(gk)
	}
	return gk
}

// IsBanned reports whether the address has an active ban. Absence of a ban
// row means "never banned"; a lookup failure is an infrastructure error,
// never treated as "not banned".
func (gk *GateKeeper) IsBanned(ctx context.Context, address string) (bool, time.Time, error) {
	until, found, err := gk.bans.BannedUntil(ctx, address)
	if err != nil {
		return false, time.Time{}, err
	}
	if !found || !gk.now().Before(until) {
		return false, time.Time{}, nil
	}
	return true, until, nil
}

// Process runs one request through the pipeline and returns its terminal
// outcome. A non-nil error means an infrastructure failure (store outage,
// ban write failure); every policy decision, including delivery failure,
// comes back inside the Result.
func (gk *GateKeeper) Process(ctx context.Context, address string, payload embed.Payload) (Result, error) {
	banned, until, err := gk.IsBanned(ctx, address)
	if err != nil {
		return Result{}, err
	}
	if banned {
		res := Result{Outcome: OutcomeBanned, BannedUntil: until}
		gk.finish(address, "", res)
		return res, nil
	}

	if v := embed.Validate(payload, gk.policy.Rules); v != nil {
		res := Result{Outcome: OutcomeMalformed, Violation: v}
		gk.finish(address, "", res)
		return res, nil
	}

	e, _ := payload.First() // Validate guarantees at least one embed
	fingerprint := normalize.Fingerprint(normalize.Normalize(e))

	prior, err := gk.countPrior(ctx, address, fingerprint)
	if err != nil {
		return Result{}, err
	}

	if prior >= gk.policy.DuplicateThreshold {
		return gk.escalate(ctx, address, fingerprint)
	}

	id, err := gk.messages.Insert(ctx, address, fingerprint)
	if err != nil {
		return Result{}, err
	}

	gk.housekeep(ctx, address)

	if err := gk.deliverer.Deliver(ctx, payload); err != nil {
		res := Result{Outcome: OutcomeDeliveryFailed, MessageID: id, DeliveryErr: err}
		gk.finish(address, fingerprint, res)
		return res, nil
	}

	res := Result{Outcome: OutcomeAccepted, MessageID: id}
	gk.finish(address, fingerprint, res)
	return res, nil
}

// countPrior returns how many identical messages the address already sent
// inside the window. With a guard configured it uses the atomic counter,
// falling back to the repo count if the guard's backend is down.
func (gk *GateKeeper) countPrior(ctx context.Context, address, fingerprint string) (int, error) {
	if gk.guard != nil {
		prior, err := gk.guard.Bump(ctx, address, fingerprint)
		if err == nil {
			return prior, nil
		}
		log.Printf("[gate] dup guard unavailable, falling back to store count: %v", err)
		metrics.GuardFallbacks.Inc()
	}
	return gk.messages.CountRecent(ctx, address, fingerprint, gk.policy.DuplicateWindow)
}

// escalate issues the ban and purges the offender's recent rows. The ban
// write is load-bearing and its failure is an infrastructure error; the
// purge is best-effort.
func (gk *GateKeeper) escalate(ctx context.Context, address, fingerprint string) (Result, error) {
	until := gk.now().Add(gk.policy.BanDuration)
	if err := gk.bans.Ban(ctx, address, until); err != nil {
		return Result{}, err
	}

	if err := gk.messages.DeleteNewest(ctx, address, gk.policy.PurgeBatch); err != nil {
		log.Printf("[gate] purge after ban failed for %s: %v", address, err)
		metrics.HousekeepingFailures.WithLabelValues("purge").Inc()
	}

	log.Printf("[gate] banned %s until %s (duplicate threshold %d reached)",
		address, until.UTC().Format(time.RFC3339), gk.policy.DuplicateThreshold)
	metrics.BansIssued.Inc()

	res := Result{Outcome: OutcomeDuplicateBanned, BannedUntil: until}
	gk.finish(address, fingerprint, res)
	return res, nil
}

// housekeep runs cap enforcement and the retention sweep after a
// successful insert. Both are best-effort: a failure here is logged and
// counted but never turns an accepted message into an error.
func (gk *GateKeeper) housekeep(ctx context.Context, address string) {
	if _, err := gk.messages.EnforceCap(ctx, address, gk.policy.MessageCap); err != nil {
		log.Printf("[gate] cap enforcement failed for %s: %v", address, err)
		metrics.HousekeepingFailures.WithLabelValues("cap").Inc()
	}
	if _, err := gk.messages.SweepExpired(ctx, gk.policy.RetentionAge); err != nil {
		log.Printf("[gate] retention sweep failed: %v", err)
		metrics.HousekeepingFailures.WithLabelValues("sweep").Inc()
	}
}

// finish records metrics and publishes the decision event.
func (gk *GateKeeper) finish(address, fingerprint string, res Result) {
	metrics.RequestsTotal.WithLabelValues(res.Outcome.String()).Inc()

	if gk.publisher == nil {
		return
	}
	d := Decision{
		Address:     address,
		Outcome:     res.Outcome.String(),
		Fingerprint: fingerprint,
		BannedUntil: res.BannedUntil,
		Ts:          gk.now().Unix(),
	}
	if err := gk.publisher.PublishDecision(d); err != nil {
		log.Printf("[gate] decision publish failed: %v", err)
	}
}
