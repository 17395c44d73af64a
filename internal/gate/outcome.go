package gate

import (
	"time"

	"github.com/gatewall/relay/internal/embed"
)

// Outcome is the terminal result of processing one inbound request.
// Every request maps to exactly one outcome.
type Outcome int

const (
	// OutcomeAccepted: message recorded and forwarded downstream.
	OutcomeAccepted Outcome = iota

	// OutcomeBanned: the address has an active ban; nothing else ran.
	OutcomeBanned

	// OutcomeMalformed: the payload failed structural or content
	// validation.
	OutcomeMalformed

	// OutcomeDuplicateBanned: the duplicate threshold was crossed; a new
	// ban was issued and the message was not stored.
	OutcomeDuplicateBanned

	// OutcomeDeliveryFailed: the message was stored but the downstream
	// channel rejected it.
	OutcomeDeliveryFailed
)

// String returns the outcome name used in logs, metrics labels, and
// published decision events.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeBanned:
		return "banned"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeDuplicateBanned:
		return "duplicate_banned"
	case OutcomeDeliveryFailed:
		return "delivery_failed"
	default:
		return "unknown"
	}
}

// Result describes what happened to one request. Violation is set only for
// OutcomeMalformed, BannedUntil only for the two ban outcomes, MessageID
// only when a row was inserted, and DeliveryErr only for
// OutcomeDeliveryFailed.
type Result struct {
	Outcome     Outcome
	Violation   *embed.Violation
	BannedUntil time.Time
	MessageID   string
	DeliveryErr error
}
