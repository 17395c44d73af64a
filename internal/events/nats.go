// Package events publishes gate decisions to NATS so downstream consumers
// (dashboards, moderation tooling) can observe traffic without sitting in
// the request path. Publishing is fire-and-forget; the gateway works the
// same with no NATS configured.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gatewall/relay/internal/gate"
)

// NATS subjects for gate decisions.
const (
	SubjectAccepted = "gate.accepted"
	SubjectBanned   = "gate.banned"
	SubjectRejected = "gate.rejected"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "gatewall",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Publisher publishes gate decisions over a NATS connection.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes the NATS connection and returns a ready Publisher.
func Connect(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[events] nats disconnected: %v", err)
			} else {
				log.Printf("[events] nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[events] nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[events] nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}

	log.Printf("[events] connected to %s", nc.ConnectedUrl())
	return &Publisher{conn: nc}, nil
}

// PublishDecision routes a decision to the subject matching its outcome.
func (p *Publisher) PublishDecision(d gate.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("events: marshal decision: %w", err)
	}
	return p.conn.Publish(subjectFor(d.Outcome), data)
}

// subjectFor maps an outcome name to its NATS subject.
func subjectFor(outcome string) string {
	switch outcome {
	case "accepted", "delivery_failed":
		return SubjectAccepted
	case "banned", "duplicate_banned":
		return SubjectBanned
	default:
		return SubjectRejected
	}
}

// Close drains the connection so queued decisions flush before shutdown.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Printf("[events] drain: %v", err)
	}
}
