// Package bus defines the messaging transport ports the rest of the system
// is written against. The broker itself (NATS in production, an in-process
// one in tests) is an external collaborator behind these interfaces, and is
// always injected rather than held in a package-level singleton.
package bus

import (
	"context"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/contracts"
)

// Envelope wraps one contract for transport. The topic a message travels on
// is always its contract kind; the envelope adds the routing identifiers
// that are transport concerns rather than payload fields.
type Envelope struct {
	// ID uniquely identifies this message instance.
	ID uuid.UUID

	// RequestID correlates a reply or fault back to a pending call.
	// Zero for plain events and commands.
	RequestID uuid.UUID

	// ReplyTo is the topic a responder should publish the outcome to.
	// Empty for plain events and commands.
	ReplyTo string

	// Message is the typed payload.
	Message contracts.Message
}

// NewEnvelope wraps a contract in a fresh envelope.
func NewEnvelope(msg contracts.Message) Envelope {
	return Envelope{ID: uuid.New(), Message: msg}
}

// Kind returns the wire name of the wrapped contract.
func (e Envelope) Kind() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Kind()
}

// Handler processes one delivered envelope. Returning an error signals the
// broker adapter that processing failed; it is logged, never retried here.
type Handler func(ctx context.Context, env Envelope) error

// Publisher emits envelopes to a topic. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

// Subscriber registers a handler for a topic. Each delivery runs on its own
// worker; no ordering is guaranteed between topics or even within one.
type Subscriber interface {
	Subscribe(topic string, h Handler) error
}

// Bus combines both ends of the transport.
type Bus interface {
	Publisher
	Subscriber
}
