// Package rpc layers request/response semantics over fire-and-forget
// messaging. A caller publishes a request tagged with a fresh request id and
// a private reply topic, then blocks until exactly one of three outcomes:
// the correlated reply arrives, a correlated fault arrives, or the deadline
// passes. Duplicate and late replies are discarded. Nothing here retries:
// re-issuing a call is the caller's decision, and only valid when the remote
// operation is idempotent.
package rpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
)

// OutcomeKind classifies how a call ended.
type OutcomeKind int

const (
	// OutcomeSuccess means the correlated reply arrived in time.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFault means the remote explicitly rejected the request.
	OutcomeFault
	// OutcomeTimedOut means no reply or fault arrived before the deadline.
	OutcomeTimedOut
)

// Outcome is the single result of one call.
type Outcome struct {
	Kind OutcomeKind

	// Reply holds the payload when Kind is OutcomeSuccess.
	Reply contracts.Message

	// Fault holds the remote rejection when Kind is OutcomeFault.
	Fault *contracts.Fault
}

// Caller is the call-issuing side of a client. Components that fan out
// calls depend on this interface so tests can substitute a fake.
type Caller interface {
	Call(ctx context.Context, topic string, req contracts.Message, timeout time.Duration) Outcome
}

// Client issues calls over a bus. Each client owns a private reply topic;
// its pending-call table is in memory only and is garbage-collected as
// outcomes are observed or deadlines pass.
type Client struct {
	b          bus.Bus
	replyTopic string
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]chan Outcome
}

// NewClient creates a client named after the owning service and subscribes
// it to a unique reply topic. If logger is nil, slog.Default() is used.
func NewClient(b bus.Bus, name string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		b:          b,
		replyTopic: "rpc." + name + "." + uuid.NewString(),
		logger:     logger,
		pending:    make(map[uuid.UUID]chan Outcome),
	}
	if err := b.Subscribe(c.replyTopic, c.handleReply); err != nil {
		return nil, err
	}
	return c, nil
}

// ReplyTopic returns the client's private inbox topic.
func (c *Client) ReplyTopic() string { return c.replyTopic }

// Call publishes req on topic and blocks until the correlated outcome or
// the timeout. Cancelling ctx ends the wait the same way a timeout does.
func (c *Client) Call(ctx context.Context, topic string, req contracts.Message, timeout time.Duration) Outcome {
	requestID := uuid.New()
	ch := make(chan Outcome, 1)

	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()

	env := bus.NewEnvelope(req)
	env.RequestID = requestID
	env.ReplyTo = c.replyTopic

	if err := c.b.Publish(ctx, topic, env); err != nil {
		c.remove(requestID)
		return Outcome{Kind: OutcomeFault, Fault: &contracts.Fault{
			Code:    contracts.FaultInternal,
			Message: "publish failed: " + err.Error(),
		}}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out
	case <-timer.C:
	case <-ctx.Done():
	}

	// The waiter is removed first, so any reply arriving from here on is
	// discarded by handleReply. A reply that raced the deadline may already
	// sit in the buffered channel; honor it, it arrived before removal.
	c.remove(requestID)
	select {
	case out := <-ch:
		return out
	default:
	}
	return Outcome{Kind: OutcomeTimedOut}
}

// handleReply routes an inbound reply or fault to the waiter, if one is
// still registered. The waiter is removed before the outcome is delivered,
// which makes a second delivery of the same reply a no-op.
func (c *Client) handleReply(ctx context.Context, env bus.Envelope) error {
	if env.RequestID == uuid.Nil {
		c.logger.Warn("rpc: reply without request id dropped", "kind", env.Kind())
		return nil
	}

	c.mu.Lock()
	ch, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("rpc: late or duplicate reply discarded",
			"kind", env.Kind(), "request_id", env.RequestID)
		return nil
	}

	if fault, isFault := env.Message.(*contracts.Fault); isFault {
		ch <- Outcome{Kind: OutcomeFault, Fault: fault}
		return nil
	}
	ch <- Outcome{Kind: OutcomeSuccess, Reply: env.Message}
	return nil
}

func (c *Client) remove(requestID uuid.UUID) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}
