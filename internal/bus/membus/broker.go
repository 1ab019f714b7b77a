// Package membus provides an in-process implementation of bus.Bus.
//
// It exists for tests and single-binary deployments. Delivery semantics
// deliberately mirror the production broker's weak guarantees: every
// subscriber of a topic receives every message, each delivery runs on its
// own goroutine, and nothing orders deliveries across (or within) topics.
// Code that works against membus therefore cannot accidentally depend on
// ordering the real transport does not provide.
package membus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("membus: broker is closed")

// Broker is an in-memory topic broker.
type Broker struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string][]bus.Handler
	closed bool

	wg sync.WaitGroup
}

// New creates an empty broker. If logger is nil, slog.Default is used.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger: logger,
		subs:   make(map[string][]bus.Handler),
	}
}

// Subscribe registers h for topic. Safe to call while publishes are in
// flight; the new handler only sees messages published afterwards.
func (b *Broker) Subscribe(topic string, h bus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.subs[topic] = append(b.subs[topic], h)
	return nil
}

// Publish delivers env to every current subscriber of topic, each on its
// own goroutine. Publishing to a topic nobody subscribes to is not an
// error: fire-and-forget transports drop such messages silently.
func (b *Broker) Publish(ctx context.Context, topic string, env bus.Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]bus.Handler, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.RUnlock()

	// Detach from the publisher's context so a handler is not cancelled
	// when the publishing request finishes, matching a real broker where
	// delivery happens in another process.
	deliveryCtx := context.WithoutCancel(ctx)

	for _, h := range handlers {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := h(deliveryCtx, env); err != nil {
				b.logger.Warn("membus: handler failed",
					"topic", topic,
					"kind", env.Kind(),
					"error", err,
				)
			}
		}()
	}
	return nil
}

// Close stops accepting publishes and waits for in-flight deliveries.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
