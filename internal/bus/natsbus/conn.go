// Package natsbus adapts a NATS connection to the bus.Bus ports.
//
// Topics map 1:1 onto NATS subjects. Messages travel as structured-mode
// CloudEvents JSON so foreign consumers can decode the envelope attributes
// without knowing this module's types. Subscriptions join a queue group
// named after the service, so horizontally scaled replicas of one service
// split the traffic while distinct services each get their own copy.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
)

// Config configures a NATS-backed bus.
type Config struct {
	// URL is the NATS server URL, e.g. "nats://localhost:4222".
	URL string

	// Name identifies this service. It is used as the CloudEvents source,
	// the connection name, and the queue group for subscriptions.
	Name string

	// ConnectTimeout bounds the initial dial. Default 5s.
	ConnectTimeout time.Duration

	// Logger for operational logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (c Config) applyDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("natsbus: connection closed")

// Conn is a bus.Bus backed by a single NATS connection.
type Conn struct {
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	nc   *nats.Conn
	subs []*nats.Subscription
}

// Connect dials the NATS server.
func Connect(config Config) (*Conn, error) {
	config = config.applyDefaults()

	nc, err := nats.Connect(
		config.URL,
		nats.Name(config.Name),
		nats.Timeout(config.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				config.Logger.Warn("natsbus: disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			config.Logger.Info("natsbus: reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect %s: %w", config.URL, err)
	}

	return &Conn{config: config, logger: config.Logger, nc: nc}, nil
}

// Publish encodes env and publishes it on the subject named by topic.
func (c *Conn) Publish(ctx context.Context, topic string, env bus.Envelope) error {
	data, err := encode(c.config.Name, env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil {
		return ErrClosed
	}

	if err := nc.Publish(topic, data); err != nil {
		return fmt.Errorf("natsbus: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers h on the subject named by topic, inside this
// service's queue group. Each delivery is handled on its own goroutine;
// decode failures and handler errors are logged and the message dropped.
func (c *Conn) Subscribe(topic string, h bus.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return ErrClosed
	}

	sub, err := c.nc.QueueSubscribe(topic, c.config.Name, func(m *nats.Msg) {
		env, err := decode(m.Data)
		if err != nil {
			c.logger.Warn("natsbus: dropping undecodable message", "subject", m.Subject, "error", err)
			return
		}
		go func() {
			if err := h(context.Background(), env); err != nil {
				c.logger.Warn("natsbus: handler failed",
					"subject", m.Subject,
					"kind", env.Kind(),
					"error", err,
				)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("natsbus: subscribe %s: %w", topic, err)
	}

	c.subs = append(c.subs, sub)
	return nil
}

// Close drains subscriptions and closes the connection.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
}
