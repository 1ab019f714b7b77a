package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
)

// FaultError carries a structured rejection from a request handler to the
// caller. Any other error returned by a handler is reported as an internal
// fault with the error text as the message.
type FaultError struct {
	Code    string
	Message string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Faultf builds a FaultError with a formatted message.
func Faultf(code, format string, args ...any) *FaultError {
	return &FaultError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HandlerFunc answers one request. The returned message is published to the
// caller's reply topic; a returned error becomes a fault instead.
type HandlerFunc func(ctx context.Context, req contracts.Message) (contracts.Message, error)

// Responder turns HandlerFuncs into bus.Handlers that publish the outcome
// back to the requester's reply topic, echoing the request id.
type Responder struct {
	pub    bus.Publisher
	logger *slog.Logger
}

// NewResponder creates a responder publishing through pub. If logger is
// nil, slog.Default() is used.
func NewResponder(pub bus.Publisher, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{pub: pub, logger: logger}
}

// Handle wraps fn. Requests without a reply topic or request id cannot be
// answered and are dropped with a warning.
func (r *Responder) Handle(fn HandlerFunc) bus.Handler {
	return func(ctx context.Context, env bus.Envelope) error {
		if env.ReplyTo == "" || env.RequestID == uuid.Nil {
			r.logger.Warn("rpc: request without reply address dropped", "kind", env.Kind())
			return nil
		}

		reply, err := fn(ctx, env.Message)

		var out contracts.Message
		if err != nil {
			var fe *FaultError
			if errors.As(err, &fe) {
				out = &contracts.Fault{Code: fe.Code, Message: fe.Message}
			} else {
				out = &contracts.Fault{Code: contracts.FaultInternal, Message: err.Error()}
			}
		} else {
			out = reply
		}

		renv := bus.NewEnvelope(out)
		renv.RequestID = env.RequestID
		return r.pub.Publish(ctx, env.ReplyTo, renv)
	}
}
