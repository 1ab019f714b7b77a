// Package mailservice consumes confirmation commands from the onboarding
// saga. Actual mail delivery is an external concern; this service records
// the outbound mail and reports delivery back to the saga.
package mailservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
)

// Service handles confirmation mail commands.
type Service struct {
	pub    bus.Publisher
	logger *slog.Logger

	mu   sync.Mutex
	sent []contracts.SendConfirmationCommand
}

// NewService creates the service. If logger is nil, slog.Default() is used.
func NewService(pub bus.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pub: pub, logger: logger}
}

// Register subscribes the service's consumers on b.
func (s *Service) Register(b bus.Subscriber) error {
	return b.Subscribe(contracts.KindSendConfirmation, s.handleSendConfirmation)
}

// Sent returns a copy of every confirmation mail handled so far.
func (s *Service) Sent() []contracts.SendConfirmationCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.SendConfirmationCommand(nil), s.sent...)
}

func (s *Service) handleSendConfirmation(ctx context.Context, env bus.Envelope) error {
	cmd, ok := env.Message.(*contracts.SendConfirmationCommand)
	if !ok {
		return fmt.Errorf("mailservice: unexpected message %T", env.Message)
	}

	s.mu.Lock()
	s.sent = append(s.sent, *cmd)
	s.mu.Unlock()

	s.logger.Info("mailservice: confirmation mail sent",
		"email", cmd.Email, "correlation_id", cmd.CorrelationID)

	reply := &contracts.ConfirmationDelivered{CorrelationID: cmd.CorrelationID}
	return s.pub.Publish(ctx, reply.Kind(), bus.NewEnvelope(reply))
}
