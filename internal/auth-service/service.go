// Package authservice is the credential side of the platform: it owns
// auth user records, roles and email verification flags. State is held in
// memory; persistence, password hashing and token issuance are outside
// this module's scope.
package authservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/onboarding"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

type credential struct {
	id            uuid.UUID
	username      string
	email         string
	password      string
	role          string
	emailVerified bool
}

// Service consumes credential commands from the onboarding saga and
// answers auth-info requests.
type Service struct {
	pub       bus.Publisher
	responder *rpc.Responder
	logger    *slog.Logger

	mu      sync.RWMutex
	byID    map[uuid.UUID]*credential
	byEmail map[string]uuid.UUID
}

// NewService creates the service. If logger is nil, slog.Default() is used.
func NewService(pub bus.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pub:       pub,
		responder: rpc.NewResponder(pub, logger),
		logger:    logger,
		byID:      make(map[uuid.UUID]*credential),
		byEmail:   make(map[string]uuid.UUID),
	}
}

// Register subscribes the service's consumers on b.
func (s *Service) Register(b bus.Subscriber) error {
	if err := b.Subscribe(contracts.KindCreateCredential, s.handleCreateCredential); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindAssignRole, s.handleAssignRole); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindMarkEmailVerified, s.handleMarkEmailVerified); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindGetAuthInfoRequest, s.responder.Handle(s.handleGetAuthInfo)); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindGetAuthInfoBatchRequest, s.responder.Handle(s.handleGetAuthInfoBatch)); err != nil {
		return err
	}
	return b.Subscribe(contracts.KindDeleteAuthRequest, s.responder.Handle(s.handleDeleteAuth))
}

func (s *Service) handleCreateCredential(ctx context.Context, env bus.Envelope) error {
	cmd, ok := env.Message.(*contracts.CreateCredentialCommand)
	if !ok {
		return fmt.Errorf("authservice: unexpected message %T", env.Message)
	}

	s.mu.Lock()
	if _, exists := s.byEmail[cmd.Email]; exists {
		s.mu.Unlock()
		s.logger.Warn("authservice: duplicate email rejected", "email", cmd.Email)
		return s.publish(ctx, &contracts.CredentialCreationFailed{
			CorrelationID: cmd.CorrelationID,
			Reason:        "email already registered",
		})
	}
	cred := &credential{
		id:       uuid.New(),
		username: cmd.Username,
		email:    cmd.Email,
		password: cmd.Password,
		role:     onboarding.DefaultRole,
	}
	s.byID[cred.id] = cred
	s.byEmail[cred.email] = cred.id
	s.mu.Unlock()

	s.logger.Info("authservice: credential created",
		"auth_user_id", cred.id, "email", cred.email)
	return s.publish(ctx, &contracts.CredentialCreated{
		CorrelationID: cmd.CorrelationID,
		AuthUserID:    cred.id,
	})
}

func (s *Service) handleAssignRole(ctx context.Context, env bus.Envelope) error {
	cmd, ok := env.Message.(*contracts.AssignRoleCommand)
	if !ok {
		return fmt.Errorf("authservice: unexpected message %T", env.Message)
	}

	role := onboarding.DefaultRole
	s.mu.Lock()
	if cred, found := s.byID[cmd.AuthUserID]; found {
		cred.role = role
	}
	s.mu.Unlock()

	return s.publish(ctx, &contracts.RoleAssigned{
		CorrelationID: cmd.CorrelationID,
		Role:          role,
	})
}

// handleMarkEmailVerified flips the verified flag. Re-applying it to an
// already verified credential is a no-op, and a command for a deleted
// credential is dropped.
func (s *Service) handleMarkEmailVerified(ctx context.Context, env bus.Envelope) error {
	cmd, ok := env.Message.(*contracts.MarkEmailVerifiedCommand)
	if !ok {
		return fmt.Errorf("authservice: unexpected message %T", env.Message)
	}

	s.mu.Lock()
	cred, found := s.byID[cmd.AuthUserID]
	if found {
		cred.emailVerified = true
	}
	s.mu.Unlock()

	if !found {
		s.logger.Warn("authservice: verify for unknown credential dropped",
			"auth_user_id", cmd.AuthUserID)
		return nil
	}
	s.logger.Info("authservice: email verified", "auth_user_id", cmd.AuthUserID)
	return nil
}

func (s *Service) handleGetAuthInfo(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.GetAuthInfoRequest)
	if !ok {
		return nil, fmt.Errorf("authservice: unexpected request %T", req)
	}

	s.mu.RLock()
	cred, found := s.byID[r.AuthUserID]
	s.mu.RUnlock()
	if !found {
		return nil, rpc.Faultf(contracts.FaultNotFound, "auth user %s not found", r.AuthUserID)
	}
	return &contracts.GetAuthInfoReply{
		Info: contracts.AuthInfo{Role: cred.role, EmailVerified: cred.emailVerified},
	}, nil
}

// handleGetAuthInfoBatch returns a map keyed by auth user id. Unknown ids
// are simply absent from the map; the aggregator substitutes defaults.
func (s *Service) handleGetAuthInfoBatch(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.GetAuthInfoBatchRequest)
	if !ok {
		return nil, fmt.Errorf("authservice: unexpected request %T", req)
	}

	infos := make(map[uuid.UUID]contracts.AuthInfo, len(r.AuthUserIDs))
	s.mu.RLock()
	for _, id := range r.AuthUserIDs {
		if cred, found := s.byID[id]; found {
			infos[id] = contracts.AuthInfo{Role: cred.role, EmailVerified: cred.emailVerified}
		}
	}
	s.mu.RUnlock()
	return &contracts.GetAuthInfoBatchReply{Infos: infos}, nil
}

func (s *Service) handleDeleteAuth(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.DeleteAuthRequest)
	if !ok {
		return nil, fmt.Errorf("authservice: unexpected request %T", req)
	}

	s.mu.Lock()
	cred, found := s.byID[r.AuthUserID]
	if found {
		delete(s.byID, r.AuthUserID)
		delete(s.byEmail, cred.email)
	}
	s.mu.Unlock()

	if !found {
		return nil, rpc.Faultf(contracts.FaultNotFound, "auth user %s not found", r.AuthUserID)
	}
	s.logger.Info("authservice: credential deleted", "auth_user_id", r.AuthUserID)
	return &contracts.DeleteAuthReply{Success: true}, nil
}

func (s *Service) publish(ctx context.Context, msg contracts.Message) error {
	return s.pub.Publish(ctx, msg.Kind(), bus.NewEnvelope(msg))
}
