// Package userservice owns public user profiles. Profiles reference their
// auth record by id; that link is what the aggregation and deletion flows
// pivot on.
package userservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

// Service consumes profile commands from the onboarding saga and answers
// profile lookups.
type Service struct {
	pub       bus.Publisher
	responder *rpc.Responder
	logger    *slog.Logger

	mu         sync.RWMutex
	profiles   map[uuid.UUID]contracts.UserRecord
	byUsername map[string]uuid.UUID
	order      []uuid.UUID
}

// NewService creates the service. If logger is nil, slog.Default() is used.
func NewService(pub bus.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pub:        pub,
		responder:  rpc.NewResponder(pub, logger),
		logger:     logger,
		profiles:   make(map[uuid.UUID]contracts.UserRecord),
		byUsername: make(map[string]uuid.UUID),
	}
}

// Register subscribes the service's consumers on b.
func (s *Service) Register(b bus.Subscriber) error {
	if err := b.Subscribe(contracts.KindCreateProfile, s.handleCreateProfile); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindGetUserRequest, s.responder.Handle(s.handleGetUser)); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindListUsersRequest, s.responder.Handle(s.handleListUsers)); err != nil {
		return err
	}
	return b.Subscribe(contracts.KindDeleteUserRequest, s.responder.Handle(s.handleDeleteUser))
}

func (s *Service) handleCreateProfile(ctx context.Context, env bus.Envelope) error {
	cmd, ok := env.Message.(*contracts.CreateProfileCommand)
	if !ok {
		return fmt.Errorf("userservice: unexpected message %T", env.Message)
	}

	s.mu.Lock()
	if _, exists := s.byUsername[cmd.Username]; exists {
		s.mu.Unlock()
		s.logger.Warn("userservice: duplicate username rejected", "username", cmd.Username)
		return s.publish(ctx, &contracts.ProfileCreationFailed{
			CorrelationID: cmd.CorrelationID,
			Reason:        "username already taken",
		})
	}
	profile := contracts.UserRecord{
		ID:         uuid.New(),
		AuthUserID: cmd.AuthUserID,
		Username:   cmd.Username,
		Email:      cmd.Email,
	}
	s.profiles[profile.ID] = profile
	s.byUsername[profile.Username] = profile.ID
	s.order = append(s.order, profile.ID)
	s.mu.Unlock()

	s.logger.Info("userservice: profile created",
		"user_id", profile.ID, "username", profile.Username)
	return s.publish(ctx, &contracts.ProfileCreated{
		CorrelationID: cmd.CorrelationID,
		UserID:        profile.ID,
	})
}

func (s *Service) handleGetUser(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.GetUserRequest)
	if !ok {
		return nil, fmt.Errorf("userservice: unexpected request %T", req)
	}

	s.mu.RLock()
	profile, found := s.profiles[r.UserID]
	s.mu.RUnlock()
	if !found {
		return nil, rpc.Faultf(contracts.FaultNotFound, "user %s not found", r.UserID)
	}
	return &contracts.GetUserReply{User: profile}, nil
}

// handleListUsers returns profiles in creation order so aggregated views
// are stable across calls.
func (s *Service) handleListUsers(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	if _, ok := req.(*contracts.ListUsersRequest); !ok {
		return nil, fmt.Errorf("userservice: unexpected request %T", req)
	}

	s.mu.RLock()
	users := make([]contracts.UserRecord, 0, len(s.order))
	for _, id := range s.order {
		if profile, found := s.profiles[id]; found {
			users = append(users, profile)
		}
	}
	s.mu.RUnlock()
	return &contracts.ListUsersReply{Users: users}, nil
}

func (s *Service) handleDeleteUser(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.DeleteUserRequest)
	if !ok {
		return nil, fmt.Errorf("userservice: unexpected request %T", req)
	}

	s.mu.Lock()
	profile, found := s.profiles[r.UserID]
	if found {
		delete(s.profiles, r.UserID)
		delete(s.byUsername, profile.Username)
		for i, id := range s.order {
			if id == r.UserID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !found {
		return nil, rpc.Faultf(contracts.FaultNotFound, "user %s not found", r.UserID)
	}
	s.logger.Info("userservice: profile deleted", "user_id", r.UserID)
	return &contracts.DeleteUserReply{Success: true}, nil
}

func (s *Service) publish(ctx context.Context, msg contracts.Message) error {
	return s.pub.Publish(ctx, msg.Kind(), bus.NewEnvelope(msg))
}
