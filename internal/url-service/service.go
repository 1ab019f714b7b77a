// Package urlservice owns shortened links: creation, resolution of a
// short code back to its original url, and per-user listing. It also
// exposes a batched per-user listing keyed by user id, which the
// aggregation flow uses to collapse N lookups into one.
package urlservice

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Service answers short-url requests.
type Service struct {
	responder *rpc.Responder
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	byUser map[uuid.UUID][]contracts.ShortURL
	byCode map[string]contracts.ShortURL
}

// NewService creates the service. If logger is nil, slog.Default() is used.
func NewService(pub bus.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		responder: rpc.NewResponder(pub, logger),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		byUser:    make(map[uuid.UUID][]contracts.ShortURL),
		byCode:    make(map[string]contracts.ShortURL),
	}
}

// Register subscribes the service's consumers on b.
func (s *Service) Register(b bus.Subscriber) error {
	if err := b.Subscribe(contracts.KindCreateShortURLRequest, s.responder.Handle(s.handleCreate)); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindResolveShortURLRequest, s.responder.Handle(s.handleResolve)); err != nil {
		return err
	}
	if err := b.Subscribe(contracts.KindListURLsByUserRequest, s.responder.Handle(s.handleListByUser)); err != nil {
		return err
	}
	return b.Subscribe(contracts.KindListURLsByUsersRequest, s.responder.Handle(s.handleListByUsers))
}

func (s *Service) handleCreate(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.CreateShortURLRequest)
	if !ok {
		return nil, fmt.Errorf("urlservice: unexpected request %T", req)
	}

	url := contracts.ShortURL{
		ID:          uuid.New(),
		ShortCode:   newShortCode(8),
		OriginalURL: r.OriginalURL,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.byUser[r.UserID] = append(s.byUser[r.UserID], url)
	s.byCode[url.ShortCode] = url
	s.mu.Unlock()

	s.logger.Info("urlservice: short url created",
		"user_id", r.UserID, "short_code", url.ShortCode)
	return &contracts.CreateShortURLReply{URL: url}, nil
}

func (s *Service) handleResolve(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.ResolveShortURLRequest)
	if !ok {
		return nil, fmt.Errorf("urlservice: unexpected request %T", req)
	}

	s.mu.RLock()
	url, found := s.byCode[r.ShortCode]
	s.mu.RUnlock()
	if !found {
		return nil, rpc.Faultf(contracts.FaultNotFound, "short code %q not found", r.ShortCode)
	}
	return &contracts.ResolveShortURLReply{URL: url}, nil
}

func (s *Service) handleListByUser(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.ListURLsByUserRequest)
	if !ok {
		return nil, fmt.Errorf("urlservice: unexpected request %T", req)
	}

	s.mu.RLock()
	urls := append([]contracts.ShortURL(nil), s.byUser[r.UserID]...)
	s.mu.RUnlock()

	if urls == nil {
		urls = []contracts.ShortURL{}
	}
	return &contracts.ListURLsByUserReply{URLs: urls}, nil
}

// handleListByUsers returns a map keyed by user id. Users without urls are
// absent from the map rather than present with an empty list.
func (s *Service) handleListByUsers(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.ListURLsByUsersRequest)
	if !ok {
		return nil, fmt.Errorf("urlservice: unexpected request %T", req)
	}

	result := make(map[uuid.UUID][]contracts.ShortURL, len(r.UserIDs))
	s.mu.RLock()
	for _, userID := range r.UserIDs {
		if urls := s.byUser[userID]; len(urls) > 0 {
			result[userID] = append([]contracts.ShortURL(nil), urls...)
		}
	}
	s.mu.RUnlock()
	return &contracts.ListURLsByUsersReply{URLs: result}, nil
}

func newShortCode(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
