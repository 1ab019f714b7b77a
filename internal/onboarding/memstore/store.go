// Package memstore provides an in-memory onboarding.Store.
//
// It is intended for tests and non-durable deployments: all in-flight
// instances are lost on restart. A single mutex held across the whole
// read-transition-write sequence gives the per-instance serialization the
// engine requires.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/onboarding"
)

// Store is an in-memory instance store.
type Store struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*onboarding.Instance
}

// New creates an empty store.
func New() *Store {
	return &Store{instances: make(map[uuid.UUID]*onboarding.Instance)}
}

// Create adds a new instance, enforcing the single-in-flight-per-email rule.
func (s *Store) Create(ctx context.Context, inst *onboarding.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.instances {
		if existing.Email == inst.Email && !existing.CurrentState.Terminal() {
			return onboarding.ErrEmailInFlight
		}
	}

	cp := *inst
	s.instances[inst.CorrelationID] = &cp
	return nil
}

// Get returns a copy of the instance.
func (s *Store) Get(ctx context.Context, correlationID uuid.UUID) (*onboarding.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[correlationID]
	if !ok {
		return nil, onboarding.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

// FindByEmail returns a copy of the most recently started instance for
// the email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*onboarding.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *onboarding.Instance
	for _, inst := range s.instances {
		if inst.Email != email {
			continue
		}
		if latest == nil || inst.CreatedAt.After(latest.CreatedAt) {
			latest = inst
		}
	}
	if latest == nil {
		return nil, onboarding.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// Mutate applies fn under the store lock and keeps the result only when fn
// succeeds. fn operates on a copy, so a failed transition never leaves a
// half-applied instance behind.
func (s *Store) Mutate(ctx context.Context, correlationID uuid.UUID, fn func(*onboarding.Instance) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[correlationID]
	if !ok {
		return onboarding.ErrNotFound
	}

	cp := *inst
	if err := fn(&cp); err != nil {
		return err
	}
	s.instances[correlationID] = &cp
	return nil
}
