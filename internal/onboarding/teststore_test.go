package onboarding

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// testStore is an in-package copy of memstore.Store for the engine tests.
// The internal test package cannot import memstore (memstore imports
// onboarding, which would be an import cycle), so the same map-plus-mutex
// Store lives here.
type testStore struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*Instance
}

func newTestStore() *testStore {
	return &testStore{instances: make(map[uuid.UUID]*Instance)}
}

func (s *testStore) Create(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.instances {
		if existing.Email == inst.Email && !existing.CurrentState.Terminal() {
			return ErrEmailInFlight
		}
	}

	cp := *inst
	s.instances[inst.CorrelationID] = &cp
	return nil
}

func (s *testStore) Get(ctx context.Context, correlationID uuid.UUID) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[correlationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (s *testStore) FindByEmail(ctx context.Context, email string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Instance
	for _, inst := range s.instances {
		if inst.Email != email {
			continue
		}
		if latest == nil || inst.CreatedAt.After(latest.CreatedAt) {
			latest = inst
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *testStore) Mutate(ctx context.Context, correlationID uuid.UUID, fn func(*Instance) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[correlationID]
	if !ok {
		return ErrNotFound
	}

	cp := *inst
	if err := fn(&cp); err != nil {
		return err
	}
	s.instances[correlationID] = &cp
	return nil
}
