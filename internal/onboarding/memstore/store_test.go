package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/onboarding"
)

func newInstance(email string, createdAt time.Time) *onboarding.Instance {
	return &onboarding.Instance{
		CorrelationID:    uuid.New(),
		CurrentState:     onboarding.StateAwaitingCredentialCreation,
		Username:         "alice",
		Email:            email,
		ConfirmationCode: "123456",
		AssignedRole:     onboarding.DefaultRole,
		CreatedAt:        createdAt,
	}
}

func TestCreateRejectsInFlightEmail(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, newInstance("alice@x.com", now)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := store.Create(ctx, newInstance("alice@x.com", now))
	if !errors.Is(err, onboarding.ErrEmailInFlight) {
		t.Fatalf("expected ErrEmailInFlight, got %v", err)
	}

	// A different email is unaffected.
	if err := store.Create(ctx, newInstance("bob@x.com", now)); err != nil {
		t.Fatalf("unrelated create: %v", err)
	}
}

func TestCreateAllowsEmailAfterTerminal(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	first := newInstance("alice@x.com", now)
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Mutate(ctx, first.CorrelationID, func(inst *onboarding.Instance) error {
		inst.CurrentState = onboarding.StateFailed
		inst.FailureReason = "email taken"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	if err := store.Create(ctx, newInstance("alice@x.com", now.Add(time.Second))); err != nil {
		t.Fatalf("create after terminal: %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	inst := newInstance("alice@x.com", time.Now().UTC())
	if err := store.Create(ctx, inst); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, inst.CorrelationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.CurrentState = onboarding.StateCompleted

	again, err := store.Get(ctx, inst.CorrelationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.CurrentState != onboarding.StateAwaitingCredentialCreation {
		t.Fatal("mutating a returned instance must not affect the store")
	}
}

func TestMutateAbortsOnError(t *testing.T) {
	store := New()
	ctx := context.Background()
	inst := newInstance("alice@x.com", time.Now().UTC())
	if err := store.Create(ctx, inst); err != nil {
		t.Fatalf("create: %v", err)
	}

	sentinel := errors.New("no match")
	err := store.Mutate(ctx, inst.CorrelationID, func(i *onboarding.Instance) error {
		i.CurrentState = onboarding.StateCompleted
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the fn error back, got %v", err)
	}

	got, err := store.Get(ctx, inst.CorrelationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentState != onboarding.StateAwaitingCredentialCreation {
		t.Fatal("a failed mutation must not be persisted")
	}
}

func TestMutateUnknownIsNotFound(t *testing.T) {
	store := New()
	err := store.Mutate(context.Background(), uuid.New(), func(*onboarding.Instance) error { return nil })
	if !errors.Is(err, onboarding.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByEmailReturnsLatest(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Now().UTC()

	first := newInstance("alice@x.com", base)
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Mutate(ctx, first.CorrelationID, func(inst *onboarding.Instance) error {
		inst.CurrentState = onboarding.StateFailed
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	second := newInstance("alice@x.com", base.Add(time.Minute))
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindByEmail(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.CorrelationID != second.CorrelationID {
		t.Fatal("expected the most recently started instance")
	}

	if _, err := store.FindByEmail(ctx, "nobody@x.com"); !errors.Is(err, onboarding.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
