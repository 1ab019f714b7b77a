package onboarding

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no instance exists for a correlation id.
var ErrNotFound = errors.New("onboarding: instance not found")

// ErrEmailInFlight is returned by Create when a non-terminal instance
// already exists for the same email. This is the duplicate-start guard:
// the start event correlates by the workflow's natural key.
var ErrEmailInFlight = errors.New("onboarding: onboarding already in flight for email")

// Store persists saga instances. Two events for the same instance may be
// handled by concurrent workers, so implementations must serialize Mutate
// per correlation id with a read-transition-write discipline.
type Store interface {
	// Create persists a new instance. It fails with ErrEmailInFlight when a
	// non-terminal instance with the same email exists.
	Create(ctx context.Context, inst *Instance) error

	// Get returns a copy of the instance for the correlation id, or
	// ErrNotFound.
	Get(ctx context.Context, correlationID uuid.UUID) (*Instance, error)

	// FindByEmail returns a copy of the most recently started instance
	// for the email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*Instance, error)

	// Mutate loads the instance, applies fn to it under a per-instance
	// lock, and writes it back only when fn returns nil. An error from fn
	// aborts the write and is returned unchanged.
	Mutate(ctx context.Context, correlationID uuid.UUID, fn func(*Instance) error) error
}
