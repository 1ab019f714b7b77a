// Package onboarding implements the user onboarding saga: a state machine
// that drives credential creation, confirmation delivery, role assignment
// and profile creation across services that only talk through messages.
package onboarding

import (
	"time"

	"github.com/google/uuid"
)

// State is the saga instance's position in the workflow. The initial state
// is implicit: an instance only exists once the start event was accepted,
// at which point it is already awaiting credential creation.
type State string

const (
	StateAwaitingCredentialCreation   State = "AwaitingCredentialCreation"
	StateAwaitingConfirmationDelivery State = "AwaitingConfirmationDelivery"
	StateAwaitingRoleAssignment       State = "AwaitingRoleAssignment"
	StateAwaitingProfileCreation      State = "AwaitingProfileCreation"
	StateCompleted                    State = "Completed"
	StateFailed                       State = "Failed"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// DefaultRole is assigned to every onboarded user unless the auth service
// reports otherwise.
const DefaultRole = "User"

// Instance is one in-flight (or finished) onboarding workflow. Instances
// are never deleted; terminal ones remain as an audit trail and become
// immutable.
type Instance struct {
	// CorrelationID keys the instance and threads through every message
	// belonging to this workflow. Immutable once assigned.
	CorrelationID uuid.UUID

	CurrentState State

	// Username and Email are captured from the start event and immutable.
	Username string
	Email    string

	// AuthUserID is set once credential creation succeeds.
	AuthUserID *uuid.UUID

	// ConfirmationCode is generated at start and sent exactly once.
	ConfirmationCode string

	// AssignedRole defaults to DefaultRole and is overwritten by the
	// role-assignment step.
	AssignedRole string

	// UserID is set once profile creation succeeds.
	UserID *uuid.UUID

	CreatedAt     time.Time
	CompletedAt   *time.Time
	FailureReason string
}
