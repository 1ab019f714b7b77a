package onboarding

import (
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/contracts"
)

// start builds a fresh instance from the start event and returns it with
// the first command to publish. It performs no I/O.
func start(correlationID uuid.UUID, code string, now time.Time, ev *contracts.OnboardingStarted) (*Instance, []contracts.Message) {
	inst := &Instance{
		CorrelationID:    correlationID,
		CurrentState:     StateAwaitingCredentialCreation,
		Username:         ev.Username,
		Email:            ev.Email,
		ConfirmationCode: code,
		AssignedRole:     DefaultRole,
		CreatedAt:        now,
	}
	cmds := []contracts.Message{
		&contracts.CreateCredentialCommand{
			CorrelationID: correlationID,
			Username:      ev.Username,
			Email:         ev.Email,
			Password:      ev.Password,
		},
	}
	return inst, cmds
}

// transition is the saga's transition table as a pure function: it mutates
// inst and returns the commands to publish only when ev matches a
// transition for inst.CurrentState. An unmatched event leaves inst
// untouched and returns matched == false, and the caller drops it. The state
// gating here is the only step-ordering the system has; the transport
// provides none.
func transition(inst *Instance, ev contracts.Message, now time.Time) (cmds []contracts.Message, matched bool) {
	switch e := ev.(type) {
	case *contracts.CredentialCreated:
		if inst.CurrentState != StateAwaitingCredentialCreation {
			return nil, false
		}
		authID := e.AuthUserID
		inst.AuthUserID = &authID
		inst.CurrentState = StateAwaitingConfirmationDelivery
		return []contracts.Message{
			&contracts.SendConfirmationCommand{
				CorrelationID: inst.CorrelationID,
				Email:         inst.Email,
				Code:          inst.ConfirmationCode,
			},
		}, true

	case *contracts.CredentialCreationFailed:
		if inst.CurrentState != StateAwaitingCredentialCreation {
			return nil, false
		}
		fail(inst, e.Reason)
		return nil, true

	case *contracts.ConfirmationDelivered:
		if inst.CurrentState != StateAwaitingConfirmationDelivery {
			return nil, false
		}
		inst.CurrentState = StateAwaitingRoleAssignment
		return []contracts.Message{
			&contracts.AssignRoleCommand{
				CorrelationID: inst.CorrelationID,
				AuthUserID:    *inst.AuthUserID,
			},
		}, true

	case *contracts.RoleAssigned:
		if inst.CurrentState != StateAwaitingRoleAssignment {
			return nil, false
		}
		inst.AssignedRole = e.Role
		inst.CurrentState = StateAwaitingProfileCreation
		return []contracts.Message{
			&contracts.CreateProfileCommand{
				CorrelationID: inst.CorrelationID,
				AuthUserID:    *inst.AuthUserID,
				Username:      inst.Username,
				Email:         inst.Email,
			},
		}, true

	case *contracts.ProfileCreated:
		if inst.CurrentState != StateAwaitingProfileCreation {
			return nil, false
		}
		userID := e.UserID
		inst.UserID = &userID
		inst.CurrentState = StateCompleted
		completed := now
		inst.CompletedAt = &completed
		return nil, true

	case *contracts.ProfileCreationFailed:
		if inst.CurrentState != StateAwaitingProfileCreation {
			return nil, false
		}
		fail(inst, e.Reason)
		return nil, true
	}
	return nil, false
}

// fail marks the instance terminally failed. Already-completed steps are
// not compensated: a credential created before a later step failed stays
// in place.
func fail(inst *Instance, reason string) {
	inst.CurrentState = StateFailed
	inst.FailureReason = reason
}

// eventCorrelationID extracts the saga correlation id from a step event.
func eventCorrelationID(ev contracts.Message) (uuid.UUID, bool) {
	switch e := ev.(type) {
	case *contracts.CredentialCreated:
		return e.CorrelationID, true
	case *contracts.CredentialCreationFailed:
		return e.CorrelationID, true
	case *contracts.ConfirmationDelivered:
		return e.CorrelationID, true
	case *contracts.RoleAssigned:
		return e.CorrelationID, true
	case *contracts.ProfileCreated:
		return e.CorrelationID, true
	case *contracts.ProfileCreationFailed:
		return e.CorrelationID, true
	}
	return uuid.Nil, false
}
