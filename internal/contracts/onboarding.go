package contracts

import "github.com/google/uuid"

// Kinds of the onboarding saga's start event, step commands and step events.
// The saga service consumes the events; the downstream services consume the
// commands. Every message after the start carries the saga's correlation id.
const (
	KindOnboardingStarted        = "onboarding.started"
	KindCreateCredential         = "auth.credential.create"
	KindCredentialCreated        = "auth.credential.created"
	KindCredentialCreationFailed = "auth.credential.create-failed"
	KindSendConfirmation         = "mail.confirmation.send"
	KindConfirmationDelivered    = "mail.confirmation.delivered"
	KindAssignRole               = "auth.role.assign"
	KindRoleAssigned             = "auth.role.assigned"
	KindCreateProfile            = "user.profile.create"
	KindProfileCreated           = "user.profile.created"
	KindProfileCreationFailed    = "user.profile.create-failed"
	KindMarkEmailVerified        = "auth.email.mark-verified"
)

// OnboardingStarted kicks off a new onboarding workflow. It carries no
// correlation id: the saga service correlates it by email and allocates a
// fresh id for the instance it creates.
type OnboardingStarted struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (OnboardingStarted) Kind() string { return KindOnboardingStarted }

// CreateCredentialCommand asks the auth service to create login credentials.
type CreateCredentialCommand struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Password      string    `json:"password"`
}

func (CreateCredentialCommand) Kind() string { return KindCreateCredential }

// CredentialCreated reports the auth-side user record that was created.
type CredentialCreated struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	AuthUserID    uuid.UUID `json:"auth_user_id"`
}

func (CredentialCreated) Kind() string { return KindCredentialCreated }

// CredentialCreationFailed terminates the saga with the auth service's reason.
type CredentialCreationFailed struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Reason        string    `json:"reason"`
}

func (CredentialCreationFailed) Kind() string { return KindCredentialCreationFailed }

// SendConfirmationCommand asks the mail service to deliver the
// confirmation code generated when the saga started.
type SendConfirmationCommand struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Email         string    `json:"email"`
	Code          string    `json:"code"`
}

func (SendConfirmationCommand) Kind() string { return KindSendConfirmation }

// ConfirmationDelivered reports that the confirmation mail went out.
type ConfirmationDelivered struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
}

func (ConfirmationDelivered) Kind() string { return KindConfirmationDelivered }

// AssignRoleCommand asks the auth service to assign the default role.
type AssignRoleCommand struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	AuthUserID    uuid.UUID `json:"auth_user_id"`
}

func (AssignRoleCommand) Kind() string { return KindAssignRole }

// RoleAssigned reports the role the auth service settled on.
type RoleAssigned struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Role          string    `json:"role"`
}

func (RoleAssigned) Kind() string { return KindRoleAssigned }

// CreateProfileCommand asks the user service to create the public profile.
type CreateProfileCommand struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	AuthUserID    uuid.UUID `json:"auth_user_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
}

func (CreateProfileCommand) Kind() string { return KindCreateProfile }

// ProfileCreated completes the saga.
type ProfileCreated struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	UserID        uuid.UUID `json:"user_id"`
}

func (ProfileCreated) Kind() string { return KindProfileCreated }

// ProfileCreationFailed terminates the saga with the user service's reason.
type ProfileCreationFailed struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Reason        string    `json:"reason"`
}

func (ProfileCreationFailed) Kind() string { return KindProfileCreationFailed }

// MarkEmailVerifiedCommand asks the auth service to flip the verified flag
// on a credential. The saga service issues it after the user presents the
// confirmation code that was mailed out during onboarding.
type MarkEmailVerifiedCommand struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	AuthUserID    uuid.UUID `json:"auth_user_id"`
}

func (MarkEmailVerifiedCommand) Kind() string { return KindMarkEmailVerified }

func init() {
	register(KindOnboardingStarted, func() Message { return &OnboardingStarted{} })
	register(KindCreateCredential, func() Message { return &CreateCredentialCommand{} })
	register(KindCredentialCreated, func() Message { return &CredentialCreated{} })
	register(KindCredentialCreationFailed, func() Message { return &CredentialCreationFailed{} })
	register(KindSendConfirmation, func() Message { return &SendConfirmationCommand{} })
	register(KindConfirmationDelivered, func() Message { return &ConfirmationDelivered{} })
	register(KindAssignRole, func() Message { return &AssignRoleCommand{} })
	register(KindRoleAssigned, func() Message { return &RoleAssigned{} })
	register(KindCreateProfile, func() Message { return &CreateProfileCommand{} })
	register(KindProfileCreated, func() Message { return &ProfileCreated{} })
	register(KindProfileCreationFailed, func() Message { return &ProfileCreationFailed{} })
	register(KindMarkEmailVerified, func() Message { return &MarkEmailVerifiedCommand{} })
}
