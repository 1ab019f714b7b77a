package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Kinds of request/reply contracts. Requests are answered on the caller's
// private reply topic, so reply kinds never need their own subscription on
// a shared subject; they exist so the codec can round-trip them.
const (
	KindFault = "fault"

	KindGetUserRequest = "user.get"
	KindGetUserReply   = "user.get.reply"

	KindListUsersRequest = "user.list"
	KindListUsersReply   = "user.list.reply"

	KindDeleteUserRequest = "user.delete"
	KindDeleteUserReply   = "user.delete.reply"

	KindGetAuthInfoRequest = "auth.info.get"
	KindGetAuthInfoReply   = "auth.info.get.reply"

	KindGetAuthInfoBatchRequest = "auth.info.batch"
	KindGetAuthInfoBatchReply   = "auth.info.batch.reply"

	KindDeleteAuthRequest = "auth.delete"
	KindDeleteAuthReply   = "auth.delete.reply"

	KindCreateShortURLRequest = "url.create"
	KindCreateShortURLReply   = "url.create.reply"

	KindListURLsByUserRequest = "url.list"
	KindListURLsByUserReply   = "url.list.reply"

	KindListURLsByUsersRequest = "url.batch-list"
	KindListURLsByUsersReply   = "url.batch-list.reply"

	KindGetUserWithURLsRequest = "composite.user.get"
	KindGetUserWithURLsReply   = "composite.user.get.reply"

	KindListUsersWithURLsRequest = "composite.user.list"
	KindListUsersWithURLsReply   = "composite.user.list.reply"

	KindDeleteAccountRequest = "account.delete"
	KindDeleteAccountReply   = "account.delete.reply"

	KindOnboardingStatusRequest = "onboarding.status"
	KindOnboardingStatusReply   = "onboarding.status.reply"

	KindVerifyEmailRequest = "onboarding.email.verify"
	KindVerifyEmailReply   = "onboarding.email.verify.reply"

	KindResolveShortURLRequest = "url.resolve"
	KindResolveShortURLReply   = "url.resolve.reply"
)

// Fault is the reply published when a responder rejects a request. Code and
// Message carry the remote failure verbatim so the caller can distinguish
// "remote refused" from "remote never answered".
type Fault struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Fault) Kind() string { return KindFault }

// Fault codes used across services.
const (
	FaultNotFound    = "NOT_FOUND"
	FaultDuplicate   = "DUPLICATE_RESOURCE"
	FaultInternal    = "INTERNAL_ERROR"
	FaultInvalidCode = "INVALID_CODE"
)

// ---- user service ----

type GetUserRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (GetUserRequest) Kind() string { return KindGetUserRequest }

// UserRecord is the user service's view of a profile. AuthUserID is the
// foreign key into the auth service.
type UserRecord struct {
	ID         uuid.UUID `json:"id"`
	AuthUserID uuid.UUID `json:"auth_user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
}

type GetUserReply struct {
	User UserRecord `json:"user"`
}

func (GetUserReply) Kind() string { return KindGetUserReply }

type ListUsersRequest struct{}

func (ListUsersRequest) Kind() string { return KindListUsersRequest }

type ListUsersReply struct {
	Users []UserRecord `json:"users"`
}

func (ListUsersReply) Kind() string { return KindListUsersReply }

type DeleteUserRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (DeleteUserRequest) Kind() string { return KindDeleteUserRequest }

type DeleteUserReply struct {
	Success bool `json:"success"`
}

func (DeleteUserReply) Kind() string { return KindDeleteUserReply }

// ---- auth service ----

type GetAuthInfoRequest struct {
	AuthUserID uuid.UUID `json:"auth_user_id"`
}

func (GetAuthInfoRequest) Kind() string { return KindGetAuthInfoRequest }

// AuthInfo is the auxiliary data the aggregator joins onto user rows.
type AuthInfo struct {
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

type GetAuthInfoReply struct {
	Info AuthInfo `json:"info"`
}

func (GetAuthInfoReply) Kind() string { return KindGetAuthInfoReply }

type GetAuthInfoBatchRequest struct {
	AuthUserIDs []uuid.UUID `json:"auth_user_ids"`
}

func (GetAuthInfoBatchRequest) Kind() string { return KindGetAuthInfoBatchRequest }

type GetAuthInfoBatchReply struct {
	Infos map[uuid.UUID]AuthInfo `json:"infos"`
}

func (GetAuthInfoBatchReply) Kind() string { return KindGetAuthInfoBatchReply }

type DeleteAuthRequest struct {
	AuthUserID uuid.UUID `json:"auth_user_id"`
}

func (DeleteAuthRequest) Kind() string { return KindDeleteAuthRequest }

type DeleteAuthReply struct {
	Success bool `json:"success"`
}

func (DeleteAuthReply) Kind() string { return KindDeleteAuthReply }

// ---- url service ----

// ShortURL is one shortened link owned by a user.
type ShortURL struct {
	ID          uuid.UUID `json:"id"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateShortURLRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	OriginalURL string    `json:"original_url"`
}

func (CreateShortURLRequest) Kind() string { return KindCreateShortURLRequest }

type CreateShortURLReply struct {
	URL ShortURL `json:"url"`
}

func (CreateShortURLReply) Kind() string { return KindCreateShortURLReply }

type ListURLsByUserRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (ListURLsByUserRequest) Kind() string { return KindListURLsByUserRequest }

type ListURLsByUserReply struct {
	URLs []ShortURL `json:"urls"`
}

func (ListURLsByUserReply) Kind() string { return KindListURLsByUserReply }

type ListURLsByUsersRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

func (ListURLsByUsersRequest) Kind() string { return KindListURLsByUsersRequest }

type ListURLsByUsersReply struct {
	URLs map[uuid.UUID][]ShortURL `json:"urls"`
}

func (ListURLsByUsersReply) Kind() string { return KindListURLsByUsersReply }

type ResolveShortURLRequest struct {
	ShortCode string `json:"short_code"`
}

func (ResolveShortURLRequest) Kind() string { return KindResolveShortURLRequest }

type ResolveShortURLReply struct {
	URL ShortURL `json:"url"`
}

func (ResolveShortURLReply) Kind() string { return KindResolveShortURLReply }

// ---- saga service: aggregation, account deletion, onboarding status ----

// UserWithURLs is one row of the aggregated view: a profile joined with its
// auth info and short urls.
type UserWithURLs struct {
	UserID        uuid.UUID  `json:"user_id"`
	AuthUserID    uuid.UUID  `json:"auth_user_id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	URLs          []ShortURL `json:"urls"`
}

type GetUserWithURLsRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (GetUserWithURLsRequest) Kind() string { return KindGetUserWithURLsRequest }

type GetUserWithURLsReply struct {
	User UserWithURLs `json:"user"`
}

func (GetUserWithURLsReply) Kind() string { return KindGetUserWithURLsReply }

type ListUsersWithURLsRequest struct{}

func (ListUsersWithURLsRequest) Kind() string { return KindListUsersWithURLsRequest }

type ListUsersWithURLsReply struct {
	Users []UserWithURLs `json:"users"`
}

func (ListUsersWithURLsReply) Kind() string { return KindListUsersWithURLsReply }

type DeleteAccountRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (DeleteAccountRequest) Kind() string { return KindDeleteAccountRequest }

type DeleteAccountReply struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	FailedStep string `json:"failed_step,omitempty"`
}

func (DeleteAccountReply) Kind() string { return KindDeleteAccountReply }

// OnboardingStatusRequest looks an onboarding up by correlation id or,
// when the caller only knows the natural key, by email.
type OnboardingStatusRequest struct {
	CorrelationID uuid.UUID `json:"correlation_id,omitempty"`
	Email         string    `json:"email,omitempty"`
}

func (OnboardingStatusRequest) Kind() string { return KindOnboardingStatusRequest }

type OnboardingStatusReply struct {
	CorrelationID uuid.UUID  `json:"correlation_id"`
	State         string     `json:"state"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	AuthUserID    *uuid.UUID `json:"auth_user_id,omitempty"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	AssignedRole  string     `json:"assigned_role,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (OnboardingStatusReply) Kind() string { return KindOnboardingStatusReply }

// VerifyEmailRequest presents the confirmation code from the onboarding
// mail. The saga service checks it against the instance for the email and,
// on a match, tells the auth service to mark the credential verified.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (VerifyEmailRequest) Kind() string { return KindVerifyEmailRequest }

type VerifyEmailReply struct {
	Verified bool `json:"verified"`
}

func (VerifyEmailReply) Kind() string { return KindVerifyEmailReply }

func init() {
	register(KindFault, func() Message { return &Fault{} })
	register(KindGetUserRequest, func() Message { return &GetUserRequest{} })
	register(KindGetUserReply, func() Message { return &GetUserReply{} })
	register(KindListUsersRequest, func() Message { return &ListUsersRequest{} })
	register(KindListUsersReply, func() Message { return &ListUsersReply{} })
	register(KindDeleteUserRequest, func() Message { return &DeleteUserRequest{} })
	register(KindDeleteUserReply, func() Message { return &DeleteUserReply{} })
	register(KindGetAuthInfoRequest, func() Message { return &GetAuthInfoRequest{} })
	register(KindGetAuthInfoReply, func() Message { return &GetAuthInfoReply{} })
	register(KindGetAuthInfoBatchRequest, func() Message { return &GetAuthInfoBatchRequest{} })
	register(KindGetAuthInfoBatchReply, func() Message { return &GetAuthInfoBatchReply{} })
	register(KindDeleteAuthRequest, func() Message { return &DeleteAuthRequest{} })
	register(KindDeleteAuthReply, func() Message { return &DeleteAuthReply{} })
	register(KindCreateShortURLRequest, func() Message { return &CreateShortURLRequest{} })
	register(KindCreateShortURLReply, func() Message { return &CreateShortURLReply{} })
	register(KindListURLsByUserRequest, func() Message { return &ListURLsByUserRequest{} })
	register(KindListURLsByUserReply, func() Message { return &ListURLsByUserReply{} })
	register(KindListURLsByUsersRequest, func() Message { return &ListURLsByUsersRequest{} })
	register(KindListURLsByUsersReply, func() Message { return &ListURLsByUsersReply{} })
	register(KindGetUserWithURLsRequest, func() Message { return &GetUserWithURLsRequest{} })
	register(KindGetUserWithURLsReply, func() Message { return &GetUserWithURLsReply{} })
	register(KindListUsersWithURLsRequest, func() Message { return &ListUsersWithURLsRequest{} })
	register(KindListUsersWithURLsReply, func() Message { return &ListUsersWithURLsReply{} })
	register(KindDeleteAccountRequest, func() Message { return &DeleteAccountRequest{} })
	register(KindDeleteAccountReply, func() Message { return &DeleteAccountReply{} })
	register(KindOnboardingStatusRequest, func() Message { return &OnboardingStatusRequest{} })
	register(KindOnboardingStatusReply, func() Message { return &OnboardingStatusReply{} })
	register(KindVerifyEmailRequest, func() Message { return &VerifyEmailRequest{} })
	register(KindVerifyEmailReply, func() Message { return &VerifyEmailReply{} })
	register(KindResolveShortURLRequest, func() Message { return &ResolveShortURLRequest{} })
	register(KindResolveShortURLReply, func() Message { return &ResolveShortURLReply{} })
}
