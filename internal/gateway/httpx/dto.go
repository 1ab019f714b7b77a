package httpx

import "time"

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterAcceptedResponse tells the client where to poll for the outcome.
// Registration is asynchronous, so there is no user id to return yet.
type RegisterAcceptedResponse struct {
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

type OnboardingStatusResponse struct {
	CorrelationID string     `json:"correlation_id"`
	State         string     `json:"state"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	AuthUserID    string     `json:"auth_user_id,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	AssignedRole  string     `json:"assigned_role,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type UserWithURLsResponse struct {
	UserID        string             `json:"user_id"`
	Username      string             `json:"username"`
	Email         string             `json:"email"`
	Role          string             `json:"role"`
	EmailVerified bool               `json:"email_verified"`
	URLs          []ShortURLResponse `json:"urls"`
}

type UserListResponse struct {
	Users []UserWithURLsResponse `json:"users"`
}

type ShortURLResponse struct {
	ID          string    `json:"id"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type VerifyEmailResponse struct {
	Verified bool `json:"verified"`
}

type CreateURLRequest struct {
	UserID      string `json:"user_id"`
	OriginalURL string `json:"original_url"`
}

type DeleteAccountResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	FailedStep string `json:"failed_step,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
