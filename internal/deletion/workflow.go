// Package deletion implements the ordered account deletion workflow.
//
// Deletion spans the auth and user services and has no compensation, so
// the order is chosen for the least harmful partial failure: credentials
// are deleted first, which immediately prevents any future sign-in. If the
// profile deletion then fails, the account is unusable but not fully
// purged, which is an acceptable degraded state. The reverse order could leave a
// usable account with a half-deleted profile, which is worse.
package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

// Step names reported in failure results.
const (
	StepLookup        = "lookup"
	StepDeleteAuth    = "delete-auth"
	StepDeleteProfile = "delete-profile"
)

// Result reports how the workflow ended and, on failure, which step broke.
type Result struct {
	Success    bool
	Message    string
	FailedStep string
}

// Workflow deletes an account in a fixed two-step order. No step is
// retried and no completed step is undone.
type Workflow struct {
	caller  rpc.Caller
	logger  *slog.Logger
	timeout time.Duration
}

// NewWorkflow creates a workflow. If logger is nil, slog.Default() is used.
func NewWorkflow(caller rpc.Caller, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{caller: caller, logger: logger, timeout: 10 * time.Second}
}

// DeleteAccount looks the user up to find the auth record, deletes the
// credentials, and only then deletes the profile.
func (w *Workflow) DeleteAccount(ctx context.Context, userID uuid.UUID) Result {
	out := w.caller.Call(ctx, contracts.KindGetUserRequest,
		&contracts.GetUserRequest{UserID: userID}, w.timeout)
	user, err := unwrap[*contracts.GetUserReply](out)
	if err != nil {
		return Result{Message: fmt.Sprintf("lookup user: %v", err), FailedStep: StepLookup}
	}
	authUserID := user.User.AuthUserID

	w.logger.Info("deletion: deleting credentials first",
		"user_id", userID, "auth_user_id", authUserID)

	authOut := w.caller.Call(ctx, contracts.KindDeleteAuthRequest,
		&contracts.DeleteAuthRequest{AuthUserID: authUserID}, w.timeout)
	authReply, err := unwrap[*contracts.DeleteAuthReply](authOut)
	if err != nil {
		return Result{Message: fmt.Sprintf("delete credentials: %v", err), FailedStep: StepDeleteAuth}
	}
	if !authReply.Success {
		return Result{Message: "auth service refused the credential deletion", FailedStep: StepDeleteAuth}
	}

	profileOut := w.caller.Call(ctx, contracts.KindDeleteUserRequest,
		&contracts.DeleteUserRequest{UserID: userID}, w.timeout)
	profileReply, err := unwrap[*contracts.DeleteUserReply](profileOut)
	if err != nil || !profileReply.Success {
		// Credentials are already gone, so the account cannot be used; the
		// leftover profile is an orphan, not a security hole.
		w.logger.Warn("deletion: credentials deleted but profile removal failed",
			"user_id", userID, "error", err)
		return Result{
			Message:    "credentials deleted but profile removal failed; the account can no longer sign in",
			FailedStep: StepDeleteProfile,
		}
	}

	w.logger.Info("deletion: account deleted", "user_id", userID, "username", user.User.Username)
	return Result{Success: true, Message: fmt.Sprintf("user %s deleted", user.User.Username)}
}

// Handle exposes DeleteAccount as an RPC responder handler.
func (w *Workflow) Handle(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.DeleteAccountRequest)
	if !ok {
		return nil, fmt.Errorf("deletion: unexpected request %T", req)
	}
	res := w.DeleteAccount(ctx, r.UserID)
	return &contracts.DeleteAccountReply{
		Success:    res.Success,
		Message:    res.Message,
		FailedStep: res.FailedStep,
	}, nil
}

// unwrap converts an outcome into the expected reply type or an error that
// preserves the remote fault's code and message.
func unwrap[T contracts.Message](out rpc.Outcome) (T, error) {
	var zero T
	switch out.Kind {
	case rpc.OutcomeSuccess:
		reply, ok := out.Reply.(T)
		if !ok {
			return zero, fmt.Errorf("unexpected reply %T", out.Reply)
		}
		return reply, nil
	case rpc.OutcomeFault:
		return zero, rpc.Faultf(out.Fault.Code, "%s", out.Fault.Message)
	default:
		return zero, fmt.Errorf("timed out")
	}
}
