package onboarding

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

// errUnmatched aborts a Mutate without writing; the event is dropped.
var errUnmatched = errors.New("onboarding: event does not match current state")

// Engine is the saga orchestration runtime. It subscribes to the start
// event and every step event, applies the transition table under the
// store's per-instance lock, and publishes the resulting commands. It
// never blocks waiting for a reply: the "wait" for the next step is simply
// that no matching event has arrived yet.
//
// There is no expiry for stalled instances. An instance whose expected
// event never arrives stays in its non-terminal state indefinitely.
type Engine struct {
	store  Store
	pub    bus.Publisher
	logger *slog.Logger

	now     func() time.Time
	newCode func() string
}

// NewEngine creates an engine. If logger is nil, slog.Default() is used.
func NewEngine(store Store, pub bus.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		pub:     pub,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newCode: newConfirmationCode,
	}
}

// Register subscribes the engine's handlers on sub.
func (e *Engine) Register(sub bus.Subscriber) error {
	if err := sub.Subscribe(contracts.KindOnboardingStarted, e.handleStart); err != nil {
		return err
	}
	eventKinds := []string{
		contracts.KindCredentialCreated,
		contracts.KindCredentialCreationFailed,
		contracts.KindConfirmationDelivered,
		contracts.KindRoleAssigned,
		contracts.KindProfileCreated,
		contracts.KindProfileCreationFailed,
	}
	for _, kind := range eventKinds {
		if err := sub.Subscribe(kind, e.handleEvent); err != nil {
			return err
		}
	}
	return nil
}

// handleStart creates a new instance for a start event and issues the
// first command. A start for an email with an onboarding already in flight
// is dropped: the natural-key correlation prevents duplicate concurrent
// workflows for the same identity.
func (e *Engine) handleStart(ctx context.Context, env bus.Envelope) error {
	ev, ok := env.Message.(*contracts.OnboardingStarted)
	if !ok {
		return fmt.Errorf("onboarding: unexpected message %T on %s", env.Message, contracts.KindOnboardingStarted)
	}

	inst, cmds := start(uuid.New(), e.newCode(), e.now(), ev)

	if err := e.store.Create(ctx, inst); err != nil {
		if errors.Is(err, ErrEmailInFlight) {
			e.logger.Warn("onboarding: duplicate start dropped", "email", ev.Email)
			return nil
		}
		return err
	}

	e.logger.Info("onboarding: started",
		"correlation_id", inst.CorrelationID,
		"email", inst.Email,
	)
	return e.publishAll(ctx, cmds)
}

// handleEvent applies one step event. The read-transition-write sequence
// runs inside Store.Mutate so two workers racing on the same correlation
// id are serialized; commands are published only after the write succeeds.
func (e *Engine) handleEvent(ctx context.Context, env bus.Envelope) error {
	correlationID, ok := eventCorrelationID(env.Message)
	if !ok {
		e.logger.Warn("onboarding: event without correlation id dropped", "kind", env.Kind())
		return nil
	}

	var cmds []contracts.Message
	var nextState State
	err := e.store.Mutate(ctx, correlationID, func(inst *Instance) error {
		out, matched := transition(inst, env.Message, e.now())
		if !matched {
			return errUnmatched
		}
		cmds = out
		nextState = inst.CurrentState
		return nil
	})

	switch {
	case errors.Is(err, ErrNotFound):
		e.logger.Warn("onboarding: event for unknown instance dropped",
			"kind", env.Kind(), "correlation_id", correlationID)
		return nil
	case errors.Is(err, errUnmatched):
		e.logger.Warn("onboarding: out-of-order event dropped",
			"kind", env.Kind(), "correlation_id", correlationID)
		return nil
	case err != nil:
		return err
	}

	e.logger.Info("onboarding: transition applied",
		"kind", env.Kind(),
		"correlation_id", correlationID,
		"state", nextState,
	)
	return e.publishAll(ctx, cmds)
}

func (e *Engine) publishAll(ctx context.Context, cmds []contracts.Message) error {
	for _, cmd := range cmds {
		env := bus.NewEnvelope(cmd)
		if err := e.pub.Publish(ctx, cmd.Kind(), env); err != nil {
			return fmt.Errorf("onboarding: publish %s: %w", cmd.Kind(), err)
		}
	}
	return nil
}

// HandleStatus answers the onboarding-status request from the instance
// store. It is wired as an RPC responder by the saga service.
func (e *Engine) HandleStatus(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.OnboardingStatusRequest)
	if !ok {
		return nil, fmt.Errorf("onboarding: unexpected status request %T", req)
	}
	var inst *Instance
	var err error
	switch {
	case r.CorrelationID != uuid.Nil:
		inst, err = e.store.Get(ctx, r.CorrelationID)
	case r.Email != "":
		inst, err = e.store.FindByEmail(ctx, r.Email)
	default:
		return nil, rpc.Faultf(contracts.FaultNotFound, "status request needs a correlation id or an email")
	}
	if errors.Is(err, ErrNotFound) {
		return nil, rpc.Faultf(contracts.FaultNotFound, "no onboarding found")
	}
	if err != nil {
		return nil, err
	}
	return &contracts.OnboardingStatusReply{
		CorrelationID: inst.CorrelationID,
		State:         string(inst.CurrentState),
		Username:      inst.Username,
		Email:         inst.Email,
		AuthUserID:    inst.AuthUserID,
		UserID:        inst.UserID,
		AssignedRole:  inst.AssignedRole,
		FailureReason: inst.FailureReason,
		CreatedAt:     inst.CreatedAt,
		CompletedAt:   inst.CompletedAt,
	}, nil
}

// HandleVerify checks a presented confirmation code against the instance
// for the email. On a match it commands the auth service to mark the
// credential verified. The code stays valid after use; presenting it again
// re-issues the same command, which the auth service applies idempotently.
func (e *Engine) HandleVerify(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.VerifyEmailRequest)
	if !ok {
		return nil, fmt.Errorf("onboarding: unexpected verify request %T", req)
	}

	inst, err := e.store.FindByEmail(ctx, r.Email)
	if errors.Is(err, ErrNotFound) {
		return nil, rpc.Faultf(contracts.FaultNotFound, "no onboarding found for %s", r.Email)
	}
	if err != nil {
		return nil, err
	}
	if inst.AuthUserID == nil {
		return nil, rpc.Faultf(contracts.FaultNotFound, "onboarding for %s has no credentials to verify yet", r.Email)
	}
	if r.Code != inst.ConfirmationCode {
		return nil, rpc.Faultf(contracts.FaultInvalidCode, "confirmation code does not match")
	}

	cmd := &contracts.MarkEmailVerifiedCommand{
		CorrelationID: inst.CorrelationID,
		AuthUserID:    *inst.AuthUserID,
	}
	if err := e.publishAll(ctx, []contracts.Message{cmd}); err != nil {
		return nil, err
	}

	e.logger.Info("onboarding: email verified",
		"correlation_id", inst.CorrelationID,
		"email", inst.Email,
	)
	return &contracts.VerifyEmailReply{Verified: true}, nil
}

// newConfirmationCode returns a 6-digit code for the confirmation mail.
func newConfirmationCode() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000)
}
