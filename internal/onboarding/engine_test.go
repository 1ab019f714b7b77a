package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

type capturePub struct {
	mu   sync.Mutex
	envs []bus.Envelope
}

func (p *capturePub) Publish(ctx context.Context, topic string, env bus.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *capturePub) published() []bus.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bus.Envelope, len(p.envs))
	copy(out, p.envs)
	return out
}

func (p *capturePub) last(t *testing.T) bus.Envelope {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.envs) == 0 {
		t.Fatal("expected a published message")
	}
	return p.envs[len(p.envs)-1]
}

func newTestEngine(t *testing.T) (*Engine, *testStore, *capturePub) {
	t.Helper()
	store := newTestStore()
	pub := &capturePub{}
	engine := NewEngine(store, pub, nil)
	engine.now = func() time.Time { return fixedTime }
	engine.newCode = func() string { return "424242" }
	return engine, store, pub
}

func startOnboarding(t *testing.T, engine *Engine, pub *capturePub, email string) uuid.UUID {
	t.Helper()
	env := bus.NewEnvelope(&contracts.OnboardingStarted{
		Username: "alice", Email: email, Password: "s3cret",
	})
	if err := engine.handleStart(context.Background(), env); err != nil {
		t.Fatalf("handle start: %v", err)
	}
	cmd, ok := pub.last(t).Message.(*contracts.CreateCredentialCommand)
	if !ok {
		t.Fatalf("expected CreateCredentialCommand, got %T", pub.last(t).Message)
	}
	return cmd.CorrelationID
}

func deliver(t *testing.T, engine *Engine, ev contracts.Message) {
	t.Helper()
	if err := engine.handleEvent(context.Background(), bus.NewEnvelope(ev)); err != nil {
		t.Fatalf("handle %T: %v", ev, err)
	}
}

func TestEngineRunsFullWorkflow(t *testing.T) {
	engine, store, pub := newTestEngine(t)
	ctx := context.Background()

	correlationID := startOnboarding(t, engine, pub, "alice@x.com")
	authID := uuid.New()
	userID := uuid.New()

	deliver(t, engine, &contracts.CredentialCreated{CorrelationID: correlationID, AuthUserID: authID})
	if _, ok := pub.last(t).Message.(*contracts.SendConfirmationCommand); !ok {
		t.Fatalf("expected SendConfirmationCommand, got %T", pub.last(t).Message)
	}

	deliver(t, engine, &contracts.ConfirmationDelivered{CorrelationID: correlationID})
	assign, ok := pub.last(t).Message.(*contracts.AssignRoleCommand)
	if !ok {
		t.Fatalf("expected AssignRoleCommand, got %T", pub.last(t).Message)
	}
	if assign.AuthUserID != authID {
		t.Fatal("assign command must carry the recorded auth user id")
	}

	deliver(t, engine, &contracts.RoleAssigned{CorrelationID: correlationID, Role: DefaultRole})
	if _, ok := pub.last(t).Message.(*contracts.CreateProfileCommand); !ok {
		t.Fatalf("expected CreateProfileCommand, got %T", pub.last(t).Message)
	}

	deliver(t, engine, &contracts.ProfileCreated{CorrelationID: correlationID, UserID: userID})

	inst, err := store.Get(ctx, correlationID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if inst.CurrentState != StateCompleted {
		t.Fatalf("expected Completed, got %s", inst.CurrentState)
	}
	if inst.UserID == nil || *inst.UserID != userID {
		t.Fatal("completed instance must record the profile's user id")
	}

	// One command per non-terminal step: create credential, send
	// confirmation, assign role, create profile.
	if got := len(pub.published()); got != 4 {
		t.Fatalf("expected 4 published commands, got %d", got)
	}
}

func TestEngineDropsDuplicateStartForInFlightEmail(t *testing.T) {
	engine, _, pub := newTestEngine(t)

	startOnboarding(t, engine, pub, "alice@x.com")
	before := len(pub.published())

	env := bus.NewEnvelope(&contracts.OnboardingStarted{
		Username: "alice2", Email: "alice@x.com", Password: "other",
	})
	if err := engine.handleStart(context.Background(), env); err != nil {
		t.Fatalf("duplicate start must be dropped, not errored: %v", err)
	}
	if got := len(pub.published()); got != before {
		t.Fatalf("duplicate start must publish nothing, got %d new messages", got-before)
	}
}

func TestEngineAllowsRestartAfterTerminalState(t *testing.T) {
	engine, store, pub := newTestEngine(t)

	correlationID := startOnboarding(t, engine, pub, "alice@x.com")
	deliver(t, engine, &contracts.CredentialCreationFailed{CorrelationID: correlationID, Reason: "email taken"})

	inst, err := store.Get(context.Background(), correlationID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if inst.CurrentState != StateFailed {
		t.Fatalf("expected Failed, got %s", inst.CurrentState)
	}

	// The first workflow is terminal, so the email is free again.
	second := startOnboarding(t, engine, pub, "alice@x.com")
	if second == correlationID {
		t.Fatal("restart must allocate a fresh correlation id")
	}
}

func TestEngineDropsEventForUnknownInstance(t *testing.T) {
	engine, _, pub := newTestEngine(t)

	deliver(t, engine, &contracts.CredentialCreated{CorrelationID: uuid.New(), AuthUserID: uuid.New()})
	if got := len(pub.published()); got != 0 {
		t.Fatalf("unknown-instance event must publish nothing, got %d", got)
	}
}

func TestEngineDropsOutOfOrderEvent(t *testing.T) {
	engine, store, pub := newTestEngine(t)

	correlationID := startOnboarding(t, engine, pub, "alice@x.com")
	before := len(pub.published())

	// RoleAssigned arrives while still awaiting credential creation.
	deliver(t, engine, &contracts.RoleAssigned{CorrelationID: correlationID, Role: "Admin"})

	inst, err := store.Get(context.Background(), correlationID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if inst.CurrentState != StateAwaitingCredentialCreation {
		t.Fatalf("out-of-order event must not change state, got %s", inst.CurrentState)
	}
	if inst.AssignedRole != DefaultRole {
		t.Fatalf("out-of-order event must not touch fields, got role %q", inst.AssignedRole)
	}
	if got := len(pub.published()); got != before {
		t.Fatalf("out-of-order event must publish nothing, got %d new messages", got-before)
	}
}

func TestEngineStatusByCorrelationIDAndEmail(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	ctx := context.Background()

	correlationID := startOnboarding(t, engine, pub, "alice@x.com")

	byID, err := engine.HandleStatus(ctx, &contracts.OnboardingStatusRequest{CorrelationID: correlationID})
	if err != nil {
		t.Fatalf("status by id: %v", err)
	}
	reply := byID.(*contracts.OnboardingStatusReply)
	if reply.State != string(StateAwaitingCredentialCreation) {
		t.Fatalf("expected AwaitingCredentialCreation, got %s", reply.State)
	}

	byEmail, err := engine.HandleStatus(ctx, &contracts.OnboardingStatusRequest{Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("status by email: %v", err)
	}
	if byEmail.(*contracts.OnboardingStatusReply).CorrelationID != correlationID {
		t.Fatal("email lookup must resolve to the same instance")
	}
}

func TestEngineStatusUnknownIsNotFoundFault(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.HandleStatus(context.Background(), &contracts.OnboardingStatusRequest{CorrelationID: uuid.New()})
	fe, ok := err.(*rpc.FaultError)
	if !ok {
		t.Fatalf("expected FaultError, got %v", err)
	}
	if fe.Code != contracts.FaultNotFound {
		t.Fatalf("expected %s, got %s", contracts.FaultNotFound, fe.Code)
	}
}

func TestEngineConcurrentEventsOnOneInstance(t *testing.T) {
	engine, store, pub := newTestEngine(t)
	correlationID := startOnboarding(t, engine, pub, "alice@x.com")
	authID := uuid.New()

	// Race the matching event against a burst of out-of-order ones. The
	// store's per-instance lock serializes them; exactly one transition
	// must win and the rest must be dropped.
	var wg sync.WaitGroup
	events := []contracts.Message{
		&contracts.CredentialCreated{CorrelationID: correlationID, AuthUserID: authID},
		&contracts.RoleAssigned{CorrelationID: correlationID, Role: "Admin"},
		&contracts.ProfileCreated{CorrelationID: correlationID, UserID: uuid.New()},
		&contracts.ProfileCreationFailed{CorrelationID: correlationID, Reason: "nope"},
	}
	for _, ev := range events {
		wg.Add(1)
		go func(ev contracts.Message) {
			defer wg.Done()
			_ = engine.handleEvent(context.Background(), bus.NewEnvelope(ev))
		}(ev)
	}
	wg.Wait()

	inst, err := store.Get(context.Background(), correlationID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if inst.CurrentState != StateAwaitingConfirmationDelivery {
		t.Fatalf("expected AwaitingConfirmationDelivery, got %s", inst.CurrentState)
	}
	if inst.AuthUserID == nil || *inst.AuthUserID != authID {
		t.Fatal("the matching event must be the one that was applied")
	}
}

func TestEngineConcurrentStartsCreateDistinctInstances(t *testing.T) {
	engine, store, pub := newTestEngine(t)
	emails := []string{"alice@x.com", "bob@x.com"}

	var wg sync.WaitGroup
	for _, email := range emails {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			env := bus.NewEnvelope(&contracts.OnboardingStarted{
				Username: email, Email: email, Password: "s3cret",
			})
			if err := engine.handleStart(context.Background(), env); err != nil {
				t.Errorf("handle start %s: %v", email, err)
			}
		}(email)
	}
	wg.Wait()

	byEmail := make(map[string]uuid.UUID)
	for _, env := range pub.published() {
		if cmd, ok := env.Message.(*contracts.CreateCredentialCommand); ok {
			byEmail[cmd.Email] = cmd.CorrelationID
		}
	}
	if len(byEmail) != 2 {
		t.Fatalf("expected one credential command per start, got %d", len(byEmail))
	}
	if byEmail["alice@x.com"] == byEmail["bob@x.com"] {
		t.Fatal("concurrent starts must get distinct correlation ids")
	}
	for email, correlationID := range byEmail {
		inst, err := store.Get(context.Background(), correlationID)
		if err != nil {
			t.Fatalf("get instance for %s: %v", email, err)
		}
		if inst.Email != email {
			t.Fatalf("instance %s carries email %q, want %q", correlationID, inst.Email, email)
		}
	}
}

func TestEngineVerifyEmailMarksCredentialVerified(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	ctx := context.Background()
	correlationID := startOnboarding(t, engine, pub, "alice@x.com")
	authID := uuid.New()
	deliver(t, engine, &contracts.CredentialCreated{CorrelationID: correlationID, AuthUserID: authID})

	reply, err := engine.HandleVerify(ctx, &contracts.VerifyEmailRequest{Email: "alice@x.com", Code: "424242"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !reply.(*contracts.VerifyEmailReply).Verified {
		t.Fatal("expected a verified reply")
	}

	cmd, ok := pub.last(t).Message.(*contracts.MarkEmailVerifiedCommand)
	if !ok {
		t.Fatalf("expected MarkEmailVerifiedCommand, got %T", pub.last(t).Message)
	}
	if cmd.CorrelationID != correlationID || cmd.AuthUserID != authID {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestEngineVerifyEmailRejectsWrongCode(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	correlationID := startOnboarding(t, engine, pub, "alice@x.com")
	deliver(t, engine, &contracts.CredentialCreated{CorrelationID: correlationID, AuthUserID: uuid.New()})
	before := len(pub.published())

	_, err := engine.HandleVerify(context.Background(), &contracts.VerifyEmailRequest{Email: "alice@x.com", Code: "000000"})
	fe, ok := err.(*rpc.FaultError)
	if !ok {
		t.Fatalf("expected FaultError, got %v", err)
	}
	if fe.Code != contracts.FaultInvalidCode {
		t.Fatalf("expected %s, got %s", contracts.FaultInvalidCode, fe.Code)
	}
	if len(pub.published()) != before {
		t.Fatal("a rejected code must not publish a command")
	}
}

func TestEngineVerifyEmailWithoutCredentialIsFault(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	startOnboarding(t, engine, pub, "alice@x.com")

	// The credential does not exist yet, so there is nothing to verify.
	_, err := engine.HandleVerify(context.Background(), &contracts.VerifyEmailRequest{Email: "alice@x.com", Code: "424242"})
	fe, ok := err.(*rpc.FaultError)
	if !ok {
		t.Fatalf("expected FaultError, got %v", err)
	}
	if fe.Code != contracts.FaultNotFound {
		t.Fatalf("expected %s, got %s", contracts.FaultNotFound, fe.Code)
	}

	_, err = engine.HandleVerify(context.Background(), &contracts.VerifyEmailRequest{Email: "nobody@x.com", Code: "424242"})
	if fe, ok = err.(*rpc.FaultError); !ok || fe.Code != contracts.FaultNotFound {
		t.Fatalf("unknown email must be a not-found fault, got %v", err)
	}
}
