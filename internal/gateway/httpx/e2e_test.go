package httpx

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	authservice "github.com/shortlyhq/shortly-sagas/internal/auth-service"
	"github.com/shortlyhq/shortly-sagas/internal/bus/membus"
	"github.com/shortlyhq/shortly-sagas/internal/composite"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/deletion"
	mailservice "github.com/shortlyhq/shortly-sagas/internal/mail-service"
	"github.com/shortlyhq/shortly-sagas/internal/onboarding"
	"github.com/shortlyhq/shortly-sagas/internal/onboarding/memstore"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
	urlservice "github.com/shortlyhq/shortly-sagas/internal/url-service"
	userservice "github.com/shortlyhq/shortly-sagas/internal/user-service"
)

// newPlatform wires every service onto one in-process broker, exactly the
// way the deployable binaries wire themselves onto NATS. The mail service
// is returned so tests can read the confirmation codes that went out.
func newPlatform(t *testing.T) (http.Handler, *mailservice.Service) {
	t.Helper()
	broker := membus.New(nil)
	t.Cleanup(broker.Close)

	mustRegister := func(name string, err error) {
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	mail := mailservice.NewService(broker, nil)
	mustRegister("auth", authservice.NewService(broker, nil).Register(broker))
	mustRegister("user", userservice.NewService(broker, nil).Register(broker))
	mustRegister("url", urlservice.NewService(broker, nil).Register(broker))
	mustRegister("mail", mail.Register(broker))

	engine := onboarding.NewEngine(memstore.New(), broker, nil)
	mustRegister("engine", engine.Register(broker))

	sagaCaller, err := rpc.NewClient(broker, "saga-service", nil)
	if err != nil {
		t.Fatalf("saga rpc client: %v", err)
	}
	aggregator := composite.NewAggregator(sagaCaller, nil)
	workflow := deletion.NewWorkflow(sagaCaller, nil)
	responder := rpc.NewResponder(broker, nil)
	mustRegister("status", broker.Subscribe(contracts.KindOnboardingStatusRequest, responder.Handle(engine.HandleStatus)))
	mustRegister("verify", broker.Subscribe(contracts.KindVerifyEmailRequest, responder.Handle(engine.HandleVerify)))
	mustRegister("composite get", broker.Subscribe(contracts.KindGetUserWithURLsRequest, responder.Handle(aggregator.HandleGet)))
	mustRegister("composite list", broker.Subscribe(contracts.KindListUsersWithURLsRequest, responder.Handle(aggregator.HandleList)))
	mustRegister("deletion", broker.Subscribe(contracts.KindDeleteAccountRequest, responder.Handle(workflow.Handle)))

	gatewayCaller, err := rpc.NewClient(broker, "gateway", nil)
	if err != nil {
		t.Fatalf("gateway rpc client: %v", err)
	}
	return NewRouter(NewHandler(broker, gatewayCaller, nil, nil)), mail
}

// awaitState polls the status endpoint until the onboarding for email
// reaches want or the deadline passes.
func awaitState(t *testing.T, router http.Handler, email, want string) OnboardingStatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last OnboardingStatusResponse
	for time.Now().Before(deadline) {
		rec := do(t, router, http.MethodGet, "/onboarding?email="+email, "")
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &last); err != nil {
				t.Fatalf("decode status: %v", err)
			}
			if last.State == want {
				return last
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("onboarding for %s never reached %s, last seen %+v", email, want, last)
	return last
}

func registerUser(t *testing.T, router http.Handler, username, email string) OnboardingStatusResponse {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/register",
		`{"username":"`+username+`","email":"`+email+`","password":"s3cret"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("register: expected 202, got %d: %s", rec.Code, rec.Body)
	}
	return awaitState(t, router, email, string(onboarding.StateCompleted))
}

func TestFullOnboardingThroughTheGateway(t *testing.T) {
	router, _ := newPlatform(t)

	status := registerUser(t, router, "alice", "alice@x.com")
	if status.UserID == "" || status.AuthUserID == "" {
		t.Fatalf("completed onboarding must expose both ids: %+v", status)
	}
	if status.AssignedRole != onboarding.DefaultRole {
		t.Fatalf("expected role %q, got %q", onboarding.DefaultRole, status.AssignedRole)
	}
	if status.CompletedAt == nil {
		t.Fatal("completed onboarding must have a completion timestamp")
	}

	// Status is also reachable by correlation id.
	rec := do(t, router, http.MethodGet, "/onboarding/"+status.CorrelationID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status by id: expected 200, got %d", rec.Code)
	}

	// The aggregated detail view sees the fresh user with defaults.
	rec = do(t, router, http.MethodGet, "/users/"+status.UserID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get user: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var user UserWithURLsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Username != "alice" || user.Role != onboarding.DefaultRole || user.EmailVerified {
		t.Fatalf("unexpected user row: %+v", user)
	}
	if user.URLs == nil || len(user.URLs) != 0 {
		t.Fatalf("fresh user must have an empty url list, got %+v", user.URLs)
	}
}

func TestDuplicateRegistrationFailsSecondOnboarding(t *testing.T) {
	router, _ := newPlatform(t)
	registerUser(t, router, "alice", "alice@x.com")

	// Same email again: the auth service rejects the credential and the
	// second workflow terminates in Failed.
	rec := do(t, router, http.MethodPost, "/register",
		`{"username":"alice2","email":"alice@x.com","password":"other"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	status := awaitState(t, router, "alice@x.com", string(onboarding.StateFailed))
	if status.FailureReason == "" {
		t.Fatal("failed onboarding must carry the rejection reason")
	}
}

func TestURLsAndAggregatedListingThroughTheGateway(t *testing.T) {
	router, _ := newPlatform(t)
	alice := registerUser(t, router, "alice", "alice@x.com")
	registerUser(t, router, "bob", "bob@x.com")

	rec := do(t, router, http.MethodPost, "/urls",
		`{"user_id":"`+alice.UserID+`","original_url":"https://example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create url: expected 201, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, http.MethodGet, "/users", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list users: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var list UserListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(list.Users))
	}
	if list.Users[0].Username != "alice" || list.Users[1].Username != "bob" {
		t.Fatalf("listing must keep creation order, got %q %q",
			list.Users[0].Username, list.Users[1].Username)
	}
	if len(list.Users[0].URLs) != 1 || list.Users[0].URLs[0].OriginalURL != "https://example.com" {
		t.Fatalf("alice's url missing: %+v", list.Users[0].URLs)
	}
	if len(list.Users[1].URLs) != 0 {
		t.Fatalf("bob must have no urls, got %+v", list.Users[1].URLs)
	}
}

func TestAccountDeletionThroughTheGateway(t *testing.T) {
	router, _ := newPlatform(t)
	alice := registerUser(t, router, "alice", "alice@x.com")

	rec := do(t, router, http.MethodDelete, "/users/"+alice.UserID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp DeleteAccountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode delete response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected successful deletion: %+v", resp)
	}

	rec = do(t, router, http.MethodGet, "/users/"+alice.UserID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted user must 404, got %d", rec.Code)
	}

	// Deleting again fails at the lookup step.
	rec = do(t, router, http.MethodDelete, "/users/"+alice.UserID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second delete: expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode delete response: %v", err)
	}
	if resp.Success || resp.FailedStep != "lookup" {
		t.Fatalf("expected lookup failure, got %+v", resp)
	}
}

func TestEmailVerificationThroughTheGateway(t *testing.T) {
	router, mail := newPlatform(t)
	alice := registerUser(t, router, "alice", "alice@x.com")

	sent := mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one confirmation mail, got %d", len(sent))
	}
	code := sent[0].Code

	rec := do(t, router, http.MethodPost, "/verify", `{"email":"alice@x.com","code":"wrong"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("wrong code: expected 422, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, router, http.MethodPost, "/verify", `{"email":"alice@x.com","code":"`+code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp VerifyEmailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if !resp.Verified {
		t.Fatal("expected a verified response")
	}

	// The flag flip travels to the auth service as a command; poll the
	// aggregated view until it shows up.
	deadline := time.Now().Add(5 * time.Second)
	var user UserWithURLsResponse
	for {
		rec = do(t, router, http.MethodGet, "/users/"+alice.UserID, "")
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
				t.Fatalf("decode user: %v", err)
			}
			if user.EmailVerified {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("user never became verified: %+v", user)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestShortURLRedirectThroughTheGateway(t *testing.T) {
	router, _ := newPlatform(t)
	alice := registerUser(t, router, "alice", "alice@x.com")

	rec := do(t, router, http.MethodPost, "/urls",
		`{"user_id":"`+alice.UserID+`","original_url":"https://example.com/landing"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create url: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var created ShortURLResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created url: %v", err)
	}

	rec = do(t, router, http.MethodGet, "/r/"+created.ShortCode, "")
	if rec.Code != http.StatusFound {
		t.Fatalf("resolve: expected 302, got %d: %s", rec.Code, rec.Body)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/landing" {
		t.Fatalf("expected redirect to the original url, got %q", loc)
	}

	rec = do(t, router, http.MethodGet, "/r/unknown99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown code: expected 404, got %d", rec.Code)
	}
}
