package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/bus"
	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/pkg/cache"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

const (
	callTimeout = 10 * time.Second
	userListTTL = 30 * time.Second
	userListKey = "all"
	userListOp  = "users-with-urls"
)

// Handler translates HTTP requests into bus publications and rpc calls.
// It holds no state of its own beyond the user-list cache.
type Handler struct {
	pub    bus.Publisher
	caller rpc.Caller
	cache  cache.Cache
	logger *slog.Logger
}

// NewHandler wires the gateway's collaborators. cache may be nil, in which
// case the user list is fetched fresh on every request.
func NewHandler(pub bus.Publisher, caller rpc.Caller, c cache.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pub: pub, caller: caller, cache: c, logger: logger}
}

// Register accepts a registration and starts the onboarding workflow. The
// reply is 202: the workflow runs asynchronously and the client polls the
// status endpoint for the outcome.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username, email, and password are required")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid_email", "email must contain @")
		return
	}

	env := bus.NewEnvelope(&contracts.OnboardingStarted{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err := h.pub.Publish(r.Context(), contracts.KindOnboardingStarted, env); err != nil {
		h.logger.ErrorContext(r.Context(), "gateway: publishing registration failed", "error", err)
		writeError(w, http.StatusBadGateway, "publish_failed", err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "gateway: registration accepted", "email", req.Email)
	writeJSON(w, http.StatusAccepted, RegisterAcceptedResponse{
		Status:    "accepted",
		StatusURL: "/onboarding?email=" + req.Email,
	})
}

// OnboardingStatusByID reports a workflow's state by correlation id.
func (h *Handler) OnboardingStatusByID(w http.ResponseWriter, r *http.Request) {
	correlationID, err := uuid.Parse(chi.URLParam(r, "correlationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_correlation_id", err.Error())
		return
	}
	h.onboardingStatus(w, r, &contracts.OnboardingStatusRequest{CorrelationID: correlationID})
}

// OnboardingStatusByEmail reports a workflow's state by its email. This is
// how a freshly registered client finds its workflow: the correlation id is
// allocated inside the saga service and is not known at registration time.
func (h *Handler) OnboardingStatusByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email_required", "")
		return
	}
	h.onboardingStatus(w, r, &contracts.OnboardingStatusRequest{Email: email})
}

func (h *Handler) onboardingStatus(w http.ResponseWriter, r *http.Request, req *contracts.OnboardingStatusRequest) {
	out := h.caller.Call(r.Context(), contracts.KindOnboardingStatusRequest, req, callTimeout)
	reply, ok := replyOrWriteError[*contracts.OnboardingStatusReply](w, out)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapStatusToResponse(reply))
}

// VerifyEmail presents the mailed confirmation code for an onboarding. On
// a match the auth service flips the credential's verified flag.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and code are required")
		return
	}

	out := h.caller.Call(r.Context(), contracts.KindVerifyEmailRequest,
		&contracts.VerifyEmailRequest{Email: req.Email, Code: req.Code}, callTimeout)
	reply, ok := replyOrWriteError[*contracts.VerifyEmailReply](w, out)
	if !ok {
		return
	}

	h.invalidateUserList(r)
	writeJSON(w, http.StatusOK, VerifyEmailResponse{Verified: reply.Verified})
}

// Resolve redirects a short code to its original url.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	out := h.caller.Call(r.Context(), contracts.KindResolveShortURLRequest,
		&contracts.ResolveShortURLRequest{ShortCode: shortCode}, callTimeout)
	reply, ok := replyOrWriteError[*contracts.ResolveShortURLReply](w, out)
	if !ok {
		return
	}
	http.Redirect(w, r, reply.URL.OriginalURL, http.StatusFound)
}

// ListUsers returns every user joined with auth info and short urls. The
// aggregated result is cached briefly; a stale list is acceptable here.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if cached, err := h.cache.Get(r.Context(), h.cache.GenerateKey(userListOp, userListKey)); err != nil {
			h.logger.WarnContext(r.Context(), "gateway: cache read failed", "error", err)
		} else if cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	out := h.caller.Call(r.Context(), contracts.KindListUsersWithURLsRequest, &contracts.ListUsersWithURLsRequest{}, callTimeout)
	reply, ok := replyOrWriteError[*contracts.ListUsersWithURLsReply](w, out)
	if !ok {
		return
	}

	resp := UserListResponse{Users: make([]UserWithURLsResponse, 0, len(reply.Users))}
	for _, u := range reply.Users {
		resp.Users = append(resp.Users, mapUserToResponse(u))
	}

	if h.cache != nil {
		if body, err := json.Marshal(resp); err == nil {
			if err := h.cache.Set(r.Context(), h.cache.GenerateKey(userListOp, userListKey), string(body), userListTTL); err != nil {
				h.logger.WarnContext(r.Context(), "gateway: cache write failed", "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUser returns one user joined with auth info and short urls.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}

	out := h.caller.Call(r.Context(), contracts.KindGetUserWithURLsRequest,
		&contracts.GetUserWithURLsRequest{UserID: userID}, callTimeout)
	reply, ok := replyOrWriteError[*contracts.GetUserWithURLsReply](w, out)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapUserToResponse(reply.User))
}

// DeleteUser removes a user's credentials and profile, in that order. A
// partial failure is reported as 200 with success=false so the client can
// see which step stuck.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}

	out := h.caller.Call(r.Context(), contracts.KindDeleteAccountRequest,
		&contracts.DeleteAccountRequest{UserID: userID}, callTimeout)
	reply, ok := replyOrWriteError[*contracts.DeleteAccountReply](w, out)
	if !ok {
		return
	}

	h.invalidateUserList(r)
	writeJSON(w, http.StatusOK, DeleteAccountResponse{
		Success:    reply.Success,
		Message:    reply.Message,
		FailedStep: reply.FailedStep,
	})
}

// CreateURL shortens a url for a user.
func (h *Handler) CreateURL(w http.ResponseWriter, r *http.Request) {
	var req CreateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}
	if req.OriginalURL == "" {
		writeError(w, http.StatusBadRequest, "original_url_required", "")
		return
	}

	out := h.caller.Call(r.Context(), contracts.KindCreateShortURLRequest,
		&contracts.CreateShortURLRequest{UserID: userID, OriginalURL: req.OriginalURL}, callTimeout)
	reply, ok := replyOrWriteError[*contracts.CreateShortURLReply](w, out)
	if !ok {
		return
	}

	h.invalidateUserList(r)
	writeJSON(w, http.StatusCreated, mapURLToResponse(reply.URL))
}

func (h *Handler) invalidateUserList(r *http.Request) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Del(r.Context(), h.cache.GenerateKey(userListOp, userListKey)); err != nil {
		h.logger.WarnContext(r.Context(), "gateway: cache invalidation failed", "error", err)
	}
}

// replyOrWriteError unwraps a call outcome into the expected reply type. On
// anything but success it writes the mapped HTTP error and reports false.
func replyOrWriteError[T contracts.Message](w http.ResponseWriter, out rpc.Outcome) (T, bool) {
	var zero T
	switch out.Kind {
	case rpc.OutcomeSuccess:
		reply, ok := out.Reply.(T)
		if !ok {
			writeError(w, http.StatusBadGateway, "unexpected_reply", out.Reply.Kind())
			return zero, false
		}
		return reply, true
	case rpc.OutcomeFault:
		writeError(w, faultStatus(out.Fault.Code), strings.ToLower(out.Fault.Code), out.Fault.Message)
		return zero, false
	default:
		writeError(w, http.StatusGatewayTimeout, "timeout", "the backing service did not answer in time")
		return zero, false
	}
}

func faultStatus(code string) int {
	switch code {
	case contracts.FaultNotFound:
		return http.StatusNotFound
	case contracts.FaultDuplicate:
		return http.StatusConflict
	case contracts.FaultInvalidCode:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func mapStatusToResponse(reply *contracts.OnboardingStatusReply) OnboardingStatusResponse {
	resp := OnboardingStatusResponse{
		CorrelationID: reply.CorrelationID.String(),
		State:         reply.State,
		Username:      reply.Username,
		Email:         reply.Email,
		AssignedRole:  reply.AssignedRole,
		FailureReason: reply.FailureReason,
		CreatedAt:     reply.CreatedAt,
		CompletedAt:   reply.CompletedAt,
	}
	if reply.AuthUserID != nil {
		resp.AuthUserID = reply.AuthUserID.String()
	}
	if reply.UserID != nil {
		resp.UserID = reply.UserID.String()
	}
	return resp
}

func mapUserToResponse(u contracts.UserWithURLs) UserWithURLsResponse {
	urls := make([]ShortURLResponse, 0, len(u.URLs))
	for _, link := range u.URLs {
		urls = append(urls, mapURLToResponse(link))
	}
	return UserWithURLsResponse{
		UserID:        u.UserID.String(),
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		URLs:          urls,
	}
}

func mapURLToResponse(link contracts.ShortURL) ShortURLResponse {
	return ShortURLResponse{
		ID:          link.ID.String(),
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
