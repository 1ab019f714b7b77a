// Package composite assembles cross-service views of a user: the profile
// joined with auth info and the user's short urls. Auxiliary sub-calls are
// allowed to fail, in which case their fields degrade to documented
// defaults instead of failing the aggregate. The primary profile lookup is
// authoritative and never masked.
package composite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/contracts"
	"github.com/shortlyhq/shortly-sagas/internal/onboarding"
	"github.com/shortlyhq/shortly-sagas/internal/rpc"
)

// Defaults substituted when an auxiliary sub-call fails or a batch lookup
// misses a key.
const (
	defaultRole     = onboarding.DefaultRole
	defaultVerified = false
)

// Aggregator fans calls out to the user, auth and url services and fans
// the results back into combined rows.
type Aggregator struct {
	caller rpc.Caller
	logger *slog.Logger

	// callTimeout bounds each single-key sub-call; listTimeout bounds the
	// listing and batched sub-calls, which touch more data.
	callTimeout time.Duration
	listTimeout time.Duration
}

// NewAggregator creates an aggregator. If logger is nil, slog.Default() is
// used.
func NewAggregator(caller rpc.Caller, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		caller:      caller,
		logger:      logger,
		callTimeout: 5 * time.Second,
		listTimeout: 30 * time.Second,
	}
}

// GetUserWithURLs aggregates one user. The profile lookup must succeed;
// auth info and urls are masked to defaults on sub-call failure.
func (a *Aggregator) GetUserWithURLs(ctx context.Context, userID uuid.UUID) (*contracts.UserWithURLs, error) {
	out := a.caller.Call(ctx, contracts.KindGetUserRequest, &contracts.GetUserRequest{UserID: userID}, a.callTimeout)
	reply, err := successAs[*contracts.GetUserReply]("get user", out)
	if err != nil {
		return nil, err
	}
	user := reply.User

	row := contracts.UserWithURLs{
		UserID:        user.ID,
		AuthUserID:    user.AuthUserID,
		Username:      user.Username,
		Email:         user.Email,
		Role:          defaultRole,
		EmailVerified: defaultVerified,
		URLs:          []contracts.ShortURL{},
	}

	authOut := a.caller.Call(ctx, contracts.KindGetAuthInfoRequest,
		&contracts.GetAuthInfoRequest{AuthUserID: user.AuthUserID}, a.callTimeout)
	if info, err := successAs[*contracts.GetAuthInfoReply]("get auth info", authOut); err != nil {
		a.logger.Warn("composite: auth info unavailable, using defaults",
			"user_id", userID, "error", err)
	} else {
		row.Role = info.Info.Role
		row.EmailVerified = info.Info.EmailVerified
	}

	urlsOut := a.caller.Call(ctx, contracts.KindListURLsByUserRequest,
		&contracts.ListURLsByUserRequest{UserID: user.ID}, a.callTimeout)
	if urls, err := successAs[*contracts.ListURLsByUserReply]("list urls", urlsOut); err != nil {
		a.logger.Warn("composite: urls unavailable, returning empty list",
			"user_id", userID, "error", err)
	} else if urls.URLs != nil {
		row.URLs = urls.URLs
	}

	return &row, nil
}

// ListUsersWithURLs aggregates every user. It issues exactly one batched
// auth-info call and one batched url call regardless of the number of
// users; a failed batch masks its fields to defaults for every row. The
// result has exactly one row per user, in the user service's order.
func (a *Aggregator) ListUsersWithURLs(ctx context.Context) ([]contracts.UserWithURLs, error) {
	out := a.caller.Call(ctx, contracts.KindListUsersRequest, &contracts.ListUsersRequest{}, a.listTimeout)
	reply, err := successAs[*contracts.ListUsersReply]("list users", out)
	if err != nil {
		return nil, err
	}
	users := reply.Users

	rows := make([]contracts.UserWithURLs, 0, len(users))
	if len(users) == 0 {
		return rows, nil
	}

	authIDs := make([]uuid.UUID, len(users))
	userIDs := make([]uuid.UUID, len(users))
	for i, u := range users {
		authIDs[i] = u.AuthUserID
		userIDs[i] = u.ID
	}

	var infos map[uuid.UUID]contracts.AuthInfo
	infoOut := a.caller.Call(ctx, contracts.KindGetAuthInfoBatchRequest,
		&contracts.GetAuthInfoBatchRequest{AuthUserIDs: authIDs}, a.listTimeout)
	if batch, err := successAs[*contracts.GetAuthInfoBatchReply]("batch auth info", infoOut); err != nil {
		a.logger.Warn("composite: auth info batch failed, using defaults for all rows", "error", err)
	} else {
		infos = batch.Infos
	}

	var urls map[uuid.UUID][]contracts.ShortURL
	urlOut := a.caller.Call(ctx, contracts.KindListURLsByUsersRequest,
		&contracts.ListURLsByUsersRequest{UserIDs: userIDs}, a.listTimeout)
	if batch, err := successAs[*contracts.ListURLsByUsersReply]("batch urls", urlOut); err != nil {
		a.logger.Warn("composite: url batch failed, returning empty lists for all rows", "error", err)
	} else {
		urls = batch.URLs
	}

	for _, u := range users {
		row := contracts.UserWithURLs{
			UserID:        u.ID,
			AuthUserID:    u.AuthUserID,
			Username:      u.Username,
			Email:         u.Email,
			Role:          defaultRole,
			EmailVerified: defaultVerified,
			URLs:          []contracts.ShortURL{},
		}
		if info, ok := infos[u.AuthUserID]; ok {
			row.Role = info.Role
			row.EmailVerified = info.EmailVerified
		}
		if list, ok := urls[u.ID]; ok && list != nil {
			row.URLs = list
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// HandleGet exposes GetUserWithURLs as an RPC responder handler.
func (a *Aggregator) HandleGet(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	r, ok := req.(*contracts.GetUserWithURLsRequest)
	if !ok {
		return nil, fmt.Errorf("composite: unexpected request %T", req)
	}
	row, err := a.GetUserWithURLs(ctx, r.UserID)
	if err != nil {
		return nil, err
	}
	return &contracts.GetUserWithURLsReply{User: *row}, nil
}

// HandleList exposes ListUsersWithURLs as an RPC responder handler.
func (a *Aggregator) HandleList(ctx context.Context, req contracts.Message) (contracts.Message, error) {
	if _, ok := req.(*contracts.ListUsersWithURLsRequest); !ok {
		return nil, fmt.Errorf("composite: unexpected request %T", req)
	}
	rows, err := a.ListUsersWithURLs(ctx)
	if err != nil {
		return nil, err
	}
	return &contracts.ListUsersWithURLsReply{Users: rows}, nil
}

// successAs unwraps a successful outcome into the expected reply type, and
// converts faults and timeouts into errors that keep the remote fault code
// intact for propagation.
func successAs[T contracts.Message](op string, out rpc.Outcome) (T, error) {
	var zero T
	switch out.Kind {
	case rpc.OutcomeSuccess:
		reply, ok := out.Reply.(T)
		if !ok {
			return zero, fmt.Errorf("%s: unexpected reply %T", op, out.Reply)
		}
		return reply, nil
	case rpc.OutcomeFault:
		return zero, rpc.Faultf(out.Fault.Code, "%s: %s", op, out.Fault.Message)
	default:
		return zero, fmt.Errorf("%s: timed out", op)
	}
}
