package accounts

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// MsgAccountDeleted confirms the deletion.
const MsgAccountDeleted = "account deleted successfully"

type DeleteAccountMessage struct {
	SessionToken string `json:"session_token"`
	OnResponse   func(resp *DeleteAccountResponse)
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

type DeleteAccountResponse struct {
	Envelope Envelope
	Success  bool
}

// DeleteAccountHandler destroys an authenticated account and everything
// hanging off it: sessions and device registrations go in the same
// transaction, so the presented token dies with the account.
type DeleteAccountHandler struct {
	repo         RepositoryManager
	auth         SessionAuthenticator
	activitySink ActivitySink
	logger       Logger
}

// DeleteAccountOption customizes the handler.
type DeleteAccountOption func(*DeleteAccountHandler)

// WithDeleteAccountActivitySink sets the sink for deletion events.
func WithDeleteAccountActivitySink(sink ActivitySink) DeleteAccountOption {
	return func(h *DeleteAccountHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithDeleteAccountLogger overrides the handler logger.
func WithDeleteAccountLogger(logger Logger) DeleteAccountOption {
	return func(h *DeleteAccountHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewDeleteAccountHandler wires the account-deletion use-case.
func NewDeleteAccountHandler(repo RepositoryManager, auth SessionAuthenticator, opts ...DeleteAccountOption) *DeleteAccountHandler {
	h := &DeleteAccountHandler{
		repo:         repo,
		auth:         auth,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	resp := &DeleteAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.auth.Resolve(ctx, event.SessionToken)
	if err != nil {
		if errors.Is(err, ErrCredentialsExpired) {
			resp.Envelope = SessionTokenInvalidResponse()
			return h.respond(event, resp)
		}
		return err
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Users().DeleteAccountTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account deletion transaction failed")
	}

	h.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventAccountDeleted,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	resp.Envelope = SuccessResponse(MsgAccountDeleted, nil)
	resp.Success = true

	return h.respond(event, resp)
}

func (h *DeleteAccountHandler) respond(event DeleteAccountMessage, resp *DeleteAccountResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *DeleteAccountHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("delete account activity sink error: %v", err)
	}
}
