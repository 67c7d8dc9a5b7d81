package accounts

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// MsgPasswordChanged confirms the change.
const MsgPasswordChanged = "password changed successfully"

type ChangePasswordMessage struct {
	SessionToken    string `json:"session_token"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	OnResponse      func(resp *ChangePasswordResponse)
}

func (e ChangePasswordMessage) Type() string { return "auth.password.change" }

type ChangePasswordResponse struct {
	User     *User
	Envelope Envelope
	Success  bool
}

// ChangePasswordHandler rotates an authenticated user's password. The wrong
// current password gets "incorrect credentials", distinct from the uniform
// auth failure, because the caller is authenticated and deserves to know
// which input was wrong.
type ChangePasswordHandler struct {
	repo         RepositoryManager
	auth         SessionAuthenticator
	activitySink ActivitySink
	logger       Logger
}

// ChangePasswordOption customizes the handler.
type ChangePasswordOption func(*ChangePasswordHandler)

// WithChangePasswordActivitySink sets the sink for password-change events.
func WithChangePasswordActivitySink(sink ActivitySink) ChangePasswordOption {
	return func(h *ChangePasswordHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithChangePasswordLogger overrides the handler logger.
func WithChangePasswordLogger(logger Logger) ChangePasswordOption {
	return func(h *ChangePasswordHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewChangePasswordHandler wires the change-password use-case.
func NewChangePasswordHandler(repo RepositoryManager, auth SessionAuthenticator, opts ...ChangePasswordOption) *ChangePasswordHandler {
	h := &ChangePasswordHandler{
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

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	resp := &ChangePasswordResponse{}

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

	if err := ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
		resp.Envelope = ErrorResponse(MsgIncorrectCredentials, 200)
		return h.respond(event, resp)
	}

	if err := ValidatePasswordStrength(event.NewPassword); err != nil {
		resp.Envelope = ErrorResponse(err.Error(), 200)
		return h.respond(event, resp)
	}

	hash, err := HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		patch := UserPatch{PasswordHash: &hash}
		var err error
		if resp.User, err = h.repo.Users().ApplyPatchTx(ctx, tx, user.ID, patch); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist new password")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}

	h.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	resp.Envelope = SuccessResponse(MsgPasswordChanged, nil)
	resp.Success = true

	return h.respond(event, resp)
}

func (h *ChangePasswordHandler) respond(event ChangePasswordMessage, resp *ChangePasswordResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *ChangePasswordHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("change password activity sink error: %v", err)
	}
}
