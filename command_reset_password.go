package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// MsgUserNotFound is returned when a live reset token resolves to no
// account, e.g. the account was deleted after the token was issued.
const MsgUserNotFound = "user not found"

// MsgPasswordResetSuccessful confirms the reset.
const MsgPasswordResetSuccessful = "password reset successfully"

type ResetPasswordMessage struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
	OnResponse      func(resp *ResetPasswordResponse)
}

func (e ResetPasswordMessage) Type() string { return "auth.password.reset" }

type ResetPasswordResponse struct {
	User     *User
	Envelope Envelope
	Success  bool
}

// ResetPasswordHandler consumes a reset token and writes the new password.
// Validation order is fixed: confirmation match, then strength, then token
// validity, then account resolution; each failing rule short-circuits with
// its own message. The password write and the token-column clear commit in
// one transaction; the store entry is removed after commit, which is safe to
// repeat because removal is idempotent.
type ResetPasswordHandler struct {
	repo         RepositoryManager
	store        ResetTokens
	activitySink ActivitySink
	logger       Logger
}

// ResetPasswordOption customizes the handler.
type ResetPasswordOption func(*ResetPasswordHandler)

// WithResetPasswordActivitySink sets the sink for reset events.
func WithResetPasswordActivitySink(sink ActivitySink) ResetPasswordOption {
	return func(h *ResetPasswordHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithResetPasswordLogger overrides the handler logger.
func WithResetPasswordLogger(logger Logger) ResetPasswordOption {
	return func(h *ResetPasswordHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewResetPasswordHandler wires the reset-password use-case.
func NewResetPasswordHandler(repo RepositoryManager, store ResetTokens, opts ...ResetPasswordOption) *ResetPasswordHandler {
	h := &ResetPasswordHandler{
		repo:         repo,
		store:        store,
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

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResetPasswordHandler) execute(ctx context.Context, event ResetPasswordMessage) error {
	resp := &ResetPasswordResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.NewPassword != event.ConfirmPassword {
		resp.Envelope = ErrorResponse(MsgPasswordsDoNotMatch, 200)
		return h.respond(event, resp)
	}

	if err := ValidatePasswordStrength(event.NewPassword); err != nil {
		resp.Envelope = ErrorResponse(err.Error(), 200)
		return h.respond(event, resp)
	}

	if !h.store.IsValid(ctx, event.Token) {
		resp.Envelope = ErrorResponse(MsgResetTokenInvalid, 200)
		return h.respond(event, resp)
	}

	hash, err := HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByResetTokenTx(ctx, tx, event.Token)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				resp.Envelope = ErrorResponse(MsgUserNotFound, 200)
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve reset token")
		}

		patch := UserPatch{
			PasswordHash:            &hash,
			ClearPasswordResetToken: true,
		}
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	if resp.User != nil {
		// the token is spent once the password committed
		h.store.Remove(ctx, event.Token)

		h.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetSuccess,
			Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
			UserID:    resp.User.ID.String(),
		})

		resp.Envelope = SuccessResponse(MsgPasswordResetSuccessful, nil)
		resp.Success = true
	}

	return h.respond(event, resp)
}

func (h *ResetPasswordHandler) respond(event ResetPasswordMessage, resp *ResetPasswordResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *ResetPasswordHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("reset password activity sink error: %v", err)
	}
}
