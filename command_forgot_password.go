package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// MsgEmailNotFound is the forgot-password reply for an unknown address.
// This flow deliberately reveals existence, unlike login; the asymmetry is
// a product decision so users get clear feedback when they typo an email.
const MsgEmailNotFound = "email not found"

// MsgPasswordResetEmailSent confirms the reset email went out.
const MsgPasswordResetEmailSent = "password reset email sent"

type ForgotPasswordMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *ForgotPasswordResponse)
}

func (e ForgotPasswordMessage) Type() string { return "auth.password.forgot" }

type ForgotPasswordResponse struct {
	User     *User
	Token    string
	Envelope Envelope
	Success  bool
}

// ForgotPasswordHandler issues a 15-minute reset token, mirrors it onto the
// account row, and emails it. The email goes out inside the transaction so a
// delivery failure rolls the column write back; the store entry is then
// removed best-effort, which is safe because removal is idempotent and the
// orphaned entry expires on its own anyway.
type ForgotPasswordHandler struct {
	repo         RepositoryManager
	mailer       Mailer
	store        ResetTokens
	ttl          time.Duration
	activitySink ActivitySink
	logger       Logger
}

// ForgotPasswordOption customizes the handler.
type ForgotPasswordOption func(*ForgotPasswordHandler)

// WithForgotPasswordTTL overrides the reset-token lifetime.
func WithForgotPasswordTTL(ttl time.Duration) ForgotPasswordOption {
	return func(h *ForgotPasswordHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithForgotPasswordActivitySink sets the sink for reset-request events.
func WithForgotPasswordActivitySink(sink ActivitySink) ForgotPasswordOption {
	return func(h *ForgotPasswordHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithForgotPasswordLogger overrides the handler logger.
func WithForgotPasswordLogger(logger Logger) ForgotPasswordOption {
	return func(h *ForgotPasswordHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewForgotPasswordHandler wires the forgot-password use-case.
func NewForgotPasswordHandler(repo RepositoryManager, mailer Mailer, store ResetTokens, opts ...ForgotPasswordOption) *ForgotPasswordHandler {
	h := &ForgotPasswordHandler{
		repo:         repo,
		mailer:       mailer,
		store:        store,
		ttl:          DefaultResetTokenTTL,
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

func (h *ForgotPasswordHandler) Execute(ctx context.Context, event ForgotPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ForgotPasswordHandler) execute(ctx context.Context, event ForgotPasswordMessage) error {
	resp := &ForgotPasswordResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				resp.Envelope = ErrorResponse(MsgEmailNotFound, 200)
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email")
		}

		token, err := h.store.Issue(ctx, user.Email, h.ttl)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue reset token")
		}
		resp.Token = token

		// mirror the token onto the row so reset-password can resolve the
		// account without trusting the store alone
		patch := UserPatch{PasswordResetToken: &token}
		if resp.User, err = h.repo.Users().ApplyPatchTx(ctx, tx, user.ID, patch); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist reset token")
		}

		if err := h.mailer.SendPasswordResetEmail(ctx, user.Email, user.Name, token); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		if resp.Token != "" {
			h.store.Remove(ctx, resp.Token)
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset request failed")
	}

	if resp.User != nil {
		h.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetRequested,
			Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
			UserID:    resp.User.ID.String(),
		})

		resp.Envelope = SuccessResponse(MsgPasswordResetEmailSent, nil)
		resp.Success = true
	}

	return h.respond(event, resp)
}

func (h *ForgotPasswordHandler) respond(event ForgotPasswordMessage, resp *ForgotPasswordResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *ForgotPasswordHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("forgot password activity sink error: %v", err)
	}
}
