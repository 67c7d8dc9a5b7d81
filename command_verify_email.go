package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// MsgInvalidToken is the uniform reply for any unknown verification token;
// it never reveals whether the token once existed.
const MsgInvalidToken = "invalid token"

// MsgEmailVerified confirms a completed verification.
const MsgEmailVerified = "email verified successfully"

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "account.verify_email" }

type VerifyEmailResponse struct {
	User     *User
	Envelope Envelope
	Success  bool
}

// VerifyEmailHandler completes the email-verification flow: it resolves the
// token to its account, moves the account to verified, and sends a welcome
// email. The welcome email is decorative; its failure never fails the flow.
type VerifyEmailHandler struct {
	repo         RepositoryManager
	mailer       Mailer
	states       AccountStateMachine
	activitySink ActivitySink
	logger       Logger
}

// VerifyEmailOption customizes the handler.
type VerifyEmailOption func(*VerifyEmailHandler)

// WithVerifyEmailActivitySink sets the sink for verification events.
func WithVerifyEmailActivitySink(sink ActivitySink) VerifyEmailOption {
	return func(h *VerifyEmailHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithVerifyEmailLogger overrides the handler logger.
func WithVerifyEmailLogger(logger Logger) VerifyEmailOption {
	return func(h *VerifyEmailHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewVerifyEmailHandler wires the email-verification use-case.
func NewVerifyEmailHandler(repo RepositoryManager, mailer Mailer, states AccountStateMachine, opts ...VerifyEmailOption) *VerifyEmailHandler {
	h := &VerifyEmailHandler{
		repo:         repo,
		mailer:       mailer,
		states:       states,
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

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	resp := &VerifyEmailResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByVerificationTokenTx(ctx, tx, event.Token)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				resp.Envelope = ErrorResponse(MsgInvalidToken, 200)
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up verification token")
		}

		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		if err := h.states.TransitionToVerified(ctx, actor, user); err != nil {
			return err
		}

		status := user.Status
		patch := UserPatch{
			Status:                      &status,
			ClearEmailVerificationToken: true,
		}
		if resp.User, err = h.repo.Users().ApplyPatchTx(ctx, tx, user.ID, patch); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist verification")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	if resp.User != nil {
		// best effort; verification already committed
		if err := h.mailer.SendWelcomeEmail(ctx, resp.User.Email, resp.User.Name); err != nil {
			h.logger.Warn("welcome email failed for %s: %v", resp.User.Email, err)
		}

		h.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventEmailVerified,
			Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
			UserID:    resp.User.ID.String(),
			ToStatus:  UserStatusVerified,
		})

		resp.Envelope = SuccessResponse(MsgEmailVerified, nil)
		resp.Success = true
	}

	return h.respond(event, resp)
}

func (h *VerifyEmailHandler) respond(event VerifyEmailMessage, resp *VerifyEmailResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *VerifyEmailHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("verify email activity sink error: %v", err)
	}
}
