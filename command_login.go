package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// MsgMustVerifyEmail gates login for accounts that never verified.
const MsgMustVerifyEmail = "you must verify your email before logging in"

// MsgLoginSuccessful confirms a login; the envelope data carries the session
// token and display name.
const MsgLoginSuccessful = "login successful"

type LoginMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	PushToken  string `json:"push_token"`
	OnResponse func(resp *LoginResponse)
}

func (e LoginMessage) Type() string { return "auth.login" }

type LoginResponse struct {
	User         *User
	SessionToken string
	Envelope     Envelope
	Success      bool
}

// LoginHandler authenticates an email/password pair and opens a session.
// "No such email" and "wrong password" produce the same message so accounts
// cannot be enumerated through login. A non-verified account gets a fresh
// verification token and email instead of a session.
type LoginHandler struct {
	repo         RepositoryManager
	auth         SessionAuthenticator
	mailer       Mailer
	pushes       PushRegistrar
	activitySink ActivitySink
	logger       Logger
}

// LoginOption customizes the handler.
type LoginOption func(*LoginHandler)

// WithLoginPushRegistrar enables device registration with the notifications
// service on successful login.
func WithLoginPushRegistrar(pushes PushRegistrar) LoginOption {
	return func(h *LoginHandler) {
		if pushes != nil {
			h.pushes = pushes
		}
	}
}

// WithLoginActivitySink sets the sink for login events.
func WithLoginActivitySink(sink ActivitySink) LoginOption {
	return func(h *LoginHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithLoginLogger overrides the handler logger.
func WithLoginLogger(logger Logger) LoginOption {
	return func(h *LoginHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewLoginHandler wires the login use-case.
func NewLoginHandler(repo RepositoryManager, auth SessionAuthenticator, mailer Mailer, opts ...LoginOption) *LoginHandler {
	h := &LoginHandler{
		repo:         repo,
		auth:         auth,
		mailer:       mailer,
		pushes:       NoopPushRegistrar{},
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

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	resp := &LoginResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User
	var verificationToken string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				resp.Envelope = ErrorResponse(MsgIncorrectCredentials, 200)
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email")
		}

		if err := ComparePasswordAndHash(event.Password, user.PasswordHash); err != nil {
			resp.Envelope = ErrorResponse(MsgIncorrectCredentials, 200)
			user = nil
			return nil
		}

		if !user.IsVerified() {
			// re-issue the verification token so the user can get unstuck;
			// the email goes out after this commits
			verificationToken = GenerateToken(VerificationTokenLength)
			patch := UserPatch{EmailVerificationToken: &verificationToken}
			if _, err := h.repo.Users().ApplyPatchTx(ctx, tx, user.ID, patch); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to refresh verification token")
			}

			resp.Envelope = ErrorResponse(MsgMustVerifyEmail, 200)
			return nil
		}

		token, err := h.auth.CreateTx(ctx, tx, user)
		if err != nil {
			return err
		}
		resp.SessionToken = token

		if event.PushToken != "" {
			if _, err := h.repo.Devices().UpsertByPushTokenTx(ctx, tx, user.ID, event.PushToken); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register device")
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "login transaction failed")
	}

	if user == nil {
		h.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "anonymous"},
			Metadata:  map[string]any{"email": NormalizeEmail(event.Email)},
		})
		return h.respond(event, resp)
	}

	if verificationToken != "" {
		// the token write is already committed; a send failure here is
		// fatal so the caller knows no email went out
		if err := h.mailer.SendVerificationEmail(ctx, user.Email, user.Name, verificationToken); err != nil {
			return err
		}
		return h.respond(event, resp)
	}

	// best effort; login already succeeded
	if event.PushToken != "" {
		if err := h.pushes.RegisterDevice(ctx, user.ID.String(), event.PushToken); err != nil {
			h.logger.Warn("push registration failed for user %s: %v", user.ID, err)
		}
	}

	resp.User = user
	resp.Envelope = SuccessResponse(MsgLoginSuccessful, map[string]any{
		"session_token": resp.SessionToken,
		"name":          user.Name,
	})
	resp.Success = true

	return h.respond(event, resp)
}

func (h *LoginHandler) respond(event LoginMessage, resp *LoginResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *LoginHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("login activity sink error: %v", err)
	}
}
