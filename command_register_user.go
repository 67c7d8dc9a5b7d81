package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// MsgVerificationEmailSent confirms that a verification email went out.
const MsgVerificationEmailSent = "we sent you an email to verify your account"

// MsgEmailAlreadyRegistered rejects a registration against a live account.
const MsgEmailAlreadyRegistered = "email already registered"

// MsgPasswordsDoNotMatch rejects a mismatched confirmation.
const MsgPasswordsDoNotMatch = "passwords do not match"

type RegisterUserMessage struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	OnResponse      func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "account.register" }

type RegisterUserResponse struct {
	User     *User
	Envelope Envelope
	Success  bool
}

// RegisterUserHandler creates an unverified account and emails its
// verification token. Registering an email that already has an unverified
// account is treated as a resend: name, password, and token are overwritten.
type RegisterUserHandler struct {
	repo         RepositoryManager
	mailer       Mailer
	activitySink ActivitySink
	logger       Logger
}

// RegisterUserOption customizes the handler.
type RegisterUserOption func(*RegisterUserHandler)

// WithRegisterUserActivitySink sets the sink for registration events.
func WithRegisterUserActivitySink(sink ActivitySink) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithRegisterUserLogger overrides the handler logger.
func WithRegisterUserLogger(logger Logger) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewRegisterUserHandler wires the registration use-case.
func NewRegisterUserHandler(repo RepositoryManager, mailer Mailer, opts ...RegisterUserOption) *RegisterUserHandler {
	h := &RegisterUserHandler{
		repo:         repo,
		mailer:       mailer,
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

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	resp := &RegisterUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// validation order matters: first failing rule wins
	if err := ValidateName(event.Name); err != nil {
		resp.Envelope = ErrorResponse(err.Error(), 200)
		return h.respond(event, resp)
	}

	if event.Password != event.ConfirmPassword {
		resp.Envelope = ErrorResponse(MsgPasswordsDoNotMatch, 200)
		return h.respond(event, resp)
	}

	if err := ValidatePasswordStrength(event.Password); err != nil {
		resp.Envelope = ErrorResponse(err.Error(), 200)
		return h.respond(event, resp)
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	token := GenerateToken(VerificationTokenLength)
	resend := false

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email")
		}

		if existing != nil {
			if !existing.IsUnverified() {
				resp.Envelope = ErrorResponse(MsgEmailAlreadyRegistered, 200)
				return nil
			}

			// unverified re-registration is a resend with fresh credentials
			resend = true
			patch := UserPatch{
				Name:                   &event.Name,
				PasswordHash:           &hash,
				EmailVerificationToken: &token,
			}
			if event.Phone != "" {
				patch.Phone = &event.Phone
			}

			if resp.User, err = h.repo.Users().ApplyPatchTx(ctx, tx, existing.ID, patch); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update unverified account")
			}
		} else {
			user := &User{
				Name:                   event.Name,
				Email:                  event.Email,
				Phone:                  event.Phone,
				PasswordHash:           hash,
				Status:                 UserStatusUnverified,
				EmailVerificationToken: &token,
			}
			if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
				user.ID = id
			}

			if resp.User, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
			}
		}

		// send inside the transaction so a delivery failure rolls the
		// account write back instead of stranding an unreachable token
		if err := h.mailer.SendVerificationEmail(ctx, resp.User.Email, resp.User.Name, token); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if resp.User != nil {
		h.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventUserRegistered,
			Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
			UserID:    resp.User.ID.String(),
			Metadata:  map[string]any{"resend": resend},
		})

		msg := MsgVerificationEmailSent
		if resend {
			msg += " (again)"
		}
		resp.Envelope = SuccessResponse(msg, nil)
		resp.Success = true
	}

	return h.respond(event, resp)
}

func (h *RegisterUserHandler) respond(event RegisterUserMessage, resp *RegisterUserResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *RegisterUserHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("register activity sink error: %v", err)
	}
}
