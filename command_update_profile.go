package accounts

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// MsgProfileUpdated confirms the profile change.
const MsgProfileUpdated = "profile updated successfully"

type UpdateProfileMessage struct {
	SessionToken string `json:"session_token"`
	Name         string `json:"name"`
	Phone        string `json:"phone_number"`
	OnResponse   func(resp *UpdateProfileResponse)
}

func (e UpdateProfileMessage) Type() string { return "account.profile.update" }

type UpdateProfileResponse struct {
	User     *User
	Envelope Envelope
	Success  bool
}

// UpdateProfileHandler renames an authenticated account and optionally
// updates its phone number.
type UpdateProfileHandler struct {
	repo         RepositoryManager
	auth         SessionAuthenticator
	activitySink ActivitySink
	logger       Logger
}

// UpdateProfileOption customizes the handler.
type UpdateProfileOption func(*UpdateProfileHandler)

// WithUpdateProfileActivitySink sets the sink for profile events.
func WithUpdateProfileActivitySink(sink ActivitySink) UpdateProfileOption {
	return func(h *UpdateProfileHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithUpdateProfileLogger overrides the handler logger.
func WithUpdateProfileLogger(logger Logger) UpdateProfileOption {
	return func(h *UpdateProfileHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewUpdateProfileHandler wires the profile-update use-case.
func NewUpdateProfileHandler(repo RepositoryManager, auth SessionAuthenticator, opts ...UpdateProfileOption) *UpdateProfileHandler {
	h := &UpdateProfileHandler{
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

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	resp := &UpdateProfileResponse{}

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

	if err := ValidateName(event.Name); err != nil {
		resp.Envelope = ErrorResponse(err.Error(), 200)
		return h.respond(event, resp)
	}

	if err := ValidatePhone(event.Phone); err != nil {
		resp.Envelope = ErrorResponse(err.Error(), 200)
		return h.respond(event, resp)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		patch := UserPatch{Name: &event.Name}
		if event.Phone != "" {
			patch.Phone = &event.Phone
		}

		var err error
		if resp.User, err = h.repo.Users().ApplyPatchTx(ctx, tx, user.ID, patch); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist profile")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	h.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	resp.Envelope = SuccessResponse(MsgProfileUpdated, nil)
	resp.Success = true

	return h.respond(event, resp)
}

func (h *UpdateProfileHandler) respond(event UpdateProfileMessage, resp *UpdateProfileResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *UpdateProfileHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("update profile activity sink error: %v", err)
	}
}
