package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// MsgResetTokenValid tells the client UI it may show the reset form.
const MsgResetTokenValid = "valid token, you may proceed to reset the password"

// MsgResetTokenInvalid covers absent and expired tokens alike.
const MsgResetTokenInvalid = "invalid or expired token"

type VerifyResetTokenMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *VerifyResetTokenResponse)
}

func (e VerifyResetTokenMessage) Type() string { return "auth.password.verify_reset_token" }

type VerifyResetTokenResponse struct {
	Valid    bool
	Envelope Envelope
	Success  bool
}

// VerifyResetTokenHandler is the standalone pre-flight check the client runs
// before showing the reset form. Side-effect free except for the lazy expiry
// deletion inside the store's validity check.
type VerifyResetTokenHandler struct {
	store ResetTokens
}

// NewVerifyResetTokenHandler wires the token pre-flight check.
func NewVerifyResetTokenHandler(store ResetTokens) *VerifyResetTokenHandler {
	return &VerifyResetTokenHandler{store: store}
}

func (h *VerifyResetTokenHandler) Execute(ctx context.Context, event VerifyResetTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during reset token check",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyResetTokenHandler) execute(ctx context.Context, event VerifyResetTokenMessage) error {
	resp := &VerifyResetTokenResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if h.store.IsValid(ctx, event.Token) {
		resp.Valid = true
		resp.Envelope = SuccessResponse(MsgResetTokenValid, nil)
		resp.Success = true
	} else {
		resp.Envelope = ErrorResponse(MsgResetTokenInvalid, 200)
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
