package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// MsgLogoutSuccessful confirms the session was destroyed.
const MsgLogoutSuccessful = "logout successful"

type LogoutMessage struct {
	SessionToken string `json:"session_token"`
	OnResponse   func(resp *LogoutResponse)
}

func (e LogoutMessage) Type() string { return "auth.logout" }

type LogoutResponse struct {
	Envelope Envelope
	Success  bool
}

// LogoutHandler ends a session. A token that matches nothing, already
// logged out or never issued, gets the same uniform auth failure as any
// other bad token.
type LogoutHandler struct {
	auth   SessionAuthenticator
	logger Logger
}

// LogoutOption customizes the handler.
type LogoutOption func(*LogoutHandler)

// WithLogoutLogger overrides the handler logger.
func WithLogoutLogger(logger Logger) LogoutOption {
	return func(h *LogoutHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewLogoutHandler wires the logout use-case.
func NewLogoutHandler(auth SessionAuthenticator, opts ...LogoutOption) *LogoutHandler {
	h := &LogoutHandler{
		auth:   auth,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

func (h *LogoutHandler) Execute(ctx context.Context, event LogoutMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during logout",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LogoutHandler) execute(ctx context.Context, event LogoutMessage) error {
	resp := &LogoutResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	existed, err := h.auth.Destroy(ctx, event.SessionToken)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "logout failed")
	}

	if !existed {
		resp.Envelope = SessionTokenInvalidResponse()
		return h.respond(event, resp)
	}

	resp.Envelope = SuccessResponse(MsgLogoutSuccessful, nil)
	resp.Success = true

	return h.respond(event, resp)
}

func (h *LogoutHandler) respond(event LogoutMessage, resp *LogoutResponse) error {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}
