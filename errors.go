package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeCredentialsExpired marks the uniform auth-failure response.
	TextCodeCredentialsExpired = "CREDENTIALS_EXPIRED"
	// TextCodeIncorrectCredentials marks a failed password check.
	TextCodeIncorrectCredentials = "INCORRECT_CREDENTIALS"
	// TextCodeStateNotFound marks a misconfigured deployment.
	TextCodeStateNotFound = "USER_STATE_NOT_FOUND"
	// TextCodeEmailSendFailed marks a failed outbound email.
	TextCodeEmailSendFailed = "EMAIL_SEND_FAILED"
)

// MsgCredentialsExpired is the single message used for every session-token
// failure, whatever the root cause, so tokens cannot be enumerated.
const MsgCredentialsExpired = "credentials expired, logging out"

// MsgIncorrectCredentials is shared between "no such email" and "wrong
// password" during login so the two cannot be told apart.
const MsgIncorrectCredentials = "incorrect credentials"

// ErrCredentialsExpired is the uniform error for a bad, destroyed,
// never-issued, or malformed session token.
var ErrCredentialsExpired = goerrors.New(MsgCredentialsExpired, goerrors.CategoryAuth).
	WithTextCode(TextCodeCredentialsExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned when a password does not match
// its stored hash, or the stored hash cannot be parsed at all.
var ErrMismatchedHashAndPassword = goerrors.New(MsgIncorrectCredentials, goerrors.CategoryAuth).
	WithTextCode(TextCodeIncorrectCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrStateNotFound is raised when a stored account status string maps to no
// known lifecycle state. Fatal, never retried: it means the deployment is
// broken, not that the user did anything wrong.
var ErrStateNotFound = goerrors.New("unknown account state", goerrors.CategoryInternal).
	WithTextCode(TextCodeStateNotFound)

// ErrEmailSend is the category error for a failed outbound email. Use-cases
// decide whether it is fatal (verification, reset) or swallowed (welcome).
var ErrEmailSend = goerrors.New("failed to send email", goerrors.CategoryOperation).
	WithTextCode(TextCodeEmailSendFailed)
