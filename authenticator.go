package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// SessionAuthenticator issues and resolves opaque session tokens. Sessions
// are database rows with no expiry; a token stays valid until logout or
// account deletion destroys it.
type SessionAuthenticator interface {
	// Resolve maps a presented token to its account. Every failure mode,
	// empty token, never-issued token, destroyed token, returns the same
	// ErrCredentialsExpired so callers cannot probe the session space.
	Resolve(ctx context.Context, token string) (*User, error)

	// Create opens a fresh session for the user and returns its token.
	Create(ctx context.Context, user *User) (string, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (string, error)

	// Destroy ends the session. The bool reports whether it existed.
	Destroy(ctx context.Context, token string) (bool, error)
	DestroyTx(ctx context.Context, tx bun.IDB, token string) (bool, error)
}

// AuthenticatorOption customizes authenticator construction.
type AuthenticatorOption func(*sessionAuthenticator)

// WithAuthenticatorLogger overrides the logger.
func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *sessionAuthenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthenticatorActivitySink sets the sink used for session lifecycle events.
func WithAuthenticatorActivitySink(sink ActivitySink) AuthenticatorOption {
	return func(a *sessionAuthenticator) {
		a.activitySink = normalizeActivitySink(sink)
	}
}

// NewSessionAuthenticator wires the default authenticator over the sessions
// repository.
func NewSessionAuthenticator(sessions Sessions, opts ...AuthenticatorOption) SessionAuthenticator {
	a := &sessionAuthenticator{
		sessions:     sessions,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

type sessionAuthenticator struct {
	sessions     Sessions
	activitySink ActivitySink
	logger       Logger
}

var _ SessionAuthenticator = (*sessionAuthenticator)(nil)

func (a *sessionAuthenticator) Resolve(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrCredentialsExpired
	}

	session, err := a.sessions.GetByToken(ctx, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrCredentialsExpired
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve session")
	}

	if session.User == nil {
		// orphaned session row, treat as unauthenticated
		a.logger.Warn("session %s has no owning user", session.ID)
		return nil, ErrCredentialsExpired
	}

	return session.User, nil
}

func (a *sessionAuthenticator) Create(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", goerrors.New("cannot create session without a user", goerrors.CategoryBadInput)
	}

	token := GenerateToken(SessionTokenLength)

	session := &Session{
		UserID: user.ID,
		Token:  token,
	}

	if _, err := a.sessions.Create(ctx, session); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return token, nil
}

func (a *sessionAuthenticator) CreateTx(ctx context.Context, tx bun.IDB, user *User) (string, error) {
	if user == nil {
		return "", goerrors.New("cannot create session without a user", goerrors.CategoryBadInput)
	}

	token := GenerateToken(SessionTokenLength)

	session := &Session{
		UserID: user.ID,
		Token:  token,
	}

	if _, err := a.sessions.CreateTx(ctx, tx, session); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	return token, nil
}

func (a *sessionAuthenticator) Destroy(ctx context.Context, token string) (bool, error) {
	existed, err := a.sessions.DeleteByToken(ctx, token)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to destroy session")
	}

	if existed {
		a.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLogout,
		})
	}

	return existed, nil
}

func (a *sessionAuthenticator) DestroyTx(ctx context.Context, tx bun.IDB, token string) (bool, error) {
	existed, err := a.sessions.DeleteByTokenTx(ctx, tx, token)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to destroy session")
	}
	return existed, nil
}

func (a *sessionAuthenticator) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(a.activitySink).Record(ctx, event); err != nil {
		a.logger.Warn("authenticator activity sink error: %v", err)
	}
}
