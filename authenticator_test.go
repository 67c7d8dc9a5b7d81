package accounts_test

import (
	"context"
	"testing"

	"github.com/cultivo/accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAuthenticatorCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	sessions := &MockSessions{}
	sink := &MockActivitySink{}

	auth := accounts.NewSessionAuthenticator(sessions,
		accounts.WithAuthenticatorActivitySink(sink),
		accounts.WithAuthenticatorLogger(testLogger{}),
	)

	user := &accounts.User{ID: uuid.New(), Name: "Alice", Status: accounts.UserStatusVerified}

	var issued string
	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s *accounts.Session) bool {
		issued = s.Token
		return s.UserID == user.ID && len(s.Token) == accounts.SessionTokenLength
	})).Return(&accounts.Session{UserID: user.ID}, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventLoginSuccess &&
			evt.UserID == user.ID.String()
	})).Return(nil).Once()

	token, err := auth.Create(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, issued, token)

	sessions.On("GetByToken", mock.Anything, token).
		Return(&accounts.Session{UserID: user.ID, Token: token, User: user}, nil).Once()

	resolved, err := auth.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user, resolved)

	sessions.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestAuthenticatorUniformFailure(t *testing.T) {
	ctx := context.Background()
	sessions := &MockSessions{}

	auth := accounts.NewSessionAuthenticator(sessions,
		accounts.WithAuthenticatorLogger(testLogger{}),
	)

	// never issued and already destroyed look identical: no row
	sessions.On("GetByToken", mock.Anything, mock.Anything).
		Return(nil, repositoryNotFound()).Twice()

	_, err := auth.Resolve(ctx, "never-issued")
	neverIssued := err

	_, err = auth.Resolve(ctx, "destroyed-token")
	destroyed := err

	// empty token short-circuits before the repository
	_, err = auth.Resolve(ctx, "")
	empty := err

	assert.ErrorIs(t, neverIssued, accounts.ErrCredentialsExpired)
	assert.ErrorIs(t, destroyed, accounts.ErrCredentialsExpired)
	assert.ErrorIs(t, empty, accounts.ErrCredentialsExpired)
	assert.Equal(t, neverIssued.Error(), destroyed.Error())
	assert.Equal(t, neverIssued.Error(), empty.Error())

	sessions.AssertExpectations(t)
}

func TestAuthenticatorDestroy(t *testing.T) {
	ctx := context.Background()
	sessions := &MockSessions{}
	sink := &MockActivitySink{}

	auth := accounts.NewSessionAuthenticator(sessions,
		accounts.WithAuthenticatorActivitySink(sink),
		accounts.WithAuthenticatorLogger(testLogger{}),
	)

	sessions.On("DeleteByToken", mock.Anything, "live-token").Return(true, nil).Once()
	sessions.On("DeleteByToken", mock.Anything, "gone-token").Return(false, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventLogout
	})).Return(nil).Once()

	existed, err := auth.Destroy(ctx, "live-token")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = auth.Destroy(ctx, "gone-token")
	require.NoError(t, err)
	assert.False(t, existed)

	sessions.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestAuthenticatorOrphanedSession(t *testing.T) {
	ctx := context.Background()
	sessions := &MockSessions{}

	auth := accounts.NewSessionAuthenticator(sessions,
		accounts.WithAuthenticatorLogger(testLogger{}),
	)

	sessions.On("GetByToken", mock.Anything, "orphan").
		Return(&accounts.Session{ID: uuid.New(), Token: "orphan"}, nil).Once()

	_, err := auth.Resolve(ctx, "orphan")
	assert.ErrorIs(t, err, accounts.ErrCredentialsExpired)
	sessions.AssertExpectations(t)
}
