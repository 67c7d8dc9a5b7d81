package accounts_test

import (
	"context"
	"testing"

	"github.com/cultivo/accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDeleteAccountCascades(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	sessions := &MockSessions{}
	sink := &MockActivitySink{}

	user := verifiedUser(t, "Abcd123!")

	auth := accounts.NewSessionAuthenticator(sessions,
		accounts.WithAuthenticatorLogger(testLogger{}),
	)
	handler := accounts.NewDeleteAccountHandler(repo, auth,
		accounts.WithDeleteAccountActivitySink(sink),
		accounts.WithDeleteAccountLogger(testLogger{}),
	)

	sessions.On("GetByToken", mock.Anything, "session-token").
		Return(&accounts.Session{UserID: user.ID, Token: "session-token", User: user}, nil).Once()

	repo.On("Users").Return(users)
	expectTx(t, repo)

	users.On("DeleteAccountTx", mock.Anything, mock.Anything, user.ID).Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventAccountDeleted &&
			evt.UserID == user.ID.String()
	})).Return(nil).Once()

	var resp *accounts.DeleteAccountResponse
	err := handler.Execute(ctx, accounts.DeleteAccountMessage{
		SessionToken: "session-token",
		OnResponse:   func(r *accounts.DeleteAccountResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, accounts.MsgAccountDeleted, resp.Envelope.Message)

	users.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestDeleteAccountExpiredSession(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	sessions := &MockSessions{}

	auth := accounts.NewSessionAuthenticator(sessions,
		accounts.WithAuthenticatorLogger(testLogger{}),
	)
	handler := accounts.NewDeleteAccountHandler(repo, auth,
		accounts.WithDeleteAccountLogger(testLogger{}),
	)

	sessions.On("GetByToken", mock.Anything, "stale-token").
		Return(nil, repositoryNotFound()).Once()

	var resp *accounts.DeleteAccountResponse
	err := handler.Execute(ctx, accounts.DeleteAccountMessage{
		SessionToken: "stale-token",
		OnResponse:   func(r *accounts.DeleteAccountResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, accounts.MsgCredentialsExpired, resp.Envelope.Message)
	assert.Equal(t, 401, resp.Envelope.Code)

	repo.AssertNotCalled(t, "RunInTx", mock.Anything, mock.Anything, mock.Anything)
}
