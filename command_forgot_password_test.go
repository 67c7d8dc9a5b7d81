package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cultivo/accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestForgotPasswordIssuesToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	mailer := &MockMailer{}
	store := accounts.NewMemoryResetTokens()
	sink := &MockActivitySink{}

	handler := accounts.NewForgotPasswordHandler(repo, mailer, store,
		accounts.WithForgotPasswordActivitySink(sink),
		accounts.WithForgotPasswordLogger(testLogger{}),
	)

	user := &accounts.User{ID: uuid.New(), Name: "Alice", Email: "alice@x.com"}

	repo.On("Users").Return(users)
	expectTx(t, repo)

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "alice@x.com").
		Return(user, nil).Once()

	var mirrored string
	users.On("ApplyPatchTx", mock.Anything, mock.Anything, user.ID, mock.MatchedBy(func(p accounts.UserPatch) bool {
		if p.PasswordResetToken == nil {
			return false
		}
		mirrored = *p.PasswordResetToken
		return true
	})).Return(user, nil).Once()

	mailer.On("SendPasswordResetEmail", mock.Anything, "alice@x.com", "Alice", mock.Anything).
		Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventPasswordResetRequested
	})).Return(nil).Once()

	var resp *accounts.ForgotPasswordResponse
	err := handler.Execute(ctx, accounts.ForgotPasswordMessage{
		Email:      "alice@x.com",
		OnResponse: func(r *accounts.ForgotPasswordResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, accounts.MsgPasswordResetEmailSent, resp.Envelope.Message)

	// store, row, and email all carry the same token
	assert.Equal(t, resp.Token, mirrored)
	assert.True(t, store.IsValid(ctx, resp.Token))

	users.AssertExpectations(t)
	mailer.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	mailer := &MockMailer{}
	store := accounts.NewMemoryResetTokens()

	handler := accounts.NewForgotPasswordHandler(repo, mailer, store,
		accounts.WithForgotPasswordLogger(testLogger{}),
	)

	repo.On("Users").Return(users)
	expectTx(t, repo)

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "nobody@x.com").
		Return(nil, repositoryNotFound()).Once()

	var resp *accounts.ForgotPasswordResponse
	err := handler.Execute(ctx, accounts.ForgotPasswordMessage{
		Email:      "nobody@x.com",
		OnResponse: func(r *accounts.ForgotPasswordResponse) { resp = r },
	})
	require.NoError(t, err)

	// unlike login, this flow says which emails exist
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, accounts.MsgEmailNotFound, resp.Envelope.Message)
	assert.Zero(t, store.Len())

	mailer.AssertNotCalled(t, "SendPasswordResetEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestForgotPasswordEmailFailureRevokesToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	mailer := &MockMailer{}
	store := accounts.NewMemoryResetTokens()

	handler := accounts.NewForgotPasswordHandler(repo, mailer, store,
		accounts.WithForgotPasswordLogger(testLogger{}),
	)

	user := &accounts.User{ID: uuid.New(), Name: "Alice", Email: "alice@x.com"}
	sendErr := errors.New("smtp relay down")

	repo.On("Users").Return(users)
	expectTxErr(t, repo, sendErr)

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "alice@x.com").
		Return(user, nil).Once()
	users.On("ApplyPatchTx", mock.Anything, mock.Anything, user.ID, mock.Anything).
		Return(user, nil).Once()
	mailer.On("SendPasswordResetEmail", mock.Anything, "alice@x.com", "Alice", mock.Anything).
		Return(sendErr).Once()

	err := handler.Execute(ctx, accounts.ForgotPasswordMessage{
		Email:      "alice@x.com",
		OnResponse: func(*accounts.ForgotPasswordResponse) {},
	})
	require.Error(t, err)

	// the issued token was revoked when the transaction failed
	assert.Zero(t, store.Len())
}
