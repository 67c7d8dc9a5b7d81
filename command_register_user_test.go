package accounts_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/cultivo/accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func expectTx(t *testing.T, repo *MockRepositoryManager) {
	t.Helper()
	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(context.Context, bun.Tx) error)
			var tx bun.Tx
			require.NoError(t, fn(args.Get(0).(context.Context), tx))
		}).Once()
}

func expectTxErr(t *testing.T, repo *MockRepositoryManager, want error) {
	t.Helper()
	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(want).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(context.Context, bun.Tx) error)
			var tx bun.Tx
			require.ErrorIs(t, fn(args.Get(0).(context.Context), tx), want)
		}).Once()
}

func TestRegisterUserCreatesUnverifiedAccount(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	mailer := &MockMailer{}
	sink := &MockActivitySink{}

	handler := accounts.NewRegisterUserHandler(repo, mailer,
		accounts.WithRegisterUserActivitySink(sink),
		accounts.WithRegisterUserLogger(testLogger{}),
	)

	repo.On("Users").Return(users)
	expectTx(t, repo)

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "alice@x.com").
		Return(nil, repositoryNotFound()).Once()

	var verificationToken string
	users.On("RegisterTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *accounts.User) bool {
		if u.EmailVerificationToken != nil {
			verificationToken = *u.EmailVerificationToken
		}
		return u.Email == "alice@x.com" &&
			u.Status == accounts.UserStatusUnverified &&
			u.Name == "Alice" &&
			u.PasswordHash != "" &&
			u.PasswordHash != "Abcd123!" &&
			u.EmailVerificationToken != nil &&
			len(*u.EmailVerificationToken) == accounts.VerificationTokenLength
	})).Return(&accounts.User{
		ID:     uuid.New(),
		Name:   "Alice",
		Email:  "alice@x.com",
		Status: accounts.UserStatusUnverified,
	}, nil).Once()

	mailer.On("SendVerificationEmail", mock.Anything, "alice@x.com", "Alice", mock.MatchedBy(func(token string) bool {
		return token == verificationToken
	})).Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventUserRegistered
	})).Return(nil).Once()

	var resp *accounts.RegisterUserResponse
	err := handler.Execute(ctx, accounts.RegisterUserMessage{
		Name:            "Alice",
		Email:           "alice@x.com",
		Password:        "Abcd123!",
		ConfirmPassword: "Abcd123!",
		OnResponse:      func(r *accounts.RegisterUserResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.True(t, resp.Envelope.IsSuccess())
	assert.Equal(t, accounts.MsgVerificationEmailSent, resp.Envelope.Message)

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	mailer.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestRegisterUserValidationOrder(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	mailer := &MockMailer{}

	handler := accounts.NewRegisterUserHandler(repo, mailer,
		accounts.WithRegisterUserLogger(testLogger{}),
	)

	cases := []struct {
		name    string
		event   accounts.RegisterUserMessage
		message string
	}{
		{
			name: "blank name first",
			event: accounts.RegisterUserMessage{
				Name:            "   ",
				Email:           "alice@x.com",
				Password:        "weak",
				ConfirmPassword: "other",
			},
			message: accounts.MsgEmptyName,
		},
		{
			name: "mismatch before strength",
			event: accounts.RegisterUserMessage{
				Name:            "Alice",
				Email:           "alice@x.com",
				Password:        "weak",
				ConfirmPassword: "weaker",
			},
			message: accounts.MsgPasswordsDoNotMatch,
		},
		{
			name: "strength last",
			event: accounts.RegisterUserMessage{
				Name:            "Alice",
				Email:           "alice@x.com",
				Password:        "weak",
				ConfirmPassword: "weak",
			},
			message: accounts.MsgWeakPassword,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp *accounts.RegisterUserResponse
			tc.event.OnResponse = func(r *accounts.RegisterUserResponse) { resp = r }

			require.NoError(t, handler.Execute(ctx, tc.event))
			require.NotNil(t, resp)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.message, resp.Envelope.Message)
		})
	}

	// nothing reached the repository or mailer
	repo.AssertNotCalled(t, "RunInTx", mock.Anything, mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "SendVerificationEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterUserExistingVerifiedEmail(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	mailer := &MockMailer{}

	handler := accounts.NewRegisterUserHandler(repo, mailer,
		accounts.WithRegisterUserLogger(testLogger{}),
	)

	repo.On("Users").Return(users)
	expectTx(t, repo)

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "alice@x.com").
		Return(&accounts.User{ID: uuid.New(), Email: "alice@x.com", Status: accounts.UserStatusVerified}, nil).Once()

	var resp *accounts.RegisterUserResponse
	err := handler.Execute(ctx, accounts.RegisterUserMessage{
		Name:            "Alice",
		Email:           "alice@x.com",
		Password:        "Abcd123!",
		ConfirmPassword: "Abcd123!",
		OnResponse:      func(r *accounts.RegisterUserResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, accounts.MsgEmailAlreadyRegistered, resp.Envelope.Message)

	mailer.AssertNotCalled(t, "SendVerificationEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	users.AssertExpectations(t)
}

func TestRegisterUserUnverifiedEmailIsResend(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	mailer := &MockMailer{}

	handler := accounts.NewRegisterUserHandler(repo, mailer,
		accounts.WithRegisterUserLogger(testLogger{}),
	)

	existing := &accounts.User{
		ID:     uuid.New(),
		Email:  "alice@x.com",
		Name:   "Old Name",
		Status: accounts.UserStatusUnverified,
	}

	repo.On("Users").Return(users)
	expectTx(t, repo)

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "alice@x.com").
		Return(existing, nil).Once()

	users.On("ApplyPatchTx", mock.Anything, mock.Anything, existing.ID, mock.MatchedBy(func(p accounts.UserPatch) bool {
		return p.Name != nil && *p.Name == "New Name" &&
			p.PasswordHash != nil &&
			p.EmailVerificationToken != nil
	})).Return(&accounts.User{ID: existing.ID, Email: "alice@x.com", Name: "New Name"}, nil).Once()

	mailer.On("SendVerificationEmail", mock.Anything, "alice@x.com", "New Name", mock.Anything).
		Return(nil).Once()

	var resp *accounts.RegisterUserResponse
	err := handler.Execute(ctx, accounts.RegisterUserMessage{
		Name:            "New Name",
		Email:           "alice@x.com",
		Password:        "Abcd123!",
		ConfirmPassword: "Abcd123!",
		OnResponse:      func(r *accounts.RegisterUserResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Envelope.Message, "(again)")

	users.AssertExpectations(t)
	mailer.AssertExpectations(t)
}
