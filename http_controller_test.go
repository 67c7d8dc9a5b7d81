package accounts_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cultivo/accounts"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	app      *fiber.App
	repo     *MockRepositoryManager
	users    *MockUsers
	sessions *MockSessions
	mailer   *MockMailer
	store    *accounts.MemoryResetTokens
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		app:      fiber.New(),
		repo:     &MockRepositoryManager{},
		users:    &MockUsers{},
		sessions: &MockSessions{},
		mailer:   &MockMailer{},
		store:    accounts.NewMemoryResetTokens(),
	}

	auth := accounts.NewSessionAuthenticator(f.sessions,
		accounts.WithAuthenticatorLogger(testLogger{}),
	)

	accounts.RegisterAuthRoutes(f.app,
		accounts.WithControllerRepo(f.repo),
		accounts.WithControllerAuthenticator(auth),
		accounts.WithControllerMailer(f.mailer),
		accounts.WithControllerResetTokens(f.store),
		accounts.WithControllerLogger(testLogger{}),
	)

	return f
}

func (f *controllerFixture) do(t *testing.T, method, path, body string, header map[string]string) (*http.Response, accounts.Envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	res, err := f.app.Test(req)
	require.NoError(t, err)

	var env accounts.Envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res, env
}

func TestControllerRegisterEndpoint(t *testing.T) {
	f := newControllerFixture(t)

	f.repo.On("Users").Return(f.users)
	expectTx(t, f.repo)

	f.users.On("GetByEmailTx", mock.Anything, mock.Anything, "alice@x.com").
		Return(nil, repositoryNotFound()).Once()
	f.users.On("RegisterTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&accounts.User{ID: uuid.New(), Name: "Alice", Email: "alice@x.com", Status: accounts.UserStatusUnverified}, nil).Once()
	f.mailer.On("SendVerificationEmail", mock.Anything, "alice@x.com", "Alice", mock.Anything).
		Return(nil).Once()

	res, env := f.do(t, fiber.MethodPost, "/auth/register", `{
		"name": "Alice",
		"email": "alice@x.com",
		"password": "Abcd123!",
		"confirm_password": "Abcd123!"
	}`, nil)

	assert.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.True(t, env.IsSuccess())
	assert.Equal(t, accounts.MsgVerificationEmailSent, env.Message)

	f.users.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
}

func TestControllerRegisterPayloadValidation(t *testing.T) {
	f := newControllerFixture(t)

	// missing email fails ozzo validation before any handler runs
	res, env := f.do(t, fiber.MethodPost, "/auth/register", `{
		"name": "Alice",
		"password": "Abcd123!",
		"confirm_password": "Abcd123!"
	}`, nil)

	assert.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.False(t, env.IsSuccess())
	assert.Contains(t, env.Message, "email")

	f.repo.AssertNotCalled(t, "RunInTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestControllerMalformedBody(t *testing.T) {
	f := newControllerFixture(t)

	res, env := f.do(t, fiber.MethodPost, "/auth/register", `{not json`, nil)

	assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
	assert.False(t, env.IsSuccess())
	assert.Equal(t, "invalid request body", env.Message)
}

func TestControllerSessionHeaderFlow(t *testing.T) {
	f := newControllerFixture(t)

	user := verifiedUser(t, "OldPass123!")

	f.sessions.On("GetByToken", mock.Anything, "live-token").
		Return(&accounts.Session{UserID: user.ID, Token: "live-token", User: user}, nil).Once()

	f.repo.On("Users").Return(f.users)
	expectTx(t, f.repo)

	f.users.On("ApplyPatchTx", mock.Anything, mock.Anything, user.ID, mock.Anything).
		Return(user, nil).Once()

	res, env := f.do(t, fiber.MethodPost, "/auth/change-password", `{
		"current_password": "OldPass123!",
		"new_password": "NewPass123!"
	}`, map[string]string{accounts.SessionTokenHeader: "live-token"})

	assert.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.True(t, env.IsSuccess())
	assert.Equal(t, accounts.MsgPasswordChanged, env.Message)
}

func TestControllerExpiredSessionIs401(t *testing.T) {
	f := newControllerFixture(t)

	f.sessions.On("GetByToken", mock.Anything, "stale-token").
		Return(nil, repositoryNotFound()).Once()

	res, env := f.do(t, fiber.MethodPatch, "/auth/profile", `{
		"name": "Alicia"
	}`, map[string]string{accounts.SessionTokenHeader: "stale-token"})

	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	assert.False(t, env.IsSuccess())
	assert.Equal(t, accounts.MsgCredentialsExpired, env.Message)
}

func TestControllerResetTokenRoundTrip(t *testing.T) {
	f := newControllerFixture(t)

	token, err := f.store.Issue(context.Background(), "alice@x.com", accounts.DefaultResetTokenTTL)
	require.NoError(t, err)

	res, env := f.do(t, fiber.MethodPost, "/auth/verify-reset-token",
		`{"token": "`+token+`"}`, nil)

	assert.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.True(t, env.IsSuccess())
	assert.Equal(t, accounts.MsgResetTokenValid, env.Message)

	res, env = f.do(t, fiber.MethodPost, "/auth/verify-reset-token",
		`{"token": "never-issued"}`, nil)

	assert.Equal(t, fiber.StatusOK, res.StatusCode)
	assert.False(t, env.IsSuccess())
	assert.Equal(t, accounts.MsgResetTokenInvalid, env.Message)
}

func TestControllerForgotPasswordHonorsResetTTL(t *testing.T) {
	app := fiber.New()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	sessions := &MockSessions{}
	mailer := &MockMailer{}
	store := accounts.NewMemoryResetTokens()

	auth := accounts.NewSessionAuthenticator(sessions,
		accounts.WithAuthenticatorLogger(testLogger{}),
	)

	accounts.RegisterAuthRoutes(app,
		accounts.WithControllerRepo(repo),
		accounts.WithControllerAuthenticator(auth),
		accounts.WithControllerMailer(mailer),
		accounts.WithControllerResetTokens(store),
		accounts.WithControllerResetTTL(time.Hour),
		accounts.WithControllerLogger(testLogger{}),
	)

	user := &accounts.User{ID: uuid.New(), Name: "Alice", Email: "alice@x.com"}

	repo.On("Users").Return(users)
	expectTx(t, repo)

	users.On("GetByEmailTx", mock.Anything, mock.Anything, "alice@x.com").
		Return(user, nil).Once()

	var token string
	users.On("ApplyPatchTx", mock.Anything, mock.Anything, user.ID, mock.MatchedBy(func(p accounts.UserPatch) bool {
		if p.PasswordResetToken == nil {
			return false
		}
		token = *p.PasswordResetToken
		return true
	})).Return(user, nil).Once()

	mailer.On("SendPasswordResetEmail", mock.Anything, "alice@x.com", "Alice", mock.Anything).
		Return(nil).Once()

	req := httptest.NewRequest(fiber.MethodPost, "/auth/forgot-password",
		strings.NewReader(`{"email": "alice@x.com"}`))
	req.Header.Set("Content-Type", "application/json")

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	require.NotEmpty(t, token)
	info, ok := store.GetInfo(context.Background(), token)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), info.ExpiresAt, 5*time.Second)
}

func TestControllerLogoutWithoutToken(t *testing.T) {
	f := newControllerFixture(t)

	f.sessions.On("DeleteByToken", mock.Anything, "").Return(false, nil).Once()

	res, env := f.do(t, fiber.MethodPost, "/auth/logout", "", nil)

	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	assert.False(t, env.IsSuccess())
	assert.Equal(t, accounts.MsgCredentialsExpired, env.Message)
}
