package accounts_test

import (
	"context"
	"database/sql"

	"github.com/cultivo/accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

func repositoryNotFound() error {
	return repository.NewRecordNotFound()
}

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockUsers embeds the interface so only the methods a test exercises need
// mock implementations.
type MockUsers struct {
	mock.Mock
	accounts.Users
}

func (m *MockUsers) userResult(args mock.Arguments) (*accounts.User, error) {
	var user *accounts.User
	if v := args.Get(0); v != nil {
		user = v.(*accounts.User)
	}
	return user, args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	return m.userResult(m.Called(ctx, tx, user))
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	return m.userResult(m.Called(ctx, tx, email))
}

func (m *MockUsers) GetByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*accounts.User, error) {
	return m.userResult(m.Called(ctx, tx, token))
}

func (m *MockUsers) GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*accounts.User, error) {
	return m.userResult(m.Called(ctx, tx, token))
}

func (m *MockUsers) ApplyPatchTx(ctx context.Context, tx bun.IDB, id uuid.UUID, patch accounts.UserPatch) (*accounts.User, error) {
	return m.userResult(m.Called(ctx, tx, id, patch))
}

func (m *MockUsers) DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return m.Called(ctx, tx, id).Error(0)
}

type MockSessions struct {
	mock.Mock
	accounts.Sessions
}

func (m *MockSessions) sessionResult(args mock.Arguments) (*accounts.Session, error) {
	var session *accounts.Session
	if v := args.Get(0); v != nil {
		session = v.(*accounts.Session)
	}
	return session, args.Error(1)
}

func (m *MockSessions) Create(ctx context.Context, session *accounts.Session, _ ...repository.InsertCriteria) (*accounts.Session, error) {
	return m.sessionResult(m.Called(ctx, session))
}

func (m *MockSessions) CreateTx(ctx context.Context, tx bun.IDB, session *accounts.Session, _ ...repository.InsertCriteria) (*accounts.Session, error) {
	return m.sessionResult(m.Called(ctx, tx, session))
}

func (m *MockSessions) GetByToken(ctx context.Context, token string) (*accounts.Session, error) {
	return m.sessionResult(m.Called(ctx, token))
}

func (m *MockSessions) DeleteByToken(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

type MockDevices struct {
	mock.Mock
	accounts.Devices
}

func (m *MockDevices) UpsertByPushTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, pushToken string) (*accounts.Device, error) {
	args := m.Called(ctx, tx, userID, pushToken)
	var device *accounts.Device
	if v := args.Get(0); v != nil {
		device = v.(*accounts.Device)
	}
	return device, args.Error(1)
}

type MockRepositoryManager struct {
	mock.Mock
	accounts.RepositoryManager
}

func (m *MockRepositoryManager) Users() accounts.Users {
	return m.Called().Get(0).(accounts.Users)
}

func (m *MockRepositoryManager) Sessions() accounts.Sessions {
	return m.Called().Get(0).(accounts.Sessions)
}

func (m *MockRepositoryManager) Devices() accounts.Devices {
	return m.Called().Get(0).(accounts.Devices)
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return m.Called(ctx, opts, f).Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	return m.Called(ctx, to, name, token).Error(0)
}

func (m *MockMailer) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	return m.Called(ctx, to, name, token).Error(0)
}

func (m *MockMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return m.Called(ctx, to, name).Error(0)
}

type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockPushRegistrar struct {
	mock.Mock
}

func (m *MockPushRegistrar) RegisterDevice(ctx context.Context, userID, pushToken string) error {
	return m.Called(ctx, userID, pushToken).Error(0)
}
