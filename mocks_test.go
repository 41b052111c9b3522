package identity_test

import (
	"context"
	"time"

	identity "github.com/highfly/go-identity"
	"github.com/stretchr/testify/mock"
)

// anyContext matches any context.Context argument.
func anyContext() any {
	return mock.MatchedBy(func(ctx context.Context) bool { return true })
}

// MockCredentialStore implements identity.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Account), args.Error(1)
}

func (m *MockCredentialStore) FindByID(ctx context.Context, id string) (*identity.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Account), args.Error(1)
}

func (m *MockCredentialStore) Create(ctx context.Context, account *identity.Account, password string) (*identity.Account, error) {
	args := m.Called(ctx, account, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Account), args.Error(1)
}

func (m *MockCredentialStore) Update(ctx context.Context, account *identity.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockCredentialStore) ValidatePassword(ctx context.Context, account *identity.Account, password string) error {
	args := m.Called(ctx, account, password)
	return args.Error(0)
}

func (m *MockCredentialStore) GenerateConfirmationToken(ctx context.Context, account *identity.Account) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialStore) ConfirmEmail(ctx context.Context, account *identity.Account, token string) error {
	args := m.Called(ctx, account, token)
	return args.Error(0)
}

func (m *MockCredentialStore) GenerateResetToken(ctx context.Context, account *identity.Account) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialStore) ResetPassword(ctx context.Context, account *identity.Account, token, newPassword string) error {
	args := m.Called(ctx, account, token, newPassword)
	return args.Error(0)
}

func (m *MockCredentialStore) ChangePassword(ctx context.Context, account *identity.Account, oldPassword, newPassword string) error {
	args := m.Called(ctx, account, oldPassword, newPassword)
	return args.Error(0)
}

func (m *MockCredentialStore) AddLogin(ctx context.Context, account *identity.Account, provider, providerKey string) error {
	args := m.Called(ctx, account, provider, providerKey)
	return args.Error(0)
}

func (m *MockCredentialStore) FindLogin(ctx context.Context, provider, providerKey string) (*identity.Account, error) {
	args := m.Called(ctx, provider, providerKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Account), args.Error(1)
}

func (m *MockCredentialStore) IsInRole(ctx context.Context, account *identity.Account, role string) (bool, error) {
	args := m.Called(ctx, account, role)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) AddToRole(ctx context.Context, account *identity.Account, role string) error {
	args := m.Called(ctx, account, role)
	return args.Error(0)
}

func (m *MockCredentialStore) EnsureRole(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// MockMailer implements identity.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Error(0)
}

// MockBridge implements identity.IdentityBridge
type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) BeginChallenge(ctx context.Context, provider, returnTarget string) (*identity.RedirectDirective, error) {
	args := m.Called(ctx, provider, returnTarget)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.RedirectDirective), args.Error(1)
}

func (m *MockBridge) CompleteCallback(ctx context.Context, code, state string) (*identity.ExternalSignInInfo, error) {
	args := m.Called(ctx, code, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.ExternalSignInInfo), args.Error(1)
}

type capturingSink struct {
	events []identity.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt identity.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) eventTypes() []identity.ActivityEventType {
	out := make([]identity.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

// stubClaims is a minimal ApiClaims used to model the caller capability.
type stubClaims struct {
	subject string
	role    string
}

func (s stubClaims) Subject() string          { return s.subject }
func (s stubClaims) TokenID() string          { return "stub" }
func (s stubClaims) Role() string             { return s.role }
func (s stubClaims) Expires() time.Time       { return time.Now().Add(time.Hour) }
func (s stubClaims) IssuedAt() time.Time      { return time.Now() }
func (s stubClaims) HasRole(role string) bool { return s.role == role }
