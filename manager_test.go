package identity_test

import (
	"context"
	"testing"
	"time"

	identity "github.com/highfly/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func activeAccount(email string) *identity.Account {
	return &identity.Account{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "Alice",
		LastName:  "Doe",
		Role:      identity.RoleClient,
		Active:    true,
	}
}

func TestRegisterCreatesAccountAndSendsConfirmation(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	mailer := new(MockMailer)
	sink := &capturingSink{}

	created := activeAccount("alice@example.com")

	store.On("FindByEmail", ctx, "alice@example.com").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("Create", ctx, mock.AnythingOfType("*identity.Account"), "password123").Return(created, nil).Once()
	store.On("EnsureRole", ctx, identity.RoleClient).Return(nil).Once()
	store.On("AddToRole", ctx, created, identity.RoleClient).Return(nil).Once()
	store.On("GenerateConfirmationToken", ctx, created).Return("confirm-token", nil).Once()
	mailer.On("Send", ctx, "alice@example.com", "Email confirmation", mock.Anything).Return(nil).Once()

	manager := identity.NewManager(store).
		WithMailer(mailer).
		WithActivitySink(sink)

	account, err := manager.Register(ctx, identity.RegisterInput{
		FirstName: "Alice",
		LastName:  "Doe",
		Email:     "Alice@Example.com",
		Password:  "password123",
	})

	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)

	require.Len(t, sink.events, 1)
	assert.Equal(t, identity.ActivityEventRegistered, sink.events[0].EventType)
	assert.Equal(t, created.ID.String(), sink.events[0].AccountID)

	store.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestRegisterNormalizesEmailAndDefaultsRole(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	var captured *identity.Account

	store.On("FindByEmail", ctx, "bob@example.com").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("Create", ctx, mock.AnythingOfType("*identity.Account"), "password123").
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*identity.Account)
		}).
		Return(activeAccount("bob@example.com"), nil).Once()
	store.On("EnsureRole", ctx, identity.RoleClient).Return(nil)
	store.On("AddToRole", ctx, mock.Anything, identity.RoleClient).Return(nil)
	store.On("GenerateConfirmationToken", ctx, mock.Anything).Return("tok", nil)

	manager := identity.NewManager(store)

	_, err := manager.Register(ctx, identity.RegisterInput{
		FirstName: "Bob",
		LastName:  "Smith",
		Email:     "  BOB@example.com ",
		Password:  "password123",
	})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "bob@example.com", captured.Email)
	assert.Equal(t, identity.RoleClient, captured.Role)
	assert.True(t, captured.Active)
	assert.False(t, captured.EmailConfirmed)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	store.On("FindByEmail", ctx, "taken@example.com").Return(activeAccount("taken@example.com"), nil).Once()

	manager := identity.NewManager(store)

	_, err := manager.Register(ctx, identity.RegisterInput{
		FirstName: "Dup",
		LastName:  "User",
		Email:     "taken@example.com",
		Password:  "password123",
	})

	require.ErrorIs(t, err, identity.ErrAccountExists)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterValidatesPayload(t *testing.T) {
	manager := identity.NewManager(new(MockCredentialStore))

	_, err := manager.Register(context.Background(), identity.RegisterInput{
		Email:    "not-an-email",
		Password: "pw",
	})

	require.Error(t, err)
}

func TestRegisterRoleCapabilityGate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown role is rejected", func(t *testing.T) {
		manager := identity.NewManager(new(MockCredentialStore))

		_, err := manager.Register(ctx, identity.RegisterInput{
			FirstName: "Eve",
			LastName:  "Jones",
			Email:     "eve@example.com",
			Password:  "password123",
			Role:      "superuser",
		})
		require.ErrorIs(t, err, identity.ErrRoleInvalid)
	})

	t.Run("anonymous caller cannot request employee", func(t *testing.T) {
		manager := identity.NewManager(new(MockCredentialStore))

		_, err := manager.Register(ctx, identity.RegisterInput{
			FirstName: "Eve",
			LastName:  "Jones",
			Email:     "eve@example.com",
			Password:  "password123",
			Role:      identity.RoleEmployee,
		})
		require.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("non admin actor cannot request employee", func(t *testing.T) {
		manager := identity.NewManager(new(MockCredentialStore))

		_, err := manager.Register(ctx, identity.RegisterInput{
			FirstName: "Eve",
			LastName:  "Jones",
			Email:     "eve@example.com",
			Password:  "password123",
			Role:      identity.RoleEmployee,
			Actor:     stubClaims{subject: "someone@example.com", role: identity.RoleClient},
		})
		require.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("admin actor can request employee", func(t *testing.T) {
		store := new(MockCredentialStore)
		created := activeAccount("eve@example.com")
		created.Role = identity.RoleEmployee

		var captured *identity.Account
		store.On("FindByEmail", ctx, "eve@example.com").Return(nil, identity.ErrAccountNotFound).Once()
		store.On("Create", ctx, mock.AnythingOfType("*identity.Account"), "password123").
			Run(func(args mock.Arguments) {
				captured = args.Get(1).(*identity.Account)
			}).
			Return(created, nil).Once()
		store.On("EnsureRole", ctx, identity.RoleEmployee).Return(nil)
		store.On("AddToRole", ctx, created, identity.RoleEmployee).Return(nil)
		store.On("GenerateConfirmationToken", ctx, created).Return("tok", nil)

		manager := identity.NewManager(store)

		account, err := manager.Register(ctx, identity.RegisterInput{
			FirstName: "Eve",
			LastName:  "Jones",
			Email:     "eve@example.com",
			Password:  "password123",
			Role:      identity.RoleEmployee,
			Actor:     stubClaims{subject: "admin@example.com", role: identity.RoleAdmin},
		})

		require.NoError(t, err)
		assert.Equal(t, identity.RoleEmployee, account.Role)
		require.NotNil(t, captured)
		assert.Equal(t, identity.RoleEmployee, captured.Role)
	})
}

func TestRegisterNormalizesPhone(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	var captured *identity.Account
	store.On("FindByEmail", ctx, "phone@example.com").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("Create", ctx, mock.AnythingOfType("*identity.Account"), "password123").
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*identity.Account)
		}).
		Return(activeAccount("phone@example.com"), nil).Once()
	store.On("EnsureRole", ctx, identity.RoleClient).Return(nil)
	store.On("AddToRole", ctx, mock.Anything, identity.RoleClient).Return(nil)
	store.On("GenerateConfirmationToken", ctx, mock.Anything).Return("tok", nil)

	manager := identity.NewManager(store)

	_, err := manager.Register(ctx, identity.RegisterInput{
		FirstName:   "Pat",
		LastName:    "Lee",
		Email:       "phone@example.com",
		Password:    "password123",
		Phone:       "(415) 555-2671",
		CountryCode: "us",
	})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "+14155552671", captured.Phone)
}

func TestRegisterMailFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	mailer := new(MockMailer)

	created := activeAccount("flaky@example.com")

	store.On("FindByEmail", ctx, "flaky@example.com").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("Create", ctx, mock.Anything, "password123").Return(created, nil).Once()
	store.On("EnsureRole", ctx, identity.RoleClient).Return(nil)
	store.On("AddToRole", ctx, created, identity.RoleClient).Return(nil)
	store.On("GenerateConfirmationToken", ctx, created).Return("tok", nil)
	mailer.On("Send", ctx, "flaky@example.com", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	manager := identity.NewManager(store).WithMailer(mailer)

	_, err := manager.Register(ctx, identity.RegisterInput{
		FirstName: "Flaky",
		LastName:  "Smtp",
		Email:     "flaky@example.com",
		Password:  "password123",
	})

	require.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestLoginUnknownEmail(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	store.On("FindByEmail", ctx, "ghost@example.com").Return(nil, identity.ErrAccountNotFound).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	_, err := manager.Login(ctx, "ghost@example.com", "whatever")

	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	require.Len(t, sink.events, 1)
	assert.Equal(t, identity.ActivityEventLoginFailure, sink.events[0].EventType)
}

func TestLoginInactiveAccount(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("gone@example.com")
	account.Active = false

	store.On("FindByEmail", ctx, "gone@example.com").Return(account, nil).Once()

	manager := identity.NewManager(store)

	_, err := manager.Login(ctx, "gone@example.com", "password123")

	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	store.AssertNotCalled(t, "ValidatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginLockedOutSendsRecoveryEmail(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	mailer := new(MockMailer)
	sink := &capturingSink{}

	account := activeAccount("locked@example.com")
	until := time.Now().Add(10 * time.Minute)
	account.LockoutUntil = &until

	store.On("FindByEmail", ctx, "locked@example.com").Return(account, nil).Once()
	store.On("GenerateResetToken", ctx, account).Return("reset-token", nil).Once()
	mailer.On("Send", ctx, "locked@example.com", "Password reset", mock.Anything).Return(nil).Once()

	manager := identity.NewManager(store).
		WithMailer(mailer).
		WithActivitySink(sink)

	_, err := manager.Login(ctx, "locked@example.com", "the-correct-password")

	require.ErrorIs(t, err, identity.ErrAccountLockedOut)
	assert.Contains(t, sink.eventTypes(), identity.ActivityEventLockedOut)
	store.AssertNotCalled(t, "ValidatePassword", mock.Anything, mock.Anything, mock.Anything)
	mailer.AssertExpectations(t)
}

func TestLoginLockedOutRecoveryEmailDisabled(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	mailer := new(MockMailer)

	account := activeAccount("locked@example.com")
	until := time.Now().Add(10 * time.Minute)
	account.LockoutUntil = &until

	store.On("FindByEmail", ctx, "locked@example.com").Return(account, nil).Once()

	manager := identity.NewManager(store).
		WithMailer(mailer).
		WithLockoutRecoveryEmail(false)

	_, err := manager.Login(ctx, "locked@example.com", "password123")

	require.ErrorIs(t, err, identity.ErrAccountLockedOut)
	store.AssertNotCalled(t, "GenerateResetToken", mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoginExpiredLockoutProceeds(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("thawed@example.com")
	until := time.Now().Add(-time.Minute)
	account.LockoutUntil = &until

	store.On("FindByEmail", ctx, "thawed@example.com").Return(account, nil).Once()
	store.On("ValidatePassword", ctx, account, "password123").Return(nil).Once()

	manager := identity.NewManager(store)

	got, err := manager.Login(ctx, "thawed@example.com", "password123")

	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	account := activeAccount("alice@example.com")

	store.On("FindByEmail", ctx, "alice@example.com").Return(account, nil).Once()
	store.On("ValidatePassword", ctx, account, "wrong").Return(identity.ErrInvalidCredentials).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	_, err := manager.Login(ctx, "alice@example.com", "wrong")

	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.Contains(t, sink.eventTypes(), identity.ActivityEventLoginFailure)
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	account := activeAccount("alice@example.com")

	store.On("FindByEmail", ctx, "alice@example.com").Return(account, nil).Once()
	store.On("ValidatePassword", ctx, account, "password123").Return(nil).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	got, err := manager.Login(ctx, "alice@example.com", "password123")

	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	require.Len(t, sink.events, 1)
	assert.Equal(t, identity.ActivityEventLoginSuccess, sink.events[0].EventType)
}

func TestLogoutEmitsEvent(t *testing.T) {
	sink := &capturingSink{}
	manager := identity.NewManager(new(MockCredentialStore)).WithActivitySink(sink)

	manager.Logout(context.Background(), "some-account-id")

	require.Len(t, sink.events, 1)
	assert.Equal(t, identity.ActivityEventLogout, sink.events[0].EventType)
	assert.Equal(t, "some-account-id", sink.events[0].AccountID)
}

func TestBeginExternalLoginDelegatesToBridge(t *testing.T) {
	ctx := context.Background()
	bridge := new(MockBridge)

	directive := &identity.RedirectDirective{URL: "https://provider/auth?x=1", Provider: "google", State: "st"}
	bridge.On("BeginChallenge", ctx, "google", "/booking").Return(directive, nil).Once()

	manager := identity.NewManager(new(MockCredentialStore)).WithBridge(bridge)

	got, err := manager.BeginExternalLogin(ctx, "google", "/booking")

	require.NoError(t, err)
	assert.Equal(t, directive, got)
	bridge.AssertExpectations(t)
}

func TestBeginExternalLoginWithoutBridge(t *testing.T) {
	manager := identity.NewManager(new(MockCredentialStore))

	_, err := manager.BeginExternalLogin(context.Background(), "google", "/")

	require.Error(t, err)
}

func TestCompleteExternalLoginMissingInfo(t *testing.T) {
	manager := identity.NewManager(new(MockCredentialStore))
	ctx := context.Background()

	_, err := manager.CompleteExternalLogin(ctx, nil)
	require.ErrorIs(t, err, identity.ErrExternalInfoMissing)

	_, err = manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{Provider: "google"})
	require.ErrorIs(t, err, identity.ErrExternalInfoMissing)
}

func TestCompleteExternalLoginKnownIdentity(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	account := activeAccount("alice@example.com")
	store.On("FindLogin", ctx, "google", "key-123").Return(account, nil).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	got, err := manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{
		Provider:    "google",
		ProviderKey: "key-123",
	})

	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	store.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, sink.eventTypes(), identity.ActivityEventExternalLogin)
}

func TestCompleteExternalLoginMissingEmailClaim(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	store.On("FindLogin", ctx, "google", "key-123").Return(nil, identity.ErrAccountNotFound).Once()

	manager := identity.NewManager(store)

	_, err := manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{
		Provider:    "google",
		ProviderKey: "key-123",
	})

	require.ErrorIs(t, err, identity.ErrClaimMissing)
}

func TestCompleteExternalLoginLinksByEmail(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("alice@example.com")

	store.On("FindLogin", ctx, "google", "key-123").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("FindByEmail", ctx, "alice@example.com").Return(account, nil).Once()
	store.On("AddLogin", ctx, account, "google", "key-123").Return(nil).Once()

	manager := identity.NewManager(store)

	got, err := manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{
		Provider:    "google",
		ProviderKey: "key-123",
		Claims:      identity.ExternalClaims{Email: "Alice@Example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	store.AssertExpectations(t)
}

func TestCompleteExternalLoginLinkFailureKeepsAccountValid(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("alice@example.com")

	store.On("FindLogin", ctx, "google", "key-123").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("FindByEmail", ctx, "alice@example.com").Return(account, nil).Once()
	store.On("AddLogin", ctx, account, "google", "key-123").Return(assert.AnError).Once()

	manager := identity.NewManager(store)

	_, err := manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{
		Provider:    "google",
		ProviderKey: "key-123",
		Claims:      identity.ExternalClaims{Email: "alice@example.com"},
	})

	require.ErrorIs(t, err, identity.ErrLinkFailed)
}

func TestCompleteExternalLoginCreatesAccount(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	created := activeAccount("new@example.com")
	created.EmailConfirmed = true

	var captured *identity.Account

	store.On("FindLogin", ctx, "google", "key-999").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("FindByEmail", ctx, "new@example.com").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("Create", ctx, mock.AnythingOfType("*identity.Account"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*identity.Account)
		}).
		Return(created, nil).Once()
	store.On("EnsureRole", ctx, identity.RoleClient).Return(nil)
	store.On("AddToRole", ctx, created, identity.RoleClient).Return(nil)
	store.On("AddLogin", ctx, created, "google", "key-999").Return(nil).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	got, err := manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{
		Provider:    "google",
		ProviderKey: "key-999",
		Claims: identity.ExternalClaims{
			Email:      "new@example.com",
			GivenName:  "New",
			FamilyName: "User",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	require.NotNil(t, captured)
	assert.Equal(t, "new@example.com", captured.Email)
	assert.Equal(t, "New", captured.FirstName)
	assert.Equal(t, "User", captured.LastName)
	assert.True(t, captured.Active)
	assert.True(t, captured.EmailConfirmed, "provider-confirmed email should be trusted")
	assert.Equal(t, identity.RoleClient, captured.Role)

	assert.Contains(t, sink.eventTypes(), identity.ActivityEventExternalLogin)
	store.AssertExpectations(t)
}

func TestCompleteExternalLoginWithoutProviderEmailTrust(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	created := activeAccount("new@example.com")

	var captured *identity.Account

	store.On("FindLogin", ctx, "google", "key-999").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("FindByEmail", ctx, "new@example.com").Return(nil, identity.ErrAccountNotFound).Once()
	store.On("Create", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*identity.Account)
		}).
		Return(created, nil).Once()
	store.On("EnsureRole", ctx, identity.RoleClient).Return(nil)
	store.On("AddToRole", ctx, created, identity.RoleClient).Return(nil)
	store.On("AddLogin", ctx, created, "google", "key-999").Return(nil).Once()

	manager := identity.NewManager(store).WithProviderEmailTrust(false)

	_, err := manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{
		Provider:    "google",
		ProviderKey: "key-999",
		Claims:      identity.ExternalClaims{Email: "new@example.com"},
	})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.False(t, captured.EmailConfirmed)
}

func TestCompleteExternalLoginInactiveAccount(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("gone@example.com")
	account.Active = false

	store.On("FindLogin", ctx, "google", "key-123").Return(account, nil).Once()

	manager := identity.NewManager(store)

	_, err := manager.CompleteExternalLogin(ctx, &identity.ExternalSignInInfo{
		Provider:    "google",
		ProviderKey: "key-123",
	})

	require.ErrorIs(t, err, identity.ErrAccountInactive)
}

func TestConfirmEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("missing arguments", func(t *testing.T) {
		manager := identity.NewManager(new(MockCredentialStore))

		require.ErrorIs(t, manager.ConfirmEmail(ctx, "", "tok"), identity.ErrAccountNotFound)
		require.ErrorIs(t, manager.ConfirmEmail(ctx, "some-id", ""), identity.ErrAccountNotFound)
	})

	t.Run("redeems token", func(t *testing.T) {
		store := new(MockCredentialStore)
		sink := &capturingSink{}
		account := activeAccount("alice@example.com")

		store.On("FindByID", ctx, account.ID.String()).Return(account, nil).Once()
		store.On("ConfirmEmail", ctx, account, "confirm-token").Return(nil).Once()

		manager := identity.NewManager(store).WithActivitySink(sink)

		require.NoError(t, manager.ConfirmEmail(ctx, account.ID.String(), "confirm-token"))
		assert.Contains(t, sink.eventTypes(), identity.ActivityEventEmailConfirmed)
		store.AssertExpectations(t)
	})

	t.Run("store rejects token", func(t *testing.T) {
		store := new(MockCredentialStore)
		account := activeAccount("alice@example.com")

		store.On("FindByID", ctx, account.ID.String()).Return(account, nil).Once()
		store.On("ConfirmEmail", ctx, account, "bad-token").Return(identity.ErrTokenInvalid).Once()

		manager := identity.NewManager(store)

		require.ErrorIs(t, manager.ConfirmEmail(ctx, account.ID.String(), "bad-token"), identity.ErrTokenInvalid)
	})
}

func TestRequestPasswordReset(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	mailer := new(MockMailer)
	sink := &capturingSink{}

	account := activeAccount("alice@example.com")

	store.On("FindByEmail", ctx, "alice@example.com").Return(account, nil).Once()
	store.On("GenerateResetToken", ctx, account).Return("reset-token", nil).Once()
	mailer.On("Send", ctx, "alice@example.com", "Password reset", mock.Anything).Return(nil).Once()

	manager := identity.NewManager(store).
		WithMailer(mailer).
		WithActivitySink(sink)

	require.NoError(t, manager.RequestPasswordReset(ctx, "alice@example.com"))
	assert.Contains(t, sink.eventTypes(), identity.ActivityEventPasswordResetRequest)
	mailer.AssertExpectations(t)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	store.On("FindByEmail", ctx, "ghost@example.com").Return(nil, identity.ErrAccountNotFound).Once()

	manager := identity.NewManager(store)

	require.ErrorIs(t, manager.RequestPasswordReset(ctx, "ghost@example.com"), identity.ErrAccountNotFound)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	account := activeAccount("alice@example.com")

	store.On("FindByEmail", ctx, "alice@example.com").Return(account, nil).Once()
	store.On("ResetPassword", ctx, account, "reset-token", "newpassword1").Return(nil).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	require.NoError(t, manager.ResetPassword(ctx, "alice@example.com", "reset-token", "newpassword1"))
	assert.Contains(t, sink.eventTypes(), identity.ActivityEventPasswordReset)
}

func TestResetPasswordInvalidToken(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("alice@example.com")

	store.On("FindByEmail", ctx, "alice@example.com").Return(account, nil).Once()
	store.On("ResetPassword", ctx, account, "stale", "newpassword1").Return(identity.ErrTokenInvalid).Once()

	manager := identity.NewManager(store)

	require.ErrorIs(t, manager.ResetPassword(ctx, "alice@example.com", "stale", "newpassword1"), identity.ErrTokenInvalid)
}

func TestChangeProfileAppliesOnlyProvidedFields(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("alice@example.com")
	account.CountryCode = "US"
	account.City = "Boston"

	store.On("FindByID", ctx, account.ID.String()).Return(account, nil).Once()
	store.On("Update", ctx, account).Return(nil).Once()

	manager := identity.NewManager(store)

	first := "Alicia"
	phone := "415 555 2671"

	got, err := manager.ChangeProfile(ctx, account.ID.String(), identity.ProfileUpdate{
		FirstName: &first,
		Phone:     &phone,
	})

	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.FirstName)
	assert.Equal(t, "+14155552671", got.Phone)
	assert.Equal(t, "Doe", got.LastName)
	assert.Equal(t, "Boston", got.City)
}

func TestChangeProfileUnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	store.On("FindByID", ctx, "nope").Return(nil, identity.ErrAccountNotFound).Once()

	manager := identity.NewManager(store)

	_, err := manager.ChangeProfile(ctx, "nope", identity.ProfileUpdate{})
	require.ErrorIs(t, err, identity.ErrAccountNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	account := activeAccount("alice@example.com")

	store.On("FindByID", ctx, account.ID.String()).Return(account, nil).Once()
	store.On("ChangePassword", ctx, account, "oldpass", "newpass123").Return(nil).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	require.NoError(t, manager.ChangePassword(ctx, account.ID.String(), "oldpass", "newpass123"))
	assert.Contains(t, sink.eventTypes(), identity.ActivityEventPasswordChanged)
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	account := activeAccount("alice@example.com")

	store.On("FindByID", ctx, account.ID.String()).Return(account, nil).Once()
	store.On("ChangePassword", ctx, account, "wrong", "newpass123").Return(identity.ErrWrongOldPassword).Once()

	manager := identity.NewManager(store)

	err := manager.ChangePassword(ctx, account.ID.String(), "wrong", "newpass123")
	require.ErrorIs(t, err, identity.ErrWrongOldPassword)
}

func TestDeactivatePersistsInactiveFlag(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)
	sink := &capturingSink{}

	account := activeAccount("alice@example.com")

	store.On("FindByID", ctx, account.ID.String()).Return(account, nil).Once()
	store.On("Update", ctx, mock.MatchedBy(func(a *identity.Account) bool {
		return !a.Active
	})).Return(nil).Once()

	manager := identity.NewManager(store).WithActivitySink(sink)

	require.NoError(t, manager.Deactivate(ctx, account.ID.String()))
	assert.Contains(t, sink.eventTypes(), identity.ActivityEventDeactivated)
	store.AssertExpectations(t)
}

func TestCheckOrCreateRole(t *testing.T) {
	ctx := context.Background()
	store := new(MockCredentialStore)

	store.On("EnsureRole", ctx, identity.RoleEmployee).Return(nil).Once()

	manager := identity.NewManager(store)

	require.NoError(t, manager.CheckOrCreateRole(ctx, identity.RoleEmployee))
	store.AssertExpectations(t)
}
