package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxLoginAttempts is the number of failed attempts before the lockout
// window opens.
var MaxLoginAttempts = 5

// LockoutDuration is how long a tripped account stays locked.
var LockoutDuration = 15 * time.Minute

// AttemptWindow is the period after which stale failed attempts are
// forgotten.
var AttemptWindow = "24h"

// ConfirmTokenTTL bounds confirmation token validity.
var ConfirmTokenTTL = "48h"

// ResetTokenTTL bounds reset token validity.
var ResetTokenTTL = "24h"

type credentialStore struct {
	repo          RepositoryManager
	logger        Logger
	maxAttempts   int
	lockoutPeriod time.Duration
	attemptWindow string
	confirmTTL    string
	resetTTL      string
}

var _ CredentialStore = (*credentialStore)(nil)

// CredentialStoreOption customizes store construction.
type CredentialStoreOption func(*credentialStore)

// WithStoreLogger overrides the logger used by the credential store.
func WithStoreLogger(l Logger) CredentialStoreOption {
	return func(s *credentialStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLockoutPolicy overrides the attempt ceiling and lockout window.
func WithLockoutPolicy(maxAttempts int, lockout time.Duration) CredentialStoreOption {
	return func(s *credentialStore) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if lockout > 0 {
			s.lockoutPeriod = lockout
		}
	}
}

// WithTokenTTLs overrides confirmation and reset token validity windows.
// Patterns are time.ParseDuration strings, e.g. "48h".
func WithTokenTTLs(confirm, reset string) CredentialStoreOption {
	return func(s *credentialStore) {
		if confirm != "" {
			s.confirmTTL = confirm
		}
		if reset != "" {
			s.resetTTL = reset
		}
	}
}

// NewCredentialStore builds the bun-backed CredentialStore used by the
// lifecycle manager.
func NewCredentialStore(repo RepositoryManager, opts ...CredentialStoreOption) CredentialStore {
	s := &credentialStore{
		repo:          repo,
		logger:        defLogger{},
		maxAttempts:   MaxLoginAttempts,
		lockoutPeriod: LockoutDuration,
		attemptWindow: AttemptWindow,
		confirmTTL:    ConfirmTokenTTL,
		resetTTL:      ResetTokenTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *credentialStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account by email")
	}
	return account, nil
}

func (s *credentialStore) FindByID(ctx context.Context, id string) (*Account, error) {
	account, err := s.repo.Accounts().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account by id")
	}
	return account, nil
}

func (s *credentialStore) Create(ctx context.Context, account *Account, password string) (*Account, error) {
	var created *Account

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}
		account.PasswordHash = hash

		if created, err = s.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *credentialStore) Update(ctx context.Context, account *Account) error {
	_, err := s.repo.Accounts().Update(ctx, account,
		repository.UpdateByID(account.ID.String()))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account")
	}
	return nil
}

// ValidatePassword compares the clear-text password, counting failures and
// opening the lockout window once the ceiling is crossed. A success clears
// the counters.
func (s *credentialStore) ValidatePassword(ctx context.Context, account *Account, password string) error {
	if account == nil {
		return ErrAccountNotFound
	}

	attempts := account.LoginAttempts
	if account.LoginAttemptAt != nil {
		stale, err := IsOutsideThresholdPeriod(*account.LoginAttemptAt, s.attemptWindow)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt window")
		}
		if stale {
			attempts = 0
		}
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		var lockoutUntil *time.Time
		if attempts+1 >= s.maxAttempts {
			until := time.Now().Add(s.lockoutPeriod)
			lockoutUntil = &until
		}

		snapshot := *account
		snapshot.LoginAttempts = attempts
		if err2 := s.repo.Accounts().TrackAttemptedLogin(ctx, &snapshot, lockoutUntil); err2 != nil {
			return goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}

		return ErrInvalidCredentials
	}

	if err := s.repo.Accounts().TrackSuccessfulLogin(ctx, account); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	return nil
}

func (s *credentialStore) GenerateConfirmationToken(ctx context.Context, account *Account) (string, error) {
	return s.generateToken(ctx, account, PurposeConfirmEmail)
}

func (s *credentialStore) GenerateResetToken(ctx context.Context, account *Account) (string, error) {
	return s.generateToken(ctx, account, PurposePasswordReset)
}

func (s *credentialStore) generateToken(ctx context.Context, account *Account, purpose TokenPurpose) (string, error) {
	if account == nil {
		return "", ErrAccountNotFound
	}

	token := &SecurityToken{
		ID:        uuid.New(),
		AccountID: account.ID,
		Purpose:   purpose,
	}

	created, err := s.repo.SecurityTokens().Create(ctx, token)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create security token")
	}

	return created.ID.String(), nil
}

func (s *credentialStore) ConfirmEmail(ctx context.Context, account *Account, token string) error {
	if account == nil {
		return ErrAccountNotFound
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.redeemTokenTx(ctx, tx, account, token, PurposeConfirmEmail, s.confirmTTL); err != nil {
			return err
		}

		record := &Account{ID: account.ID, EmailConfirmed: true}
		if _, err := s.repo.Accounts().UpdateTx(ctx, tx, record,
			repository.UpdateByID(account.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist email confirmation")
		}

		account.EmailConfirmed = true
		return nil
	})
}

func (s *credentialStore) ResetPassword(ctx context.Context, account *Account, token, newPassword string) error {
	if account == nil {
		return ErrAccountNotFound
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.redeemTokenTx(ctx, tx, account, token, PurposePasswordReset, s.resetTTL); err != nil {
			return err
		}

		hash, err := HashPassword(newPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		if err := s.repo.Accounts().ResetPasswordTx(ctx, tx, account.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace password credential")
		}

		return nil
	})
}

func (s *credentialStore) ChangePassword(ctx context.Context, account *Account, oldPassword, newPassword string) error {
	if account == nil {
		return ErrAccountNotFound
	}

	if err := ComparePasswordAndHash(oldPassword, account.PasswordHash); err != nil {
		return ErrWrongOldPassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	record := &Account{ID: account.ID, PasswordHash: hash}
	if _, err := s.repo.Accounts().Update(ctx, record,
		repository.UpdateByID(account.ID.String())); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist password change")
	}

	return nil
}

// redeemTokenTx enforces the single-use and expiry guarantees: the token
// must exist, belong to the account, match the purpose, be unconsumed and
// inside its window. Consumption happens in the same transaction as the
// effect it authorizes.
func (s *credentialStore) redeemTokenTx(ctx context.Context, tx bun.Tx, account *Account, token string, purpose TokenPurpose, ttl string) error {
	id, err := uuid.Parse(token)
	if err != nil {
		return ErrTokenInvalid
	}

	record, err := s.repo.SecurityTokens().GetTokenByIDTx(ctx, tx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrTokenInvalid
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve security token")
	}

	if record.AccountID != account.ID || record.Purpose != purpose || record.Consumed() {
		return ErrTokenInvalid
	}

	if record.CreatedAt == nil {
		return goerrors.New("security token is missing creation date", goerrors.CategoryInternal)
	}

	expired, err := IsOutsideThresholdPeriod(*record.CreatedAt, ttl)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token expiration period")
	}
	if expired {
		return ErrTokenInvalid
	}

	consumed, err := s.repo.SecurityTokens().ConsumeTx(ctx, tx, record.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume security token")
	}
	if !consumed {
		// a concurrent redemption won the race
		return ErrTokenInvalid
	}

	return nil
}

func (s *credentialStore) AddLogin(ctx context.Context, account *Account, provider, providerKey string) error {
	if account == nil {
		return ErrAccountNotFound
	}

	existing, err := s.repo.ExternalLogins().GetByProviderKey(ctx, provider, providerKey)
	if err == nil {
		if existing.AccountID == account.ID {
			return nil
		}
		// the provider identity already belongs to somebody else
		return ErrLinkFailed
	}
	if !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up external login")
	}

	linked, err := s.repo.ExternalLogins().GetByAccountProvider(ctx, account.ID, provider)
	if err == nil {
		// one identity per provider per account; a second key for the same
		// provider is refused rather than silently stacked
		s.logger.Error("account already linked to provider with a different key",
			"account_id", account.ID.String(), "provider", provider, "provider_key", linked.ProviderKey)
		return ErrLinkFailed
	}
	if !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up provider link")
	}

	login := &ExternalLogin{
		ID:          uuid.New(),
		AccountID:   account.ID,
		Provider:    provider,
		ProviderKey: providerKey,
	}

	if _, err := s.repo.ExternalLogins().Create(ctx, login); err != nil {
		s.logger.Error("failed to create external login", "error", err)
		return ErrLinkFailed
	}

	return nil
}

func (s *credentialStore) FindLogin(ctx context.Context, provider, providerKey string) (*Account, error) {
	login, err := s.repo.ExternalLogins().GetByProviderKey(ctx, provider, providerKey)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up external login")
	}

	return s.FindByID(ctx, login.AccountID.String())
}

func (s *credentialStore) IsInRole(ctx context.Context, account *Account, role string) (bool, error) {
	if account == nil {
		return false, ErrAccountNotFound
	}
	return account.Role == role, nil
}

func (s *credentialStore) AddToRole(ctx context.Context, account *Account, role string) error {
	if account == nil {
		return ErrAccountNotFound
	}

	if _, ok := ParseRole(role); !ok {
		return ErrRoleInvalid
	}

	if err := s.EnsureRole(ctx, role); err != nil {
		return err
	}

	record := &Account{ID: account.ID, Role: role}
	if _, err := s.repo.Accounts().Update(ctx, record,
		repository.UpdateByID(account.ID.String())); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist role assignment")
	}

	account.Role = role
	return nil
}

func (s *credentialStore) EnsureRole(ctx context.Context, name string) error {
	_, err := s.repo.Roles().GetByIdentifier(ctx, name)
	if err == nil {
		return nil
	}
	if !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up role")
	}

	role := &Role{ID: uuid.New(), Name: name}
	if _, err := s.repo.Roles().Create(ctx, role); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create role")
	}

	return nil
}
