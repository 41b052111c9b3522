package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// Manager orchestrates the account lifecycle: registration, local and
// external login, lockout recovery, email confirmation, password reset,
// profile and password changes, deactivation, and role bookkeeping. It owns
// the decisions and state transitions; storage and email stay behind the
// CredentialStore and Mailer collaborators.
type Manager struct {
	store     CredentialStore
	mailer    Mailer
	templates MailTemplates
	links     LinkBuilder
	bridge    IdentityBridge
	sink      ActivitySink
	logger    Logger

	defaultRole string
	// lockoutRecoveryEmail gates the reset-token nudge a locked-out login
	// triggers. Kept as a named option so deployments can turn the
	// side effect off.
	lockoutRecoveryEmail bool
	// trustProviderEmail marks provider-created accounts as email-confirmed
	// without a confirmation round-trip.
	trustProviderEmail bool
	deterministicIDs   bool
}

// NewManager returns a lifecycle Manager over the given store.
func NewManager(store CredentialStore) *Manager {
	return &Manager{
		store:                store,
		templates:            inlineMailTemplates{},
		links:                defaultLinkBuilder{},
		sink:                 noopActivitySink{},
		logger:               defLogger{},
		defaultRole:          RoleClient,
		lockoutRecoveryEmail: true,
		trustProviderEmail:   true,
	}
}

func (m *Manager) WithLogger(logger Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithMailer sets the notification sender. Without one, mail side effects
// are skipped with a debug log line.
func (m *Manager) WithMailer(mailer Mailer) *Manager {
	m.mailer = mailer
	return m
}

// WithMailTemplates overrides how notification bodies are rendered.
func (m *Manager) WithMailTemplates(t MailTemplates) *Manager {
	if t != nil {
		m.templates = t
	}
	return m
}

// WithLinkBuilder sets how confirmation/reset links are built.
func (m *Manager) WithLinkBuilder(lb LinkBuilder) *Manager {
	if lb != nil {
		m.links = lb
	}
	return m
}

// WithBridge sets the external identity bridge used by BeginExternalLogin.
func (m *Manager) WithBridge(b IdentityBridge) *Manager {
	m.bridge = b
	return m
}

// WithActivitySink configures an ActivitySink for emitting lifecycle events.
func (m *Manager) WithActivitySink(sink ActivitySink) *Manager {
	m.sink = normalizeActivitySink(sink)
	return m
}

// WithDefaultRole overrides the role anonymous registration gets.
func (m *Manager) WithDefaultRole(role string) *Manager {
	if role != "" {
		m.defaultRole = role
	}
	return m
}

// WithLockoutRecoveryEmail toggles the reset email a locked-out login sends.
func (m *Manager) WithLockoutRecoveryEmail(enabled bool) *Manager {
	m.lockoutRecoveryEmail = enabled
	return m
}

// WithProviderEmailTrust toggles auto-confirming email on accounts created
// from an external provider.
func (m *Manager) WithProviderEmailTrust(enabled bool) *Manager {
	m.trustProviderEmail = enabled
	return m
}

// WithDeterministicIDs derives account ids from the email address.
func (m *Manager) WithDeterministicIDs(enabled bool) *Manager {
	m.deterministicIDs = enabled
	return m
}

// RegisterInput carries the profile a new account is created from. Role is
// only honored when Actor carries the admin capability; anonymous callers
// always get the default role.
type RegisterInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone_number"`
	Address     string `json:"address"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	Password    string `json:"password"`
	Role        string `json:"role"`

	Actor ApiClaims `json:"-"`
}

// Validate checks the payload before any store round-trip.
func (r RegisterInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
	)
}

// Register creates a new account, queues the confirmation email, and
// assigns the role.
func (m *Manager) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	role, err := m.resolveRequestedRole(input.Role, input.Actor)
	if err != nil {
		return nil, err
	}

	email := NormalizeEmail(input.Email)

	if _, err := m.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrAccountExists
	} else if !goerrors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	phone, err := NormalizePhone(input.Phone, input.CountryCode)
	if err != nil {
		return nil, err
	}

	account := &Account{
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Email:       email,
		Phone:       phone,
		Address:     input.Address,
		City:        input.City,
		CountryCode: input.CountryCode,
		Role:        role,
		Active:      true,
	}

	if m.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			account.ID = id
		}
	}

	created, err := m.store.Create(ctx, account, input.Password)
	if err != nil {
		m.logger.Error("account creation failed", "email", email, "error", err)
		return nil, ErrCreationFailed
	}

	if err := m.store.EnsureRole(ctx, role); err != nil {
		m.logger.Warn("could not ensure role", "role", role, "error", err)
	}
	if err := m.store.AddToRole(ctx, created, role); err != nil {
		m.logger.Warn("could not assign role", "role", role, "error", err)
	}

	m.sendConfirmationEmail(ctx, created)

	m.emit(ctx, ActivityEventRegistered, actorFromAccount(created), created.ID.String(), map[string]any{
		"email": created.Email,
		"role":  created.Role,
	})

	return created, nil
}

// resolveRequestedRole enforces the capability gate: a non-default role can
// only be set by a caller already holding the admin role.
func (m *Manager) resolveRequestedRole(requested string, actor ApiClaims) (string, error) {
	if requested == "" || requested == m.defaultRole {
		return m.defaultRole, nil
	}

	if _, ok := ParseRole(requested); !ok {
		return "", ErrRoleInvalid
	}

	if actor == nil || !actor.HasRole(RoleAdmin) {
		return "", ErrUnauthorized
	}

	return requested, nil
}

// Login authenticates an email/password pair. Locked-out accounts are
// refused even with a correct password; with the lockout recovery option on
// the refusal also mails a reset link.
func (m *Manager) Login(ctx context.Context, email, password string) (*Account, error) {
	account, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			m.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"email": NormalizeEmail(email),
				"error": ErrAccountNotFound.Error(),
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !account.Active {
		m.emit(ctx, ActivityEventLoginFailure, actorFromAccount(account), account.ID.String(), map[string]any{
			"error": ErrAccountInactive.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	if account.IsLockedOut(time.Now()) {
		if m.lockoutRecoveryEmail {
			m.sendLockoutRecoveryEmail(ctx, account)
		}
		m.emit(ctx, ActivityEventLockedOut, actorFromAccount(account), account.ID.String(), nil)
		return nil, ErrAccountLockedOut
	}

	if err := m.store.ValidatePassword(ctx, account, password); err != nil {
		if goerrors.Is(err, ErrInvalidCredentials) {
			m.emit(ctx, ActivityEventLoginFailure, actorFromAccount(account), account.ID.String(), map[string]any{
				"error": err.Error(),
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	m.emit(ctx, ActivityEventLoginSuccess, actorFromAccount(account), account.ID.String(), nil)

	return account, nil
}

// Logout is a pure signal to the session layer; the manager holds no
// session state to clear.
func (m *Manager) Logout(ctx context.Context, accountID string) {
	m.emit(ctx, ActivityEventLogout, ActorRef{ID: accountID, Type: "account"}, accountID, nil)
}

// BeginExternalLogin returns the redirect directive that starts a provider
// challenge. No local state is kept.
func (m *Manager) BeginExternalLogin(ctx context.Context, provider, returnTarget string) (*RedirectDirective, error) {
	if m.bridge == nil {
		return nil, goerrors.New("no identity bridge configured", goerrors.CategoryInternal)
	}
	return m.bridge.BeginChallenge(ctx, provider, returnTarget)
}

// CompleteExternalLogin resolves a provider callback into an account:
// a known (provider, key) pair authenticates directly; a matching email
// links; anything else creates a minimal, provider-trusted account. Called
// twice with the same pair it always lands on the same account.
//
// Lockout is deliberately not checked on this path: the provider vouched
// for the user and no local password guess occurred.
func (m *Manager) CompleteExternalLogin(ctx context.Context, info *ExternalSignInInfo) (*Account, error) {
	if info == nil || info.Provider == "" || info.ProviderKey == "" {
		return nil, ErrExternalInfoMissing
	}

	account, err := m.store.FindLogin(ctx, info.Provider, info.ProviderKey)
	if err == nil {
		return m.finishExternalLogin(ctx, account, info, false)
	}
	if !goerrors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	email := NormalizeEmail(info.Claims.Email)
	if email == "" {
		m.logger.Error("external provider sent no email claim", "provider", info.Provider)
		return nil, ErrClaimMissing
	}

	account, err = m.store.FindByEmail(ctx, email)
	if err == nil {
		if err := m.store.AddLogin(ctx, account, info.Provider, info.ProviderKey); err != nil {
			return nil, ErrLinkFailed
		}
		return m.finishExternalLogin(ctx, account, info, false)
	}
	if !goerrors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	account = accountFromExternalClaims(info, m.defaultRole, m.trustProviderEmail)
	if m.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			account.ID = id
		}
	}

	created, err := m.store.Create(ctx, account, uuid.NewString())
	if err != nil {
		m.logger.Error("external account creation failed", "provider", info.Provider, "error", err)
		return nil, ErrCreationFailed
	}

	if err := m.store.EnsureRole(ctx, m.defaultRole); err != nil {
		m.logger.Warn("could not ensure role", "role", m.defaultRole, "error", err)
	}
	if err := m.store.AddToRole(ctx, created, m.defaultRole); err != nil {
		m.logger.Warn("could not assign role", "role", m.defaultRole, "error", err)
	}

	// the account exists and stays valid even if linking fails; retrying
	// the callback repairs the link
	if err := m.store.AddLogin(ctx, created, info.Provider, info.ProviderKey); err != nil {
		return nil, ErrLinkFailed
	}

	return m.finishExternalLogin(ctx, created, info, true)
}

func (m *Manager) finishExternalLogin(ctx context.Context, account *Account, info *ExternalSignInInfo, isNew bool) (*Account, error) {
	if !account.Active {
		return nil, ErrAccountInactive
	}

	m.emit(ctx, ActivityEventExternalLogin, ActorRef{ID: info.Provider, Type: "provider"}, account.ID.String(), map[string]any{
		"provider":     info.Provider,
		"provider_key": info.ProviderKey,
		"is_new":       isNew,
	})

	return account, nil
}

// ConfirmEmail redeems a confirmation token and flips the confirmed flag.
func (m *Manager) ConfirmEmail(ctx context.Context, accountID, token string) error {
	if accountID == "" || token == "" {
		return ErrAccountNotFound
	}

	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := m.store.ConfirmEmail(ctx, account, token); err != nil {
		return err
	}

	m.emit(ctx, ActivityEventEmailConfirmed, actorFromAccount(account), account.ID.String(), nil)

	return nil
}

// RequestPasswordReset issues a reset token and mails the link. Callers
// should present a uniform message whether or not the email matched, to
// avoid account enumeration.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := m.store.GenerateResetToken(ctx, account)
	if err != nil {
		return err
	}

	m.sendPasswordResetEmail(ctx, account, token)

	m.emit(ctx, ActivityEventPasswordResetRequest, actorFromAccount(account), account.ID.String(), nil)

	return nil
}

// ResetPassword redeems a reset token and replaces the credential.
func (m *Manager) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	account, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := m.store.ResetPassword(ctx, account, token, newPassword); err != nil {
		return err
	}

	m.emit(ctx, ActivityEventPasswordReset, actorFromAccount(account), account.ID.String(), nil)

	return nil
}

// ProfileUpdate is a partial profile change; nil fields stay untouched.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Phone       *string `json:"phone_number,omitempty"`
	Address     *string `json:"address,omitempty"`
	City        *string `json:"city,omitempty"`
	CountryCode *string `json:"country_code,omitempty"`
}

// ChangeProfile applies only the provided fields and persists.
func (m *Manager) ChangeProfile(ctx context.Context, accountID string, update ProfileUpdate) (*Account, error) {
	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if update.FirstName != nil {
		account.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		account.LastName = *update.LastName
	}
	if update.Address != nil {
		account.Address = *update.Address
	}
	if update.City != nil {
		account.City = *update.City
	}
	if update.CountryCode != nil {
		account.CountryCode = *update.CountryCode
	}
	if update.Phone != nil {
		phone, err := NormalizePhone(*update.Phone, account.CountryCode)
		if err != nil {
			return nil, err
		}
		account.Phone = phone
	}

	if err := m.store.Update(ctx, account); err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		m.logger.Error("profile update failed", "account", accountID, "error", err)
		return nil, ErrUpdateFailed
	}

	m.emit(ctx, ActivityEventProfileUpdated, actorFromAccount(account), account.ID.String(), nil)

	return account, nil
}

// ChangePassword replaces the credential after checking the old one.
func (m *Manager) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := m.store.ChangePassword(ctx, account, oldPassword, newPassword); err != nil {
		return err
	}

	m.emit(ctx, ActivityEventPasswordChanged, actorFromAccount(account), account.ID.String(), nil)

	return nil
}

// Deactivate soft-disables the account and persists the flag. The record is
// retired, not deleted.
func (m *Manager) Deactivate(ctx context.Context, accountID string) error {
	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	account.Active = false

	if err := m.store.Update(ctx, account); err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return err
		}
		m.logger.Error("deactivation failed", "account", accountID, "error", err)
		return ErrUpdateFailed
	}

	m.emit(ctx, ActivityEventDeactivated, actorFromAccount(account), account.ID.String(), nil)

	return nil
}

// CheckOrCreateRole makes sure a role with this name exists; no-op when it
// already does.
func (m *Manager) CheckOrCreateRole(ctx context.Context, name string) error {
	return m.store.EnsureRole(ctx, name)
}

func (m *Manager) sendConfirmationEmail(ctx context.Context, account *Account) {
	token, err := m.store.GenerateConfirmationToken(ctx, account)
	if err != nil {
		m.logger.Error("could not generate confirmation token", "account", account.ID.String(), "error", err)
		return
	}

	link := m.links.ConfirmEmailLink(account.ID.String(), token)
	subject, body, err := m.templates.ConfirmationEmail(link)
	if err != nil {
		m.logger.Error("could not render confirmation email", "error", err)
		return
	}

	m.sendMail(ctx, account.Email, subject, body)
}

func (m *Manager) sendLockoutRecoveryEmail(ctx context.Context, account *Account) {
	token, err := m.store.GenerateResetToken(ctx, account)
	if err != nil {
		m.logger.Error("could not generate lockout recovery token", "account", account.ID.String(), "error", err)
		return
	}
	m.sendPasswordResetEmail(ctx, account, token)
}

func (m *Manager) sendPasswordResetEmail(ctx context.Context, account *Account, token string) {
	link := m.links.PasswordResetLink(token)
	subject, body, err := m.templates.PasswordResetEmail(link)
	if err != nil {
		m.logger.Error("could not render password reset email", "error", err)
		return
	}

	m.sendMail(ctx, account.Email, subject, body)
}

// sendMail is fire-and-forget; delivery failure is a non-fatal warning and
// the surrounding operation still succeeds.
func (m *Manager) sendMail(ctx context.Context, to, subject, body string) {
	if m.mailer == nil {
		m.logger.Debug("no mailer configured, skipping notification", "to", to, "subject", subject)
		return
	}

	if err := m.mailer.Send(ctx, to, subject, body); err != nil {
		m.logger.Warn("email delivery failed", "to", to, "subject", subject, "error", err)
	}
}

func (m *Manager) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, metadata map[string]any) {
	sink := normalizeActivitySink(m.sink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

func actorFromAccount(account *Account) ActorRef {
	if account == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   account.ID.String(),
		Type: "account",
	}
}

func accountFromExternalClaims(info *ExternalSignInInfo, role string, confirmed bool) *Account {
	email := NormalizeEmail(info.Claims.Email)

	first := info.Claims.GivenName
	last := info.Claims.FamilyName
	if first == "" {
		first = localPart(email)
	}
	if last == "" {
		last = localPart(email)
	}

	return &Account{
		FirstName:      first,
		LastName:       last,
		Email:          email,
		Role:           role,
		Active:         true,
		EmailConfirmed: confirmed,
	}
}
