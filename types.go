package identity

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialStore is the persistence contract the lifecycle manager depends
// on. It owns account records, password hashes, lockout counters, single-use
// tokens, external links, and role memberships.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account, password string) (*Account, error)
	Update(ctx context.Context, account *Account) error

	// ValidatePassword checks the clear-text password against the stored
	// hash, tracking failed attempts and tripping the lockout window.
	ValidatePassword(ctx context.Context, account *Account, password string) error

	GenerateConfirmationToken(ctx context.Context, account *Account) (string, error)
	ConfirmEmail(ctx context.Context, account *Account, token string) error
	GenerateResetToken(ctx context.Context, account *Account) (string, error)
	ResetPassword(ctx context.Context, account *Account, token, newPassword string) error
	ChangePassword(ctx context.Context, account *Account, oldPassword, newPassword string) error

	AddLogin(ctx context.Context, account *Account, provider, providerKey string) error
	FindLogin(ctx context.Context, provider, providerKey string) (*Account, error)

	IsInRole(ctx context.Context, account *Account, role string) (bool, error)
	AddToRole(ctx context.Context, account *Account, role string) error
	EnsureRole(ctx context.Context, name string) error
}

// Mailer delivers templated notification email. Delivery failures are
// reported but treated as non-fatal by every lifecycle operation.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LinkBuilder produces the user-facing URLs embedded in notification email.
type LinkBuilder interface {
	ConfirmEmailLink(accountID, token string) string
	PasswordResetLink(token string) string
}

// RedirectDirective tells the caller where to send the browser to start an
// external provider challenge.
type RedirectDirective struct {
	URL      string
	Provider string
	State    string
}

// ExternalClaims are the identity claims reported by an external provider.
type ExternalClaims struct {
	Email      string
	GivenName  string
	FamilyName string
}

// ExternalSignInInfo is the stable identity an external provider confirmed
// on callback.
type ExternalSignInInfo struct {
	Provider    string
	ProviderKey string
	Claims      ExternalClaims
}

// IdentityBridge reaches the third-party identity provider.
type IdentityBridge interface {
	BeginChallenge(ctx context.Context, provider, returnTarget string) (*RedirectDirective, error)
	CompleteCallback(ctx context.Context, code, state string) (*ExternalSignInInfo, error)
}

// ApiClaims is what a validated bearer token exposes to callers.
type ApiClaims interface {
	Subject() string
	TokenID() string
	Role() string
	Expires() time.Time
	IssuedAt() time.Time
	HasRole(role string) bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
