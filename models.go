package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the identity record of a person able to authenticate.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	Address        string     `bun:"address" json:"address,omitempty"`
	City           string     `bun:"city" json:"city,omitempty"`
	CountryCode    string     `bun:"country_code" json:"country_code,omitempty"`
	Role           string     `bun:"role,notnull" json:"role,omitempty"`
	Active         bool       `bun:"is_active,notnull" json:"is_active"`
	EmailConfirmed bool       `bun:"is_email_confirmed,notnull" json:"is_email_confirmed"`
	LockoutUntil   *time.Time `bun:"lockout_until,nullzero" json:"lockout_until,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsLockedOut reports whether the lockout window is still open.
func (a *Account) IsLockedOut(now time.Time) bool {
	return a.LockoutUntil != nil && a.LockoutUntil.After(now)
}

// NormalizeEmail lower-cases and trims an email so lookups stay
// case-insensitive regardless of how the address was typed.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// localPart returns the part of an email address before the @, used as a
// name fallback for provider-created accounts.
func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// TokenPurpose discriminates what a security token proves.
type TokenPurpose = string

const (
	// PurposeConfirmEmail marks tokens that flip the email-confirmed flag.
	PurposeConfirmEmail TokenPurpose = "confirm-email"
	// PurposePasswordReset marks tokens that authorize a password replacement.
	PurposePasswordReset TokenPurpose = "password-reset"
)

// SecurityToken is a single-use, time-boxed secret bound to an account. The
// record id doubles as the opaque token value handed to the user.
type SecurityToken struct {
	bun.BaseModel `bun:"table:security_tokens,alias:sect"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Purpose       string     `bun:"purpose,notnull" json:"purpose,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Consumed reports whether the token was already redeemed.
func (t *SecurityToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// ExternalLogin links an account to the stable key an external provider
// reports for it. One row per (provider, provider key).
type ExternalLogin struct {
	bun.BaseModel `bun:"table:external_logins,alias:extl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Provider      string     `bun:"provider,notnull" json:"provider,omitempty"`
	ProviderKey   string     `bun:"provider_key,notnull" json:"provider_key,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Role is a named role accounts can be assigned to. Accounts carry a single
// primary role; the table exists so assignment can be validated and so
// CheckOrCreateRole has something to be idempotent against.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
