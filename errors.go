package identity

import "github.com/goliatone/go-errors"

const (
	TextCodeAccountNotFound     = "account_not_found"
	TextCodeAccountExists       = "account_already_exists"
	TextCodeInvalidCredentials  = "invalid_credentials"
	TextCodeAccountLockedOut    = "account_locked_out"
	TextCodeAccountInactive     = "account_inactive"
	TextCodeTokenInvalid        = "token_invalid"
	TextCodeWrongOldPassword    = "wrong_old_password"
	TextCodeClaimMissing        = "external_claim_missing"
	TextCodeExternalInfoMissing = "external_info_missing"
	TextCodeLinkFailed          = "external_link_failed"
	TextCodeCreationFailed      = "account_creation_failed"
	TextCodeUpdateFailed        = "account_update_failed"
	TextCodeUnauthorized        = "unauthorized"
	TextCodeRoleInvalid         = "role_invalid"
	TextCodeTokenExpired        = "api_token_expired"
	TextCodeTokenMalformed      = "api_token_malformed"
)

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccountExists is returned when registering an email that is taken.
var ErrAccountExists = errors.New("account already exists", errors.CategoryConflict).
	WithTextCode(TextCodeAccountExists).
	WithCode(errors.CodeConflict)

// ErrInvalidCredentials covers absent accounts, inactive accounts, and
// password mismatches on the login path.
var ErrInvalidCredentials = errors.New("incorrect username or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountLockedOut is returned while the lockout window is open, even
// when the supplied password is correct.
var ErrAccountLockedOut = errors.New("account is locked out", errors.CategoryAuth).
	WithTextCode(TextCodeAccountLockedOut).
	WithCode(errors.CodeUnauthorized)

// ErrAccountInactive is returned for deactivated accounts.
var ErrAccountInactive = errors.New("account is deactivated", errors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(errors.CodeForbidden)

// ErrTokenInvalid is returned when a confirmation or reset token is wrong,
// expired, or already consumed.
var ErrTokenInvalid = errors.New("token is invalid or expired", errors.CategoryValidation).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeBadRequest)

// ErrWrongOldPassword is returned when a password change presents a stale
// old credential.
var ErrWrongOldPassword = errors.New("old password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeWrongOldPassword).
	WithCode(errors.CodeUnauthorized)

// ErrClaimMissing is returned when an external provider confirmed the user
// but reported no email claim.
var ErrClaimMissing = errors.New("email claim not received from provider", errors.CategoryAuth).
	WithTextCode(TextCodeClaimMissing).
	WithCode(errors.CodeUnauthorized)

// ErrExternalInfoMissing is returned when the bridge yields no usable
// callback information.
var ErrExternalInfoMissing = errors.New("external login information missing", errors.CategoryAuth).
	WithTextCode(TextCodeExternalInfoMissing).
	WithCode(errors.CodeUnauthorized)

// ErrLinkFailed is returned when attaching an external identity to an
// existing account fails. The account itself stays valid.
var ErrLinkFailed = errors.New("could not link external identity", errors.CategoryInternal).
	WithTextCode(TextCodeLinkFailed)

// ErrCreationFailed is returned when the store refuses to create an account.
var ErrCreationFailed = errors.New("account could not be created", errors.CategoryInternal).
	WithTextCode(TextCodeCreationFailed)

// ErrUpdateFailed is returned when the store refuses an account update.
var ErrUpdateFailed = errors.New("account could not be updated", errors.CategoryInternal).
	WithTextCode(TextCodeUpdateFailed)

// ErrUnauthorized is returned by the token issuer and by capability-gated
// operations invoked without the required capability.
var ErrUnauthorized = errors.New("unauthorized", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when an API bearer token is past its expiry.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when an API bearer token fails parsing or
// signature verification.
var ErrTokenMalformed = errors.New("token malformed or invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrRoleInvalid is returned when a role name is not one we recognize.
var ErrRoleInvalid = errors.New("unknown or invalid role", errors.CategoryValidation).
	WithTextCode(TextCodeRoleInvalid).
	WithCode(errors.CodeBadRequest)
