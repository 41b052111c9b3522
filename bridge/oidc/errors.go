package oidc

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound  = "oidc_provider_not_found"
	TextCodeInvalidState      = "oidc_invalid_state"
	TextCodeStateExpired      = "oidc_state_expired"
	TextCodeTokenExchangeFail = "oidc_token_exchange_failed"
	TextCodeIDTokenInvalid    = "oidc_id_token_invalid"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("oidc provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidState is returned when the callback state is invalid or tampered.
var ErrInvalidState = errors.New("invalid oidc state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the callback state has expired.
var ErrStateExpired = errors.New("oidc state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when the provider code exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrIDTokenInvalid is returned when the id_token fails signature or claim
// validation.
var ErrIDTokenInvalid = errors.New("id token invalid", errors.CategoryAuth).
	WithTextCode(TextCodeIDTokenInvalid).
	WithCode(errors.CodeUnauthorized)
