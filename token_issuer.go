package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long a minted API token stays valid.
var DefaultTokenTTL = 15 * time.Minute

// TokenIssuerConfig is the explicit configuration TokenIssuer runs on.
// There is no ambient fallback: SigningKey must be provided by the caller.
type TokenIssuerConfig struct {
	Issuer     string
	Audience   []string
	SigningKey []byte
	// TokenTTL defaults to DefaultTokenTTL when zero.
	TokenTTL time.Duration
}

// TokenIssuer exchanges valid credentials for short-lived HS256 bearer
// tokens and validates tokens it minted. Any credential failure, including
// inactive or locked-out accounts, surfaces as ErrUnauthorized so the API
// edge never leaks account state.
type TokenIssuer struct {
	store      CredentialStore
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	ttl        time.Duration
	logger     Logger
}

// NewTokenIssuer returns a TokenIssuer over the given store and config.
func NewTokenIssuer(store CredentialStore, cfg TokenIssuerConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &TokenIssuer{
		store:      store,
		signingKey: cfg.SigningKey,
		issuer:     cfg.Issuer,
		audience:   jwt.ClaimStrings(cfg.Audience),
		ttl:        ttl,
		logger:     defLogger{},
	}
}

func (ti *TokenIssuer) WithLogger(logger Logger) *TokenIssuer {
	if logger != nil {
		ti.logger = logger
	}
	return ti
}

// apiClaims is the concrete ApiClaims carried inside issued tokens. The
// subject is the account email and the jti is a fresh nonce per token.
type apiClaims struct {
	jwt.RegisteredClaims
	AccountRole string `json:"role,omitempty"`
}

var _ ApiClaims = (*apiClaims)(nil)

func (c *apiClaims) Subject() string { return c.RegisteredClaims.Subject }

func (c *apiClaims) TokenID() string { return c.RegisteredClaims.ID }

func (c *apiClaims) Role() string { return c.AccountRole }

func (c *apiClaims) HasRole(role string) bool { return c.AccountRole == role }

func (c *apiClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

func (c *apiClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// MintApiToken verifies the credentials and returns a signed token with its
// expiry. Every refusal is ErrUnauthorized; the specific reason only goes
// to the log.
func (ti *TokenIssuer) MintApiToken(ctx context.Context, email, password string) (string, time.Time, error) {
	account, err := ti.store.FindByEmail(ctx, email)
	if err != nil {
		ti.logger.Warn("token mint refused", "email", NormalizeEmail(email), "error", err)
		return "", time.Time{}, ErrUnauthorized
	}

	if !account.Active {
		ti.logger.Warn("token mint refused for inactive account", "account", account.ID.String())
		return "", time.Time{}, ErrUnauthorized
	}

	if account.IsLockedOut(time.Now()) {
		ti.logger.Warn("token mint refused for locked out account", "account", account.ID.String())
		return "", time.Time{}, ErrUnauthorized
	}

	if err := ti.store.ValidatePassword(ctx, account, password); err != nil {
		ti.logger.Warn("token mint password check failed", "account", account.ID.String(), "error", err)
		return "", time.Time{}, ErrUnauthorized
	}

	now := time.Now()
	expires := now.Add(ti.ttl)

	var aud jwt.ClaimStrings
	if len(ti.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ti.audience))
		copy(aud, ti.audience)
	}

	claims := &apiClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   account.Email,
			Audience:  aud,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		AccountRole: account.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ti.signingKey)
	if err != nil {
		ti.logger.Error("token signing failed", "error", err)
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, expires, nil
}

// Validate parses and validates a token string, returning structured claims.
func (ti *TokenIssuer) Validate(tokenString string) (ApiClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ti.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ti.issuer))
	}
	if len(ti.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ti.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &apiClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ti.logger.Error("token validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*apiClaims); ok && token.Valid {
		return claims, nil
	}

	ti.logger.Error("token validate could not decode claims")
	return nil, ErrTokenMalformed
}
