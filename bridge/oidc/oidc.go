package oidc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	identity "github.com/highfly/go-identity"
)

// ProviderConfig holds one OIDC provider's endpoints and credentials.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL  string
	TokenURL string
	// JWKSURL is where the provider publishes its signing keys. The
	// id_token returned by the code exchange is validated against it.
	JWKSURL string
	Issuer  string
}

// Config configures the Bridge.
type Config struct {
	Providers map[string]ProviderConfig

	// StateEncryptionKey must be 16, 24, or 32 bytes (AES-128/192/256).
	StateEncryptionKey []byte
	StateHMACKey       []byte
	StateTTL           time.Duration

	HTTPClient *http.Client
}

// DefaultScopes returns the scopes requested when a provider sets none.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Bridge implements identity.IdentityBridge over the OIDC code flow: it
// builds the provider redirect, exchanges the callback code, and validates
// the id_token against the provider's JWKS before trusting any claim.
type Bridge struct {
	providers  map[string]ProviderConfig
	states     StateCodec
	httpClient *http.Client

	jwksMu sync.Mutex
	jwks   map[string]*keyfunc.JWKS
}

var _ identity.IdentityBridge = (*Bridge)(nil)

// New creates a Bridge from the given config.
func New(cfg Config) *Bridge {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if len(pc.Scopes) == 0 {
			pc.Scopes = DefaultScopes()
		}
		providers[name] = pc
	}

	return &Bridge{
		providers:  providers,
		states:     NewEncryptedStateCodec(cfg.StateEncryptionKey, cfg.StateHMACKey, cfg.StateTTL),
		httpClient: client,
		jwks:       map[string]*keyfunc.JWKS{},
	}
}

// WithStateCodec overrides the state codec.
func (b *Bridge) WithStateCodec(codec StateCodec) *Bridge {
	if codec != nil {
		b.states = codec
	}
	return b
}

// BeginChallenge builds the provider redirect carrying an encrypted state.
func (b *Bridge) BeginChallenge(ctx context.Context, provider, returnTarget string) (*identity.RedirectDirective, error) {
	pc, ok := b.providers[provider]
	if !ok {
		return nil, ErrProviderNotFound
	}

	state, err := b.states.Encode(&ChallengeState{
		Provider:     provider,
		ReturnTarget: returnTarget,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode state")
	}

	params := url.Values{
		"client_id":     {pc.ClientID},
		"redirect_uri":  {pc.CallbackURL},
		"response_type": {"code"},
		"scope":         {strings.Join(pc.Scopes, " ")},
		"state":         {state},
	}

	return &identity.RedirectDirective{
		URL:      pc.AuthURL + "?" + params.Encode(),
		Provider: provider,
		State:    state,
	}, nil
}

// CompleteCallback exchanges the code, validates the id_token, and returns
// the confirmed external identity.
func (b *Bridge) CompleteCallback(ctx context.Context, code, state string) (*identity.ExternalSignInInfo, error) {
	decoded, err := b.states.Decode(state)
	if err != nil {
		return nil, err
	}

	pc, ok := b.providers[decoded.Provider]
	if !ok {
		return nil, ErrProviderNotFound
	}

	idToken, err := b.exchange(ctx, pc, code)
	if err != nil {
		return nil, err
	}

	claims, err := b.validateIDToken(decoded.Provider, pc, idToken)
	if err != nil {
		return nil, err
	}

	return &identity.ExternalSignInInfo{
		Provider:    decoded.Provider,
		ProviderKey: claims.Subject,
		Claims: identity.ExternalClaims{
			Email:      claims.Email,
			GivenName:  claims.GivenName,
			FamilyName: claims.FamilyName,
		},
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

func (b *Bridge) exchange(ctx context.Context, pc ProviderConfig, code string) (string, error) {
	data := url.Values{
		"client_id":     {pc.ClientID},
		"client_secret": {pc.ClientSecret},
		"code":          {code},
		"redirect_uri":  {pc.CallbackURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", goerrors.Wrap(err, ErrTokenExchangeFailed.Category, ErrTokenExchangeFailed.Message).
			WithTextCode(ErrTokenExchangeFailed.TextCode)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", goerrors.Wrap(err, ErrTokenExchangeFailed.Category, "failed to decode token response").
			WithTextCode(ErrTokenExchangeFailed.TextCode)
	}

	if resp.StatusCode != http.StatusOK || tok.Error != "" {
		return "", ErrTokenExchangeFailed
	}
	if tok.IDToken == "" {
		return "", goerrors.New("missing id_token in token response", ErrTokenExchangeFailed.Category).
			WithTextCode(ErrTokenExchangeFailed.TextCode)
	}

	return tok.IDToken, nil
}

// idTokenClaims are the subset of OIDC standard claims the bridge reads.
type idTokenClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (b *Bridge) validateIDToken(provider string, pc ProviderConfig, raw string) (*idTokenClaims, error) {
	jwks, err := b.keySet(provider, pc)
	if err != nil {
		return nil, err
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithAudience(pc.ClientID),
	}
	if pc.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(pc.Issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &idTokenClaims{}, jwks.Keyfunc, parserOptions...)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrIDTokenInvalid.Category, ErrIDTokenInvalid.Message).
			WithTextCode(ErrIDTokenInvalid.TextCode)
	}

	claims, ok := token.Claims.(*idTokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrIDTokenInvalid
	}

	return claims, nil
}

// keySet lazily fetches and caches the provider's JWKS; keyfunc refreshes
// it in the background on unknown key ids.
func (b *Bridge) keySet(provider string, pc ProviderConfig) (*keyfunc.JWKS, error) {
	b.jwksMu.Lock()
	defer b.jwksMu.Unlock()

	if jwks, ok := b.jwks[provider]; ok {
		return jwks, nil
	}

	jwks, err := keyfunc.Get(pc.JWKSURL, keyfunc.Options{
		Client:            b.httpClient,
		RefreshUnknownKID: true,
		RefreshInterval:   time.Hour,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load provider JWKS")
	}

	b.jwks[provider] = jwks

	return jwks, nil
}
