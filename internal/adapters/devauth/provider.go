package devauth

// Package devauth provides a config-driven identity provider for local
// development. It emulates the authorize and token endpoints in-process,
// including PKCE verification and the form_post response mode.

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/ports"
	"golang.org/x/oauth2"
)

// AuthorizePath is where AuthCodeURL sends the browser.
const AuthorizePath = "/auth/dev/authorize"

// codeTTL bounds how long an issued code may be redeemed.
const codeTTL = 2 * time.Minute

// Errors returned by Authorize and ExchangeCode.
var (
	ErrUnknownCode      = errors.New("dev auth: unknown or expired authorization code")
	ErrVerifierMismatch = errors.New("dev auth: code verifier does not match challenge")
	ErrNonceMismatch    = errors.New("dev auth: nonce mismatch")
	ErrRedirectMismatch = errors.New("dev auth: redirect_uri does not match configuration")
)

// Config controls the dev identity. Username is required.
type Config struct {
	Username    string
	Name        string
	TenantID    string
	RedirectURL string
	LogoutURL   string
	Logger      *slog.Logger
}

// FormPost is what the authorize page posts back to the portal.
type FormPost struct {
	Action string
	Fields map[string]string
}

type issuedCode struct {
	challenge   string
	nonce       string
	redirectURI string
	expiresAt   time.Time
}

// Provider implements ports.IdentityProvider for local development.
type Provider struct {
	account     domainauth.Account
	redirectURL string
	logoutURL   string
	signingKey  []byte
	logger      *slog.Logger

	mu    sync.Mutex
	codes map[string]issuedCode
	now   func() time.Time
}

// NewProvider constructs a dev provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Username == "" {
		return nil, errors.New("dev auth: Username is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("dev auth: RedirectURL is required")
	}
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "dev-tenant"
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Username
	}
	logoutURL := cfg.LogoutURL
	if logoutURL == "" {
		logoutURL = "/"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("dev auth: signing key: %w", err)
	}
	return &Provider{
		account: domainauth.Account{
			HomeAccountID:  "dev-user." + tenant,
			Environment:    "localhost",
			TenantID:       tenant,
			Username:       cfg.Username,
			Name:           name,
			LocalAccountID: "dev-user",
		},
		redirectURL: cfg.RedirectURL,
		logoutURL:   logoutURL,
		signingKey:  key,
		logger:      logger,
		codes:       make(map[string]issuedCode),
		now:         time.Now,
	}, nil
}

// AuthCodeURL returns a local authorize URL carrying the request parameters.
func (p *Provider) AuthCodeURL(_ context.Context, req domainauth.AuthCodeURLRequest) (string, error) {
	if req.State == "" {
		return "", errors.New("state is required")
	}
	if req.CodeChallenge == "" {
		return "", errors.New("code challenge is required")
	}
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = p.redirectURL
	}
	q := url.Values{}
	q.Set("state", req.State)
	q.Set("nonce", req.Nonce)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_mode", req.ResponseMode)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", string(req.CodeChallengeMethod))
	return AuthorizePath + "?" + q.Encode(), nil
}

// Authorize plays the provider's authorize endpoint: it issues a single-use
// code bound to the challenge and nonce and returns the form to post back.
func (p *Provider) Authorize(query url.Values) (FormPost, error) {
	state := query.Get("state")
	challenge := query.Get("code_challenge")
	redirectURI := query.Get("redirect_uri")
	if state == "" || challenge == "" {
		return FormPost{}, errors.New("dev auth: state and code_challenge are required")
	}
	if m := query.Get("code_challenge_method"); m != "" && m != string(domainauth.ChallengeMethodS256) {
		return FormPost{}, fmt.Errorf("dev auth: unsupported code_challenge_method %q", m)
	}
	if redirectURI != p.redirectURL {
		return FormPost{}, ErrRedirectMismatch
	}

	code, err := randomString(32)
	if err != nil {
		return FormPost{}, fmt.Errorf("generate code: %w", err)
	}
	p.mu.Lock()
	p.pruneLocked()
	p.codes[code] = issuedCode{
		challenge:   challenge,
		nonce:       query.Get("nonce"),
		redirectURI: redirectURI,
		expiresAt:   p.now().Add(codeTTL),
	}
	p.mu.Unlock()

	return FormPost{
		Action: redirectURI,
		Fields: map[string]string{"code": code, "state": state},
	}, nil
}

// ExchangeCode redeems a code issued by Authorize and returns the dev account.
func (p *Provider) ExchangeCode(ctx context.Context, in ports.ExchangeInput) (domainauth.TokenResult, error) {
	req := in.Request
	p.mu.Lock()
	issued, ok := p.codes[req.Code]
	delete(p.codes, req.Code)
	p.mu.Unlock()
	if !ok || p.now().After(issued.expiresAt) {
		return domainauth.TokenResult{}, ErrUnknownCode
	}
	challenge := oauth2.S256ChallengeFromVerifier(req.CodeVerifier)
	if subtle.ConstantTimeCompare([]byte(challenge), []byte(issued.challenge)) != 1 {
		return domainauth.TokenResult{}, ErrVerifierMismatch
	}
	if issued.nonce != req.Nonce {
		return domainauth.TokenResult{}, ErrNonceMismatch
	}

	expiresAt := p.now().Add(time.Hour)
	idToken, err := p.mintIDToken(req.Nonce, expiresAt)
	if err != nil {
		return domainauth.TokenResult{}, err
	}
	claims, err := p.parseIDToken(idToken)
	if err != nil {
		return domainauth.TokenResult{}, err
	}
	if claims.Nonce != req.Nonce {
		return domainauth.TokenResult{}, ErrNonceMismatch
	}
	account := p.account
	account.LocalAccountID = claims.Subject
	account.Username = claims.PreferredUsername
	account.Name = claims.Name
	account.TenantID = claims.TenantID

	cache := map[string]any{}
	if in.TokenCache != "" {
		if err := json.Unmarshal([]byte(in.TokenCache), &cache); err != nil {
			p.logger.DebugContext(ctx, "discarding unreadable token cache", "error", err)
			cache = map[string]any{}
		}
	}
	cache[account.HomeAccountID] = map[string]any{"id_token": idToken, "expires_at": expiresAt}
	raw, err := json.Marshal(cache)
	if err != nil {
		return domainauth.TokenResult{}, fmt.Errorf("marshal token cache: %w", err)
	}

	return domainauth.TokenResult{
		IDToken:    idToken,
		Account:    account,
		TokenCache: string(raw),
		ExpiresAt:  expiresAt,
	}, nil
}

// EndSessionURL returns the configured logout URL with the post-logout target.
func (p *Provider) EndSessionURL(postLogoutRedirectURI string) string {
	if postLogoutRedirectURI == "" {
		return p.logoutURL
	}
	u, err := url.Parse(p.logoutURL)
	if err != nil {
		return p.logoutURL
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Provider) pruneLocked() {
	now := p.now()
	for code, c := range p.codes {
		if now.After(c.expiresAt) {
			delete(p.codes, code)
		}
	}
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// mintIDToken signs an HS256 id_token for the dev account with a key that
// lives only as long as the Provider.
func (p *Provider) mintIDToken(nonce string, expiresAt time.Time) (string, error) {
	now := p.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "urn:captive-portal:devauth",
			Subject:   p.account.LocalAccountID,
			Audience:  jwt.ClaimStrings{p.redirectURL},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Nonce:             nonce,
		Name:              p.account.Name,
		PreferredUsername: p.account.Username,
		TenantID:          p.account.TenantID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign dev id_token: %w", err)
	}
	return signed, nil
}

// Claims is the payload of a dev id_token.
type Claims struct {
	jwt.RegisteredClaims
	Nonce             string `json:"nonce"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	TenantID          string `json:"tid,omitempty"`
}

// parseIDToken verifies a token minted by this Provider and returns its claims.
func (p *Provider) parseIDToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("urn:captive-portal:devauth"),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse dev id_token: %w", err)
	}
	return claims, nil
}
