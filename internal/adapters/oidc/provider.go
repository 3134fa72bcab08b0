package oidc

// Package oidc implements the identity provider port against an OpenID Connect
// authority (Microsoft identity platform v2.0 endpoints by default).

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/ports"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds every call to the authority.
const DefaultTimeout = 5 * time.Second

// Provider implements ports.IdentityProvider using go-oidc and x/oauth2.
// Authority metadata is fetched on first use and cached for the life of the
// process.
type Provider struct {
	clientID          string
	clientSecret      string
	authority         string
	redirectURL       string
	scopes            []string
	logoutURL         string
	cloudDiscoveryURL string
	timeout           time.Duration
	httpClient        *http.Client
	logger            *slog.Logger

	mu    sync.RWMutex
	md    *metadata
	group singleflight.Group
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	// Authority is the tenant-qualified base URL, e.g.
	// https://login.microsoftonline.com/<tenant-id>.
	Authority   string
	RedirectURL string
	Scopes      []string
	// LogoutURL defaults to <Authority>/oauth2/v2.0/logout.
	LogoutURL string
	// CloudDiscoveryURL enables cloud instance discovery when set, e.g.
	// https://login.microsoftonline.com/common/discovery/instance.
	CloudDiscoveryURL string
	Timeout           time.Duration
	HTTPClient        *http.Client // Optional, defaults to a pooled client with Timeout
	Logger            *slog.Logger
}

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{gooidc.ScopeOpenID, "profile", gooidc.ScopeOfflineAccess}

// NewProvider validates config. No network I/O happens until the first call
// that needs authority metadata.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	authority := strings.TrimSuffix(strings.TrimSpace(config.Authority), "/")
	if authority == "" {
		return nil, errors.New("authority is required")
	}
	if u, err := url.Parse(authority); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authority must be an absolute URL: %q", config.Authority)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: cleanhttp.DefaultPooledTransport(), Timeout: timeout}
	}

	logoutURL := config.LogoutURL
	if logoutURL == "" {
		logoutURL = authority + "/oauth2/v2.0/logout"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		clientID:          config.ClientID,
		clientSecret:      config.ClientSecret,
		authority:         authority,
		redirectURL:       config.RedirectURL,
		scopes:            withOpenID(config.Scopes),
		logoutURL:         logoutURL,
		cloudDiscoveryURL: config.CloudDiscoveryURL,
		timeout:           timeout,
		httpClient:        httpClient,
		logger:            logger,
	}, nil
}

// Issuer returns the issuer the provider expects in discovery and ID tokens.
func (p *Provider) Issuer() string { return p.authority + "/v2.0" }

// Warm fetches authority metadata ahead of the first sign-in.
func (p *Provider) Warm(ctx context.Context) error {
	_, err := p.metadata(ctx)
	return err
}

func (p *Provider) AuthCodeURL(ctx context.Context, req domainauth.AuthCodeURLRequest) (string, error) {
	if req.State == "" {
		return "", errors.New("state is required")
	}
	if req.CodeChallenge == "" {
		return "", errors.New("code challenge is required")
	}
	md, err := p.metadata(ctx)
	if err != nil {
		return "", err
	}

	cfg := p.oauthConfig(md, req.Scopes, req.RedirectURI)
	method := req.CodeChallengeMethod
	if method == "" {
		method = domainauth.ChallengeMethodS256
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(method)),
	}
	if req.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", req.ResponseMode))
	}
	if req.Nonce != "" {
		opts = append(opts, gooidc.Nonce(req.Nonce))
	}
	return cfg.AuthCodeURL(req.State, opts...), nil
}

func (p *Provider) ExchangeCode(ctx context.Context, in ports.ExchangeInput) (domainauth.TokenResult, error) {
	req := in.Request
	if req.Code == "" {
		return domainauth.TokenResult{}, errors.New("authorization code is required")
	}
	if req.CodeVerifier == "" {
		return domainauth.TokenResult{}, errors.New("code verifier is required")
	}
	if req.Nonce == "" {
		return domainauth.TokenResult{}, errors.New("nonce is required")
	}
	md, err := p.metadata(ctx)
	if err != nil {
		return domainauth.TokenResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	cfg := p.oauthConfig(md, req.Scopes, req.RedirectURI)
	token, err := cfg.Exchange(ctx, req.Code, oauth2.VerifierOption(req.CodeVerifier))
	if err != nil {
		return domainauth.TokenResult{}, fmt.Errorf("exchange code for token: %w", err)
	}

	rawID, err := getIDTokenFromToken(token)
	if err != nil {
		return domainauth.TokenResult{}, err
	}
	idTok, err := md.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.TokenResult{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return domainauth.TokenResult{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if claims.Nonce != req.Nonce {
		return domainauth.TokenResult{}, errors.New("invalid nonce")
	}

	account := mapAccountClaims(claims, md.environment)
	if account.Username == "" && token.AccessToken != "" {
		// Username is best-effort; the verified subject already identifies the account.
		if ui, uiErr := p.getUserInfo(ctx, md, token.AccessToken); uiErr == nil {
			fillFromUserInfoClaims(&account, ui)
		}
	}

	expiresAt := idTok.Expiry
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}

	cache, cacheErr := decodeTokenCache(in.TokenCache)
	if cacheErr != nil {
		p.logger.DebugContext(ctx, "discarding unreadable token cache", "error", cacheErr)
	}
	cache.put(account, rawID, token)
	serialized, err := cache.encode()
	if err != nil {
		return domainauth.TokenResult{}, err
	}

	return domainauth.TokenResult{
		IDToken:    rawID,
		Account:    account,
		TokenCache: serialized,
		ExpiresAt:  expiresAt,
	}, nil
}

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

func (p *Provider) oauthConfig(md *metadata, scopes []string, redirectURI string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = p.scopes
	}
	if redirectURI == "" {
		redirectURI = p.redirectURL
	}
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       withOpenID(scopes),
		Endpoint:     md.endpoint,
	}
}

// UserInfo represents the subset of userinfo claims used to fill a missing username.
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
}

func (p *Provider) getUserInfo(ctx context.Context, md *metadata, accessToken string) (UserInfo, error) {
	ui, err := md.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return UserInfo{}, fmt.Errorf("fetch user info: %w", err)
	}
	var info UserInfo
	if claimsErr := ui.Claims(&info); claimsErr != nil {
		return UserInfo{}, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return info, nil
}

// idTokenClaims is the Microsoft identity platform v2.0 ID token shape.
type idTokenClaims struct {
	Subject           string `json:"sub"`
	ObjectID          string `json:"oid"`
	TenantID          string `json:"tid"`
	PreferredUsername string `json:"preferred_username"`
	UPN               string `json:"upn"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Nonce             string `json:"nonce"`
}

// mapAccountClaims builds an Account. The home account id is "<oid>.<tid>"
// when both are present and falls back to the subject.
func mapAccountClaims(c idTokenClaims, environment string) domainauth.Account {
	localID := firstNonEmpty(c.ObjectID, c.Subject)
	homeID := localID
	if c.ObjectID != "" && c.TenantID != "" {
		homeID = c.ObjectID + "." + c.TenantID
	}
	return domainauth.Account{
		HomeAccountID:  homeID,
		Environment:    environment,
		TenantID:       c.TenantID,
		Username:       firstNonEmpty(c.PreferredUsername, c.UPN, c.Email),
		Name:           c.Name,
		LocalAccountID: localID,
	}
}

// fillFromUserInfoClaims fills missing fields without overwriting ID token values.
func fillFromUserInfoClaims(a *domainauth.Account, ui UserInfo) {
	if a.Username == "" {
		a.Username = firstNonEmpty(ui.PreferredUsername, ui.Email)
	}
	if a.Name == "" {
		a.Name = ui.Name
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// withOpenID returns scopes (or DefaultScopes when empty) with "openid" first.
func withOpenID(scopes []string) []string {
	if len(scopes) == 0 {
		return slices.Clone(DefaultScopes)
	}
	if slices.Contains(scopes, gooidc.ScopeOpenID) {
		return slices.Clone(scopes)
	}
	return append([]string{gooidc.ScopeOpenID}, scopes...)
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
