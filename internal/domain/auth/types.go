package auth

// Package auth contains domain-level types for the captive portal sign-in flow.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned by session stores when no live session exists.
var ErrSessionNotFound = errors.New("session not found")

// ChallengeMethod is the PKCE code challenge method.
type ChallengeMethod string

// ChallengeMethodS256 is the only method this portal issues.
const ChallengeMethodS256 ChallengeMethod = "S256"

// ResponseModeFormPost asks the provider to return the authorization response
// in an HTTP POST body instead of the query string or fragment.
const ResponseModeFormPost = "form_post"

// PKCECodes holds the verifier/challenge pair for one authorization attempt.
type PKCECodes struct {
	Verifier        string          `json:"verifier"`
	Challenge       string          `json:"challenge"`
	ChallengeMethod ChallengeMethod `json:"challenge_method"`
}

// AuthCodeURLRequest carries the parameters used to build the provider's
// authorization URL.
type AuthCodeURLRequest struct {
	State               string          `json:"state"`
	Nonce               string          `json:"nonce"`
	Scopes              []string        `json:"scopes,omitempty"`
	RedirectURI         string          `json:"redirect_uri"`
	ResponseMode        string          `json:"response_mode"`
	CodeChallenge       string          `json:"code_challenge"`
	CodeChallengeMethod ChallengeMethod `json:"code_challenge_method"`
}

// AuthCodeRequest carries the parameters used to redeem an authorization code.
// Code and CodeVerifier are filled in only when the provider responds.
type AuthCodeRequest struct {
	State        string   `json:"state"`
	Nonce        string   `json:"nonce"`
	Scopes       []string `json:"scopes,omitempty"`
	RedirectURI  string   `json:"redirect_uri"`
	Code         string   `json:"code"`
	CodeVerifier string   `json:"-"`
}

// FlowState is the per-browser state of a pending authorization attempt.
type FlowState struct {
	PKCE               PKCECodes          `json:"pkce"`
	AuthCodeURLRequest AuthCodeURLRequest `json:"auth_code_url_request"`
	AuthCodeRequest    AuthCodeRequest    `json:"auth_code_request"`
	StartedAt          time.Time          `json:"started_at"`
}

// Account is the provider-issued description of the signed-in user.
// It lives only in the browser's session.
type Account struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment"`
	TenantID       string `json:"tenant_id,omitempty"`
	Username       string `json:"username,omitempty"`
	Name           string `json:"name,omitempty"`
	LocalAccountID string `json:"local_account_id,omitempty"`
}

// Session is the server-side record kept for one browser, keyed by the
// session cookie.
type Session struct {
	ID              string     `json:"id"`
	Flow            *FlowState `json:"flow,omitempty"`
	TokenCache      string     `json:"token_cache,omitempty"`
	IDToken         string     `json:"id_token,omitempty"`
	Account         *Account   `json:"account,omitempty"`
	IsAuthenticated bool       `json:"is_authenticated"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// Pending reports whether the session has an authorization attempt in flight.
func (s *Session) Pending() bool { return s != nil && s.Flow != nil }

// Username returns the signed-in account's username, or "" when anonymous.
func (s *Session) Username() string {
	if s == nil || !s.IsAuthenticated || s.Account == nil {
		return ""
	}
	return s.Account.Username
}

// ClearFlow drops any pending authorization attempt.
func (s *Session) ClearFlow() { s.Flow = nil }

// Deauthenticate drops the flow and all provider artifacts.
func (s *Session) Deauthenticate() {
	s.Flow = nil
	s.TokenCache = ""
	s.IDToken = ""
	s.Account = nil
	s.IsAuthenticated = false
}

// TokenResult is what the identity provider hands back after a code exchange.
type TokenResult struct {
	IDToken    string
	Account    Account
	TokenCache string
	ExpiresAt  time.Time
}
