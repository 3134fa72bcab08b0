package auth

// Package auth contains simple hand-written test doubles for the sign-in ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.SessionStore     = (*MemorySessionStore)(nil)
	_ ports.SessionStore     = (*FailingSessionStore)(nil)
)

// ErrInjected is returned by FailingSessionStore for operations set to fail.
var ErrInjected = errors.New("injected session store failure")

// FakeIdentityProvider simulates an IdP and records every call it receives.
type FakeIdentityProvider struct {
	AuthCodeURLFunc  func(ctx context.Context, req domainauth.AuthCodeURLRequest) (string, error)
	ExchangeCodeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.TokenResult, error)

	// AuthorizeURL is the base of URLs returned by AuthCodeURL.
	AuthorizeURL string
	// LogoutURL is the base of URLs returned by EndSessionURL.
	LogoutURL string
	// Account is returned by ExchangeCode when ExchangeCodeFunc is nil.
	Account domainauth.Account

	mu               sync.Mutex
	authCodeRequests []domainauth.AuthCodeURLRequest
	exchanges        []ports.ExchangeInput
}

// NewFakeIdentityProvider creates a FakeIdentityProvider with sensible defaults.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		AuthorizeURL: "https://idp.example.com/tenant/oauth2/v2.0/authorize",
		LogoutURL:    "https://idp.example.com/tenant/oauth2/v2.0/logout",
		Account: domainauth.Account{
			HomeAccountID:  "oid-1.tenant-1",
			Environment:    "idp.example.com",
			TenantID:       "tenant-1",
			Username:       "mock.user@example.com",
			Name:           "Mock User",
			LocalAccountID: "oid-1",
		},
	}
}

func (f *FakeIdentityProvider) AuthCodeURL(ctx context.Context, req domainauth.AuthCodeURLRequest) (string, error) {
	f.mu.Lock()
	f.authCodeRequests = append(f.authCodeRequests, req)
	f.mu.Unlock()
	if f.AuthCodeURLFunc != nil {
		return f.AuthCodeURLFunc(ctx, req)
	}

	q := url.Values{}
	q.Set("state", req.State)
	q.Set("nonce", req.Nonce)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", string(req.CodeChallengeMethod))
	q.Set("response_mode", req.ResponseMode)
	q.Set("redirect_uri", req.RedirectURI)
	return f.AuthorizeURL + "?" + q.Encode(), nil
}

func (f *FakeIdentityProvider) ExchangeCode(ctx context.Context, in ports.ExchangeInput) (domainauth.TokenResult, error) {
	f.mu.Lock()
	f.exchanges = append(f.exchanges, in)
	f.mu.Unlock()
	if f.ExchangeCodeFunc != nil {
		return f.ExchangeCodeFunc(ctx, in)
	}
	return domainauth.TokenResult{
		IDToken:    "header.payload.signature",
		Account:    f.Account,
		TokenCache: `{"accounts":{"` + f.Account.HomeAccountID + `":{}}}`,
		ExpiresAt:  time.Now().Add(time.Hour),
	}, nil
}

func (f *FakeIdentityProvider) EndSessionURL(postLogoutRedirectURI string) string {
	if postLogoutRedirectURI == "" {
		return f.LogoutURL
	}
	return f.LogoutURL + "?post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirectURI)
}

// AuthCodeRequests returns a copy of every request passed to AuthCodeURL.
func (f *FakeIdentityProvider) AuthCodeRequests() []domainauth.AuthCodeURLRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domainauth.AuthCodeURLRequest(nil), f.authCodeRequests...)
}

// Exchanges returns a copy of every input passed to ExchangeCode.
func (f *FakeIdentityProvider) Exchanges() []ports.ExchangeInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.ExchangeInput(nil), f.exchanges...)
}

// MemorySessionStore is an in-memory session store for unit tests. It does
// not enforce expiry.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len reports how many sessions are stored.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// FailingSessionStore wraps a store and fails the operations switched on.
type FailingSessionStore struct {
	Inner      ports.SessionStore
	FailSave   bool
	FailGet    bool
	FailDelete bool
	Err        error
}

// NewFailingSessionStore wraps a fresh MemorySessionStore.
func NewFailingSessionStore() *FailingSessionStore {
	return &FailingSessionStore{Inner: NewMemorySessionStore()}
}

func (f *FailingSessionStore) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

func (f *FailingSessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if f.FailSave {
		return f.err()
	}
	return f.Inner.Save(ctx, sess)
}

func (f *FailingSessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if f.FailGet {
		return domainauth.Session{}, f.err()
	}
	return f.Inner.Get(ctx, id)
}

func (f *FailingSessionStore) Delete(ctx context.Context, id string) error {
	if f.FailDelete {
		return f.err()
	}
	return f.Inner.Delete(ctx, id)
}
