package ports

// Package ports defines interfaces (hexagonal ports) for the sign-in flow.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
)

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Request domainauth.AuthCodeRequest
	// TokenCache is the serialized cache carried over from the session, if any.
	TokenCache string
}

// IdentityProvider builds authorization URLs and redeems authorization codes
// against the upstream identity provider.
type IdentityProvider interface {
	// AuthCodeURL returns the URL the browser is sent to for sign-in.
	AuthCodeURL(ctx context.Context, req domainauth.AuthCodeURLRequest) (string, error)

	// ExchangeCode redeems the code and returns the ID token, account and the
	// updated serialized token cache.
	ExchangeCode(ctx context.Context, in ExchangeInput) (domainauth.TokenResult, error)

	// EndSessionURL returns the provider's sign-out URL. postLogoutRedirectURI
	// is appended when non-empty.
	EndSessionURL(postLogoutRedirectURI string) string
}

// SessionStore persists and retrieves browser sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}
