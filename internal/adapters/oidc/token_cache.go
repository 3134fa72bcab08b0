package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"golang.org/x/oauth2"
)

// tokenCache is the serialized per-session token cache, keyed by home account id.
type tokenCache struct {
	Accounts map[string]cacheEntry `json:"accounts"`
}

type cacheEntry struct {
	Account      domainauth.Account `json:"account"`
	IDToken      string             `json:"id_token"`
	AccessToken  string             `json:"access_token,omitempty"`
	RefreshToken string             `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time          `json:"expires_at,omitzero"`
}

// decodeTokenCache parses raw. Empty input yields an empty cache. Unreadable
// input also yields an empty cache, together with the decode error.
func decodeTokenCache(raw string) (*tokenCache, error) {
	empty := &tokenCache{Accounts: make(map[string]cacheEntry)}
	if raw == "" {
		return empty, nil
	}
	c := &tokenCache{}
	if err := json.Unmarshal([]byte(raw), c); err != nil {
		return empty, fmt.Errorf("decode token cache: %w", err)
	}
	if c.Accounts == nil {
		c.Accounts = make(map[string]cacheEntry)
	}
	return c, nil
}

func (c *tokenCache) put(account domainauth.Account, idToken string, tok *oauth2.Token) {
	entry := cacheEntry{Account: account, IDToken: idToken}
	if tok != nil {
		entry.AccessToken = tok.AccessToken
		entry.RefreshToken = tok.RefreshToken
		entry.ExpiresAt = tok.Expiry
	}
	c.Accounts[account.HomeAccountID] = entry
}

func (c *tokenCache) encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal token cache: %w", err)
	}
	return string(b), nil
}
