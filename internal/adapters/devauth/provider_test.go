package devauth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	"github.com/spie-ics/meraki-captive-portal/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirect = "http://localhost:3000/auth/openid/return"

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	prov, err := NewProvider(Config{Username: "dev@example.com", Name: "Dev User", RedirectURL: testRedirect})
	require.NoError(t, err)
	return prov
}

func authorize(t *testing.T, prov *Provider, pkce domainauth.PKCECodes, nonce string) FormPost {
	t.Helper()
	raw, err := prov.AuthCodeURL(context.Background(), domainauth.AuthCodeURLRequest{
		State:               "state-1",
		Nonce:               nonce,
		RedirectURI:         testRedirect,
		ResponseMode:        domainauth.ResponseModeFormPost,
		CodeChallenge:       pkce.Challenge,
		CodeChallengeMethod: pkce.ChallengeMethod,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, AuthorizePath+"?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	form, err := prov.Authorize(u.Query())
	require.NoError(t, err)
	return form
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{RedirectURL: testRedirect})
	require.ErrorContains(t, err, "Username is required")

	_, err = NewProvider(Config{Username: "u"})
	require.ErrorContains(t, err, "RedirectURL is required")
}

func TestProvider_AuthorizeAndExchange(t *testing.T) {
	prov := newTestProvider(t)
	pkce, err := domainauth.GeneratePKCECodes()
	require.NoError(t, err)

	form := authorize(t, prov, pkce, "nonce-1")
	assert.Equal(t, testRedirect, form.Action)
	assert.Equal(t, "state-1", form.Fields["state"])
	require.NotEmpty(t, form.Fields["code"])

	res, err := prov.ExchangeCode(context.Background(), ports.ExchangeInput{
		Request: domainauth.AuthCodeRequest{Code: form.Fields["code"], CodeVerifier: pkce.Verifier, Nonce: "nonce-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", res.Account.Username)
	assert.Equal(t, "Dev User", res.Account.Name)
	assert.Equal(t, "dev-user.dev-tenant", res.Account.HomeAccountID)
	assert.Contains(t, res.TokenCache, "dev-user.dev-tenant")

	claims, err := prov.parseIDToken(res.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "dev-user", claims.Subject)
	assert.Equal(t, "nonce-1", claims.Nonce)
	assert.Equal(t, "dev@example.com", claims.PreferredUsername)
	assert.Equal(t, "dev-tenant", claims.TenantID)

	other := newTestProvider(t)
	_, err = other.parseIDToken(res.IDToken)
	assert.Error(t, err, "tokens are bound to the minting provider's key")
}

func TestProvider_CodeIsSingleUse(t *testing.T) {
	prov := newTestProvider(t)
	pkce, err := domainauth.GeneratePKCECodes()
	require.NoError(t, err)
	form := authorize(t, prov, pkce, "n")

	in := ports.ExchangeInput{Request: domainauth.AuthCodeRequest{Code: form.Fields["code"], CodeVerifier: pkce.Verifier, Nonce: "n"}}
	_, err = prov.ExchangeCode(context.Background(), in)
	require.NoError(t, err)
	_, err = prov.ExchangeCode(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnknownCode)
}

func TestProvider_ExchangeRejectsWrongVerifierOrNonce(t *testing.T) {
	prov := newTestProvider(t)
	pkce, err := domainauth.GeneratePKCECodes()
	require.NoError(t, err)

	form := authorize(t, prov, pkce, "n")
	_, err = prov.ExchangeCode(context.Background(), ports.ExchangeInput{
		Request: domainauth.AuthCodeRequest{Code: form.Fields["code"], CodeVerifier: "attacker-verifier", Nonce: "n"},
	})
	assert.ErrorIs(t, err, ErrVerifierMismatch)

	form = authorize(t, prov, pkce, "n")
	_, err = prov.ExchangeCode(context.Background(), ports.ExchangeInput{
		Request: domainauth.AuthCodeRequest{Code: form.Fields["code"], CodeVerifier: pkce.Verifier, Nonce: "other"},
	})
	assert.ErrorIs(t, err, ErrNonceMismatch)
}

func TestProvider_ExchangeReplacesUnreadableCache(t *testing.T) {
	prov := newTestProvider(t)
	pkce, err := domainauth.GeneratePKCECodes()
	require.NoError(t, err)
	form := authorize(t, prov, pkce, "n")

	res, err := prov.ExchangeCode(context.Background(), ports.ExchangeInput{
		Request:    domainauth.AuthCodeRequest{Code: form.Fields["code"], CodeVerifier: pkce.Verifier, Nonce: "n"},
		TokenCache: `{"stale.tenant":{"id_token":"old"},"broken":`,
	})
	require.NoError(t, err)
	assert.NotContains(t, res.TokenCache, "stale.tenant")
	assert.Contains(t, res.TokenCache, "dev-user.dev-tenant")
}

func TestProvider_CodeExpires(t *testing.T) {
	prov := newTestProvider(t)
	now := time.Now()
	prov.now = func() time.Time { return now }
	pkce, err := domainauth.GeneratePKCECodes()
	require.NoError(t, err)
	form := authorize(t, prov, pkce, "n")

	now = now.Add(codeTTL + time.Second)
	_, err = prov.ExchangeCode(context.Background(), ports.ExchangeInput{
		Request: domainauth.AuthCodeRequest{Code: form.Fields["code"], CodeVerifier: pkce.Verifier, Nonce: "n"},
	})
	assert.ErrorIs(t, err, ErrUnknownCode)
}

func TestProvider_AuthorizeRejectsForeignRedirect(t *testing.T) {
	prov := newTestProvider(t)
	q := url.Values{}
	q.Set("state", "s")
	q.Set("code_challenge", "c")
	q.Set("redirect_uri", "https://evil.example.com/steal")
	_, err := prov.Authorize(q)
	assert.ErrorIs(t, err, ErrRedirectMismatch)

	q.Set("redirect_uri", testRedirect)
	q.Set("code_challenge_method", "plain")
	_, err = prov.Authorize(q)
	assert.ErrorContains(t, err, "unsupported code_challenge_method")
}

func TestProvider_EndSessionURL(t *testing.T) {
	prov := newTestProvider(t)
	assert.Equal(t, "/", prov.EndSessionURL(""))
	assert.Equal(t, "/?post_logout_redirect_uri=http%3A%2F%2Flocalhost%3A3000", prov.EndSessionURL("http://localhost:3000"))
}
