package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedirectValidator_IsValidRedirectDomain(t *testing.T) {
	v := NewRedirectValidator("network-auth.com")

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"exact domain", "https://network-auth.com/splash/grant", true},
		{"subdomain", "https://n143.network-auth.com/splash/grant?x=1", true},
		{"nested subdomain", "https://a.b.network-auth.com", true},
		{"uppercase host", "https://N143.Network-Auth.COM/grant", true},
		{"with port", "https://n1.network-auth.com:8443/grant", true},
		{"trailing dot", "https://n1.network-auth.com./grant", true},
		{"plain http", "http://network-auth.com", true},
		{"lookalike prefix", "https://evil-network-auth.com/grant", false},
		{"unrelated suffix", "https://network-auth.com.evil.com/grant", false},
		{"other domain", "https://evil.com/x", false},
		{"domain in path", "https://evil.com/network-auth.com", false},
		{"domain in query", "https://evil.com/?next=network-auth.com", false},
		{"domain in userinfo", "https://network-auth.com@evil.com/", false},
		{"relative path", "/splash/grant", false},
		{"empty", "", false},
		{"garbage", "://%%%", false},
		{"bare tld", "https://com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.IsValidRedirectDomain(tt.url))
		})
	}
}

func TestRedirectValidator_EmptyTrustedDomainRejectsAll(t *testing.T) {
	v := NewRedirectValidator("")
	assert.False(t, v.IsValidRedirectDomain("https://network-auth.com"))
	assert.False(t, v.IsValidRedirectDomain("https://example.com"))
}

func TestRedirectValidator_NormalisesTrustedDomain(t *testing.T) {
	v := NewRedirectValidator(" Network-Auth.com. ")
	assert.Equal(t, "network-auth.com", v.TrustedDomain())
	assert.True(t, v.IsValidRedirectDomain("https://n1.network-auth.com"))
}

func TestRedirectValidator_ValidateRedirectTarget(t *testing.T) {
	v := NewRedirectValidator("network-auth.com")

	assert.NoError(t, v.ValidateRedirectTarget("https://n1.network-auth.com/splash/grant?continue_url=https%3A%2F%2Fexample.org"))
	assert.ErrorIs(t, v.ValidateRedirectTarget("javascript://network-auth.com/%0Aalert(1)"), ErrRedirectNotAbsolute)
	assert.ErrorIs(t, v.ValidateRedirectTarget("ftp://network-auth.com/file"), ErrRedirectNotAbsolute)
	assert.ErrorIs(t, v.ValidateRedirectTarget("//network-auth.com/grant"), ErrRedirectNotAbsolute)
	assert.ErrorIs(t, v.ValidateRedirectTarget("https://evil.com/grant"), ErrRedirectDomain)
}
