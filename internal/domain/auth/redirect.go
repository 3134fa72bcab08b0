package auth

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Redirect validation errors.
var (
	ErrRedirectNotAbsolute = errors.New("redirect target must be an absolute http(s) URL")
	ErrRedirectDomain      = errors.New("redirect target is not within the trusted domain")
)

// RedirectValidator decides whether a URL may be used as a post-login
// redirect target. Only the trusted domain and its subdomains are allowed.
type RedirectValidator struct {
	trustedDomain string
}

// NewRedirectValidator builds a validator for the given trusted domain.
// An empty or unparseable domain yields a validator that rejects everything.
func NewRedirectValidator(trustedDomain string) RedirectValidator {
	return RedirectValidator{trustedDomain: normalizeHost(trustedDomain)}
}

// TrustedDomain returns the normalised trusted domain.
func (v RedirectValidator) TrustedDomain() string { return v.trustedDomain }

// IsValidRedirectDomain reports whether rawURL's host is the trusted domain
// or a subdomain of it. Parse failures report false.
func (v RedirectValidator) IsValidRedirectDomain(rawURL string) bool {
	if v.trustedDomain == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return false
	}
	return host == v.trustedDomain || strings.HasSuffix(host, "."+v.trustedDomain)
}

// ValidateRedirectTarget applies the full check used right before a redirect:
// absolute http(s) URL whose host passes IsValidRedirectDomain.
func (v RedirectValidator) ValidateRedirectTarget(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrRedirectNotAbsolute
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrRedirectNotAbsolute
	}
	if !v.IsValidRedirectDomain(rawURL) {
		return ErrRedirectDomain
	}
	return nil
}

// normalizeHost lowercases, strips a trailing dot and converts to the ASCII
// (punycode) form. Hosts that fail IDNA conversion normalise to "".
func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return ""
	}
	return ascii
}
