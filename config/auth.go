package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth signs users in against the configured OIDC authority.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses a local authorize endpoint (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// DefaultCloudInstance is the Microsoft identity platform's public cloud.
const DefaultCloudInstance = "https://login.microsoftonline.com"

// ReturnPath is appended to REDIRECT_URL to form the OIDC redirect URI.
const ReturnPath = "/auth/openid/return"

// OIDCConfig contains the app registration and authority settings.
type OIDCConfig struct {
	ClientID      string `env:"AZ_CLIENT_ID"`
	ClientSecret  string `env:"AZ_CLIENT_SECRET"`
	TenantID      string `env:"AZ_TENANT_ID"`
	CloudInstance string `env:"CLOUD_INSTANCE"       envDefault:"https://login.microsoftonline.com"`
	// Authority overrides CloudInstance/TenantID when set.
	Authority string `env:"OIDC_AUTHORITY"`
	// Scope is a space separated scope list; openid is always requested.
	Scope string `env:"OIDC_SCOPE"           envDefault:"openid profile offline_access"`
	// CloudDiscovery enables instance discovery next to the OIDC metadata fetch.
	CloudDiscovery bool          `env:"OIDC_CLOUD_DISCOVERY" envDefault:"true"`
	Timeout        time.Duration `env:"OIDC_TIMEOUT"         envDefault:"5s"`
	LogoutURL      string        `env:"OIDC_LOGOUT_URL"`
}

// AuthorityURL returns the directory URL, in the form <instance>/<tenant>.
func (o OIDCConfig) AuthorityURL() string {
	if o.Authority != "" {
		return strings.TrimRight(o.Authority, "/")
	}
	instance := strings.TrimRight(o.CloudInstance, "/")
	if instance == "" {
		instance = DefaultCloudInstance
	}
	if o.TenantID == "" {
		return ""
	}
	return instance + "/" + strings.Trim(o.TenantID, "/")
}

// Scopes splits Scope on whitespace.
func (o OIDCConfig) Scopes() []string {
	return strings.Fields(o.Scope)
}

// DevAuthConfig controls the identity returned in mock mode.
type DevAuthConfig struct {
	Username string `env:"USERNAME"  envDefault:"dev@example.com"`
	Name     string `env:"NAME"      envDefault:"Dev User"`
	TenantID string `env:"TENANT_ID" envDefault:"dev-tenant"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	OIDC    OIDCConfig
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// RedirectURL is the portal's public base URL. The provider posts back to
	// RedirectURL + /auth/openid/return and logout returns to RedirectURL.
	RedirectURL string `env:"REDIRECT_URL" envDefault:"http://localhost:3000"`

	// TrustedRedirectDomain bounds post-login redirects to this domain and its subdomains.
	TrustedRedirectDomain string `env:"TRUSTED_REDIRECT_DOMAIN" envDefault:"network-auth.com"`
}

// Sanitize trims values that are commonly pasted with stray whitespace.
func (a *AuthConfig) Sanitize() {
	a.OIDC.ClientID = strings.TrimSpace(a.OIDC.ClientID)
	a.OIDC.TenantID = strings.TrimSpace(a.OIDC.TenantID)
	a.OIDC.Authority = strings.TrimSpace(a.OIDC.Authority)
	a.RedirectURL = strings.TrimRight(strings.TrimSpace(a.RedirectURL), "/")
	a.TrustedRedirectDomain = strings.TrimSpace(a.TrustedRedirectDomain)
	if a.OIDC.Timeout <= 0 {
		a.OIDC.Timeout = 5 * time.Second
	}
	if a.Mode == "" {
		a.Mode = AuthModeOAuth
	}
}

// Validate checks the settings the selected mode needs.
func (a *AuthConfig) Validate() error {
	var errs []error
	u, err := url.Parse(a.RedirectURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, errors.New("REDIRECT_URL must be an absolute URL"))
	}
	if a.TrustedRedirectDomain == "" {
		errs = append(errs, errors.New("TRUSTED_REDIRECT_DOMAIN is required"))
	}
	if a.Mode == AuthModeOAuth {
		if a.OIDC.ClientID == "" {
			errs = append(errs, errors.New("AZ_CLIENT_ID is required"))
		}
		if a.OIDC.ClientSecret == "" {
			errs = append(errs, errors.New("AZ_CLIENT_SECRET is required"))
		}
		if a.OIDC.AuthorityURL() == "" {
			errs = append(errs, errors.New("AZ_TENANT_ID or OIDC_AUTHORITY is required"))
		}
	}
	return errors.Join(errs...)
}

// RedirectURI is where the provider posts the authorization response.
func (a *AuthConfig) RedirectURI() string {
	return a.RedirectURL + ReturnPath
}

// PostLogoutRedirectURI is where the provider sends the browser after sign-out.
func (a *AuthConfig) PostLogoutRedirectURI() string {
	return a.RedirectURL + "/"
}
