package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":3000"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// SecureCookies forces the Secure attribute on the session cookie. When
	// false it follows the request scheme (TLS or X-Forwarded-Proto).
	SecureCookies bool `env:"SECURE_COOKIES" envDefault:"false"`

	// MaxFormBytes bounds the authorization response body.
	MaxFormBytes int64 `env:"HTTP_MAX_FORM_BYTES" envDefault:"65536"`
}

const (
	minFormBytes = 4 << 10
	maxFormBytes = 1 << 20
)

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":3000"
	}
	if h.MaxFormBytes < minFormBytes {
		h.MaxFormBytes = minFormBytes
	}
	if h.MaxFormBytes > maxFormBytes {
		h.MaxFormBytes = maxFormBytes
	}
}
