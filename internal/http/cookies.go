package httpx

import (
	"net/http"
	"strings"
	"time"
)

// DefaultSessionCookieName names the cookie that carries the session id.
const DefaultSessionCookieName = "portal_session"

// CookieConfig describes the portal session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	// Secure forces the Secure attribute. Otherwise it follows the request scheme.
	Secure bool
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

func (c CookieConfig) isSecure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// sameSite returns the SameSite mode for the cookie. The provider posts the
// authorization response cross-site, so Lax or Strict would drop the cookie on
// the return request. None is only accepted by browsers on Secure cookies;
// without Secure the attribute is omitted.
func sameSite(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteDefaultMode
}

// SessionID returns the session id carried by r, or "".
func (c CookieConfig) SessionID(r *http.Request) string {
	ck, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return ck.Value
}

// SetSession writes the session cookie with a rolling expiry of ttl.
func (c CookieConfig) SetSession(w http.ResponseWriter, r *http.Request, id string, ttl time.Duration) {
	secure := c.isSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    id,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite(secure),
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl).UTC(),
	})
}

// Clear expires the session cookie. It mirrors the attributes used when
// setting it so browsers match and drop the stored cookie.
func (c CookieConfig) Clear(w http.ResponseWriter, r *http.Request) {
	secure := c.isSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite(secure),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}
