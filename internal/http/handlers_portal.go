package httpx

import (
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/spie-ics/meraki-captive-portal/internal/errors"
)

// PortalPageData is the data rendered by the landing page.
type PortalPageData struct {
	Title           string
	SSID            string
	IsAuthenticated bool
	Username        string
	BaseGrantURL    string
	UserContinueURL string
	SignInURL       string
	SignOutURL      string
	IsDevelopment   bool
}

// PortalHandlers serves the splash landing page.
type PortalHandlers struct {
	Svc      AuthServiceInterface
	Cookies  CookieConfig
	Renderer *TemplateRenderer
	Title    string
	SSID     string
	IsDev    bool
	Logger   *slog.Logger
}

func (h *PortalHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Index renders the landing page.
// GET /?base_grant_url=<grant>&user_continue_url=<continue>.
func (h *PortalHandlers) Index(w http.ResponseWriter, r *http.Request) {
	cookieID := h.Cookies.SessionID(r)
	sess, err := h.Svc.LoadSession(r.Context(), cookieID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	// Only a live session is extended. Anonymous visitors get no cookie until
	// they start signing in.
	if cookieID != "" && sess.ID == cookieID {
		if err := h.Svc.TouchSession(r.Context(), sess); err != nil {
			h.logger().WarnContext(r.Context(), "session touch failed", "error", err)
		} else {
			h.Cookies.SetSession(w, r, sess.ID, h.Svc.SessionTTL())
		}
	}

	q := r.URL.Query()
	data := PortalPageData{
		Title:           orDefault(h.Title, DefaultPortalTitle),
		SSID:            orDefault(h.SSID, DefaultSSID),
		IsAuthenticated: sess.IsAuthenticated,
		Username:        sess.Username(),
		BaseGrantURL:    q.Get(ParamBaseGrantURL),
		UserContinueURL: q.Get(ParamUserContinueURL),
		SignInURL:       signInURL(q.Get(ParamBaseGrantURL), q.Get(ParamUserContinueURL)),
		SignOutURL:      PathSignOut,
		IsDevelopment:   h.IsDev,
	}

	setNoStore(w)
	if err := h.Renderer.RenderPage(w, r, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// NotFound renders the generic error page with a 404 status.
func (h *PortalHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	RenderError(ErrorOpts{
		W:        w,
		R:        r,
		Err:      apperrors.NotFound("page not found"),
		Renderer: h.Renderer.RenderError,
		IsDev:    h.IsDev,
		Title:    h.Title,
	})
}

func (h *PortalHandlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger().ErrorContext(r.Context(), "portal page failed", "error", err)
	RenderError(ErrorOpts{W: w, R: r, Err: err, Renderer: h.Renderer.RenderError, IsDev: h.IsDev, Title: h.Title})
}

// signInURL carries the splash parameters over to the sign-in endpoint.
func signInURL(baseGrantURL, continueURL string) string {
	q := url.Values{}
	if baseGrantURL != "" {
		q.Set(ParamBaseGrantURL, baseGrantURL)
	}
	if continueURL != "" {
		q.Set(ParamUserContinueURL, continueURL)
	}
	if len(q) == 0 {
		return PathSignIn
	}
	return PathSignIn + "?" + q.Encode()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
