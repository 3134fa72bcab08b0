package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/spie-ics/meraki-captive-portal/internal/domain/auth"
	apperrors "github.com/spie-ics/meraki-captive-portal/internal/errors"
	"github.com/spie-ics/meraki-captive-portal/internal/service"
)

// AuthServiceInterface defines the auth flow operations the handlers depend on.
type AuthServiceInterface interface {
	SessionTTL() time.Duration
	LoadSession(ctx context.Context, id string) (*domainauth.Session, error)
	TouchSession(ctx context.Context, sess *domainauth.Session) error
	BeginLogin(ctx context.Context, sess *domainauth.Session, in service.BeginLoginInput) (string, error)
	CompleteLogin(ctx context.Context, sess *domainauth.Session, in service.RedirectInput) (string, error)
	Logout(ctx context.Context, sess *domainauth.Session) (string, error)
}

// AuthHandlers provides HTTP handlers for the sign-in flow.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Cookies      CookieConfig
	Renderer     *TemplateRenderer
	MaxFormBytes int64
	IsDev        bool
	Title        string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// SignIn starts an authorization attempt.
// GET /auth/signin?base_grant_url=<grant>&user_continue_url=<continue>.
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.LoadSession(r.Context(), h.Cookies.SessionID(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	authURL, err := h.Svc.BeginLogin(r.Context(), sess, service.BeginLoginInput{
		BaseGrantURL:    q.Get(ParamBaseGrantURL),
		UserContinueURL: q.Get(ParamUserContinueURL),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.Cookies.SetSession(w, r, sess.ID, h.Svc.SessionTTL())
	setNoStore(w)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Return receives the provider's form_post authorization response.
// POST /auth/openid/return.
func (h *AuthHandlers) Return(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxFormBytes
	if limit <= 0 {
		limit = DefaultMaxFormBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed authorization response"))
		return
	}

	sess, err := h.Svc.LoadSession(r.Context(), h.Cookies.SessionID(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	pending := sess.Pending()
	target, err := h.Svc.CompleteLogin(r.Context(), sess, service.RedirectInput{
		State:            r.PostForm.Get("state"),
		Code:             r.PostForm.Get("code"),
		Error:            r.PostForm.Get("error"),
		ErrorDescription: r.PostForm.Get("error_description"),
	})
	// A failed pending flow is saved as anonymous; keep the cookie pointing at
	// it unless the store itself failed. Without a flow nothing was saved.
	if err == nil || (pending && !apperrors.IsSession(err)) {
		h.Cookies.SetSession(w, r, sess.ID, h.Svc.SessionTTL())
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	setNoStore(w)
	http.Redirect(w, r, target, http.StatusFound)
}

// SignOut destroys the session and hands the browser to the provider's
// end-session endpoint.
// GET /auth/signout.
func (h *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.LoadSession(r.Context(), h.Cookies.SessionID(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	endSession, err := h.Svc.Logout(r.Context(), sess)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.Cookies.Clear(w, r)
	setNoStore(w)
	http.Redirect(w, r, endSession, http.StatusFound)
}

func (h *AuthHandlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := DetermineErrorStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger().Log(r.Context(), level, "auth request failed",
		"path", r.URL.Path,
		"status", status,
		"error_code", string(apperrors.GetCode(err)),
		"error", err,
		"request_id", RequestIDFromContext(r.Context()),
	)

	opts := ErrorOpts{W: w, R: r, Err: err, StatusCode: status, IsDev: h.IsDev, Title: h.Title}
	if h.Renderer != nil {
		opts.Renderer = h.Renderer.RenderError
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		opts.StatusCode = http.StatusRequestEntityTooLarge
	}
	RenderError(opts)
}
