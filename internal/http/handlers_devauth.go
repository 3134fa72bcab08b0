package httpx

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/spie-ics/meraki-captive-portal/internal/adapters/devauth"
	apperrors "github.com/spie-ics/meraki-captive-portal/internal/errors"
)

// DevAuthorizer is the local authorize endpoint used in mock auth mode.
type DevAuthorizer interface {
	Authorize(query url.Values) (devauth.FormPost, error)
}

// DevAuthHandlers emulates the provider's authorize endpoint with an
// auto-submitting form_post back to the return endpoint.
type DevAuthHandlers struct {
	Provider DevAuthorizer
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

// FormPostData is rendered by the form-post template.
type FormPostData struct {
	Action string
	Fields map[string]string
}

// Authorize handles GET /auth/dev/authorize.
func (h *DevAuthHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	form, err := h.Provider.Authorize(r.URL.Query())
	if err != nil {
		if h.Logger != nil {
			h.Logger.WarnContext(r.Context(), "dev authorize rejected", "error", err)
		}
		RenderError(ErrorOpts{
			W:        w,
			R:        r,
			Err:      apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid authorization request"),
			Renderer: h.Renderer.RenderError,
			IsDev:    true,
		})
		return
	}

	setNoStore(w)
	if err := h.Renderer.RenderFormPost(w, r, FormPostData{Action: form.Action, Fields: form.Fields}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
