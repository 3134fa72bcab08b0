package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/spie-ics/meraki-captive-portal/internal/errors"
)

// ErrorRenderer is a function that renders an error template with the given data.
// This allows the error renderer to work with different rendering strategies.
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, data any) error

// ErrorOpts contains all options needed to render an error response.
type ErrorOpts struct {
	// W is the HTTP response writer
	W http.ResponseWriter
	// R is the HTTP request
	R *http.Request
	// Err is the error that occurred
	Err error
	// Renderer renders the error template. When nil a plain-text body is written.
	Renderer ErrorRenderer
	// StatusCode overrides the status derived from Err (optional)
	StatusCode int
	// IsDev exposes the underlying error text on the page
	IsDev bool
	// Title is the page title shown above the message
	Title string
}

// ErrorPageData is the data handed to the error template.
type ErrorPageData struct {
	Title         string
	Status        int
	StatusText    string
	Message       string
	Code          string
	Detail        string
	RequestID     string
	IsDevelopment bool
}

// DetermineErrorStatus maps an error to the HTTP status the browser receives.
func DetermineErrorStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) && apperrors.GetCode(err) == "" {
		return http.StatusGatewayTimeout
	}
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeStateMismatch:
		return http.StatusForbidden
	case apperrors.ErrCodeUpstream:
		return http.StatusBadGateway
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RenderError writes a failure as the generic error page, or as JSON when the
// client asks for it. Only the public message is shown unless IsDev is set.
func RenderError(opts ErrorOpts) {
	status := opts.StatusCode
	if status == 0 {
		status = DetermineErrorStatus(opts.Err)
	}

	data := ErrorPageData{
		Title:         opts.Title,
		Status:        status,
		StatusText:    http.StatusText(status),
		Message:       processError(opts.Err),
		Code:          string(apperrors.GetCode(opts.Err)),
		RequestID:     RequestIDFromContext(opts.R.Context()),
		IsDevelopment: opts.IsDev,
	}
	if data.Title == "" {
		data.Title = DefaultPortalTitle
	}
	if data.Code == "" {
		data.Code = string(apperrors.ErrCodeInternal)
	}
	if opts.IsDev && opts.Err != nil {
		data.Detail = opts.Err.Error()
	}

	setNoStore(opts.W)

	if wantsJSON(opts.R) {
		body := map[string]any{"error": data.Code, "message": data.Message, "status": status}
		if data.Detail != "" {
			body["detail"] = data.Detail
		}
		if data.RequestID != "" {
			body["request_id"] = data.RequestID
		}
		WriteJSON(opts.W, status, body)
		return
	}

	if opts.Renderer == nil {
		http.Error(opts.W, data.Message, status)
		return
	}

	// The status line stays unwritten until the template succeeds.
	cw := newCaptureWriter(opts.W)
	if err := opts.Renderer(cw, opts.R, data); err != nil {
		http.Error(opts.W, data.Message, status)
		return
	}
	cw.status = status
	cw.flushTo(opts.W)
}

// processError returns the message shown to the browser for err.
func processError(err error) string {
	if err == nil {
		return "An unexpected error occurred."
	}
	if apperrors.GetCode(err) == "" {
		// Distinguish between timeout and cancellation for better UX
		if errors.Is(err, context.DeadlineExceeded) {
			return "Request timed out. Please try again."
		}
		if errors.Is(err, context.Canceled) {
			return "Request was canceled."
		}
	}
	return capitalize(apperrors.PublicMessage(err))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
