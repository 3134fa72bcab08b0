package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	portal "github.com/spie-ics/meraki-captive-portal"
	"github.com/spie-ics/meraki-captive-portal/internal/adapters/devauth"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth AuthServiceInterface
	// DevAuth serves the local authorize endpoint; nil outside mock auth mode.
	DevAuth DevAuthorizer
	// Health is pinged by /healthz (optional).
	Health       HealthChecker
	Cookies      CookieConfig
	Title        string
	SSID         string
	MaxFormBytes int64
	IsDev        bool // Development mode: templates and assets from disk, error detail shown
	// TemplateFS and StaticFS override the default asset sources (optional).
	TemplateFS fs.FS
	StaticFS   fs.FS
	Logger     *slog.Logger
}

// NewRouter creates and configures the portal's HTTP handler.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Auth == nil {
		return nil, errors.New("auth service is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	templateFS, err := resolveTemplateFS(services)
	if err != nil {
		return nil, err
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create template renderer: %w", err)
	}
	staticFS, err := resolveStaticFS(services)
	if err != nil {
		return nil, err
	}

	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		Cookies:      services.Cookies,
		Renderer:     tr,
		MaxFormBytes: services.MaxFormBytes,
		IsDev:        services.IsDev,
		Title:        services.Title,
		Logger:       logger,
	}
	portalHandlers := &PortalHandlers{
		Svc:      services.Auth,
		Cookies:  services.Cookies,
		Renderer: tr,
		Title:    services.Title,
		SSID:     services.SSID,
		IsDev:    services.IsDev,
		Logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", portalHandlers.Index)
	health := &HealthHandlers{Sessions: services.Health, Logger: logger}
	mux.HandleFunc("GET "+PathHealth, health.Health)
	mux.HandleFunc("HEAD "+PathHealth, health.Health)
	mux.Handle("GET "+PathStatic, staticWithCacheHeaders(
		http.StripPrefix(PathStatic, http.FileServer(http.FS(staticFS))),
		services.IsDev,
	))
	registerAuthRoutes(mux, authHandlers)
	if services.DevAuth != nil {
		dev := &DevAuthHandlers{Provider: services.DevAuth, Renderer: tr, Logger: logger}
		mux.HandleFunc("GET "+devauth.AuthorizePath, dev.Authorize)
	}

	handler := &notFoundHandler{mux: mux, portal: portalHandlers}
	return Chain(handler,
		RequestID(),
		Logging(logger),
		Recover(logger),
		SecurityHeaders(),
	), nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET "+PathSignIn, h.SignIn)
	mux.HandleFunc("POST "+PathReturn, h.Return)
	mux.HandleFunc("GET "+PathSignOut, h.SignOut)
}

// resolveTemplateFS picks the template source.
// Dev mode reads from disk so template edits need no rebuild; production
// serves the embedded copy.
func resolveTemplateFS(services RouterServices) (fs.FS, error) {
	if services.TemplateFS != nil {
		return services.TemplateFS, nil
	}
	if services.IsDev {
		return os.DirFS(TemplatePathFromRoot), nil
	}
	sub, err := fs.Sub(portal.TemplateFS, TemplatePathFromRoot)
	if err != nil {
		return nil, fmt.Errorf("templates sub-filesystem: %w", err)
	}
	return sub, nil
}

func resolveStaticFS(services RouterServices) (fs.FS, error) {
	if services.StaticFS != nil {
		return services.StaticFS, nil
	}
	if services.IsDev {
		return os.DirFS(StaticPathFromRoot), nil
	}
	sub, err := fs.Sub(portal.StaticFS, StaticPathFromRoot)
	if err != nil {
		return nil, fmt.Errorf("static sub-filesystem: %w", err)
	}
	return sub, nil
}

// staticWithCacheHeaders wraps a static file handler to add cache headers.
// Embedded assets only change with a new build; disk assets in dev mode are
// never cached.
func staticWithCacheHeaders(handler http.Handler, isDev bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isDev {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		handler.ServeHTTP(w, r)
	})
}

// notFoundHandler wraps a ServeMux and provides custom 404 handling.
type notFoundHandler struct {
	mux    *http.ServeMux
	portal *PortalHandlers
}

// ServeHTTP implements http.Handler and provides custom 404 handling.
func (h *notFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only requests with no registered route are buffered.
	if _, pattern := h.mux.Handler(r); pattern != "" {
		h.mux.ServeHTTP(w, r)
		return
	}

	cw := newCaptureWriter(w)
	h.mux.ServeHTTP(cw, r)
	if cw.status == http.StatusNotFound && !strings.HasPrefix(r.URL.Path, PathStatic) {
		h.portal.NotFound(w, r)
		return
	}
	cw.flushTo(w)
}

// captureWriter buffers headers, status and body so we can decide post-dispatch.
type captureWriter struct {
	rw     http.ResponseWriter
	header http.Header
	status int
	buf    bytes.Buffer
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{rw: w, header: make(http.Header), status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header         { return c.header }
func (c *captureWriter) WriteHeader(code int)        { c.status = code }
func (c *captureWriter) Write(b []byte) (int, error) { return c.buf.Write(b) }

func (c *captureWriter) flushTo(w http.ResponseWriter) {
	for k, vs := range c.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	if _, err := w.Write(c.buf.Bytes()); err != nil {
		return
	}
}
