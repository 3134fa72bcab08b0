package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spie-ics/meraki-captive-portal/config"
	httpx "github.com/spie-ics/meraki-captive-portal/internal/http"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives the serve error if the server stops unexpectedly (optional).
	ErrCh chan<- error
}

// StartHTTPServer binds the listener and serves the portal in the background.
// The returned server's Addr is the bound address.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler, err := buildHTTPHandler(appCfg, cfg.Services, logger)
	if err != nil {
		return nil, err
	}

	return startServer(logger, handler, appCfg.HTTP.Addr, cfg.ErrCh)
}

func buildHTTPHandler(appCfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) (http.Handler, error) {
	if services.Auth == nil {
		return nil, errors.New("auth service is not configured")
	}
	routerServices := httpx.RouterServices{
		Auth: services.Auth,
		Cookies: httpx.CookieConfig{
			Name:   appCfg.Session.CookieName,
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.HTTP.SecureCookies,
		},
		Title:        appCfg.Portal.Title,
		SSID:         appCfg.Portal.SSID,
		MaxFormBytes: appCfg.HTTP.MaxFormBytes,
		IsDev:        appCfg.IsDev,
		Logger:       logger,
	}
	// A nil *devauth.Provider must not become a non-nil interface.
	if services.DevAuth != nil {
		routerServices.DevAuth = services.DevAuth
	}
	if checker, ok := services.Sessions.(httpx.HealthChecker); ok {
		routerServices.Health = checker
	}

	handler, err := httpx.NewRouter(routerServices)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	return handler, nil
}

func startServer(logger *slog.Logger, handler http.Handler, addr string, errCh chan<- error) (*http.Server, error) {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":3000"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", serveErr)
			if errCh != nil {
				errCh <- serveErr
			}
		}
	}()

	return server, nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	// Timeout bounds the drain; defaults to 10s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
