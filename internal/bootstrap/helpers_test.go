package bootstrap

import (
	"io"
	"log/slog"
	"time"

	"github.com/spie-ics/meraki-captive-portal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockAppConfig returns a config that runs without network dependencies.
func mockAppConfig() *config.AppConfig {
	return &config.AppConfig{
		LogLevel: "info",
		Auth: config.AuthConfig{
			Mode: config.AuthModeMock,
			OIDC: config.OIDCConfig{Scope: "openid profile offline_access"},
			DevAuth: config.DevAuthConfig{
				Username: "dev@example.com",
				Name:     "Dev User",
				TenantID: "dev-tenant",
			},
			RedirectURL:           "http://localhost:3000",
			TrustedRedirectDomain: "network-auth.com",
		},
		HTTP: config.HTTPConfig{
			Addr:         "127.0.0.1:0",
			MaxFormBytes: 64 << 10,
		},
		Session: config.SessionConfig{
			Store:         config.SessionStoreMemory,
			TTL:           time.Minute,
			CookieName:    "portal_session",
			KeyPrefix:     "portal:session:",
			SweepInterval: time.Second,
		},
		Portal: config.PortalConfig{Title: "Guest WiFi", SSID: "Guest"},
	}
}
