package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spie-ics/meraki-captive-portal/config"
	"github.com/spie-ics/meraki-captive-portal/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if err = bootstrap.SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config: &cfg,
		Logger: logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting captive portal",
		"addr", cfg.HTTP.Addr,
		"auth_mode", cfg.Auth.Mode,
		"redirect_url", cfg.Auth.RedirectURL,
		"trusted_redirect_domain", cfg.Auth.TrustedRedirectDomain,
		"session_store", cfg.Session.Store,
		"dev", cfg.IsDev)
}
