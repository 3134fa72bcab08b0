package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spie-ics/meraki-captive-portal/config"
	"github.com/spie-ics/meraki-captive-portal/internal/adapters/devauth"
	"github.com/spie-ics/meraki-captive-portal/internal/adapters/oidc"
	"github.com/spie-ics/meraki-captive-portal/internal/observability/statsd"
	"github.com/spie-ics/meraki-captive-portal/internal/ports"
	"github.com/spie-ics/meraki-captive-portal/internal/service"
)

const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth     *service.AuthService
	Sessions ports.SessionStore
	OIDC     *oidc.Provider
	DevAuth  *devauth.Provider
	Metrics  *statsd.Client
	Redis    redis.UniversalClient
}

// Close releases connections held by the container.
func (s ServiceContainer) Close() error {
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis client: %w", err))
		}
	}
	if s.Metrics != nil {
		if err := s.Metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd client: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	// RedisClient overrides the client built from Config.Redis (optional).
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices wires the identity provider, session store, metrics and auth
// service. Background work started here stops when ctx is done.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps missing AppConfig")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var container ServiceContainer
	container.Metrics = buildMetrics(ctx, logger, cfg.Observability)

	redisClient := deps.RedisClient
	if redisClient == nil && cfg.Session.Store == config.SessionStoreRedis {
		client, err := ConnectRedis(ctx, RedisConnConfig{Redis: cfg.Redis, Logger: logger})
		if err != nil {
			return container, errors.Join(fmt.Errorf("connect redis: %w", err), container.Close())
		}
		redisClient = client
		container.Redis = client
	}

	providers, err := BuildIdentityProvider(cfg.Auth)
	if err != nil {
		return container, errors.Join(err, container.Close())
	}
	container.OIDC = providers.OIDC
	container.DevAuth = providers.Dev

	sessions, err := BuildSessionStore(ctx, SessionStoreConfig{
		Session:     cfg.Session,
		RedisClient: redisClient,
		Logger:      logger,
	})
	if err != nil {
		return container, errors.Join(err, container.Close())
	}
	container.Sessions = sessions

	var sink statsd.Sink
	if container.Metrics != nil {
		sink = container.Metrics
	}
	authSvc, err := BuildAuthService(AuthConfig{
		Auth:     cfg.Auth,
		Session:  cfg.Session,
		Provider: providers.Provider,
		Sessions: sessions,
		Metrics:  sink,
		Logger:   logger,
	})
	if err != nil {
		return container, errors.Join(fmt.Errorf("create auth service: %w", err), container.Close())
	}
	container.Auth = authSvc

	logger.InfoContext(ctx, "services initialized",
		"auth_mode", cfg.Auth.Mode,
		"session_store", cfg.Session.Store,
		"session_ttl", cfg.Session.TTL,
		"metrics_enabled", container.Metrics != nil,
	)
	return container, nil
}

// buildMetrics returns a statsd client, or nil when metrics are disabled or
// the client cannot be created.
func buildMetrics(ctx context.Context, logger *slog.Logger, cfg config.ObservabilityConfig) *statsd.Client {
	if !cfg.Metrics.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(ctx, statsd.Config{
		Enabled:    true,
		Address:    cfg.Metrics.StatsdAddress,
		Prefix:     cfg.Metrics.Prefix,
		GlobalTags: map[string]string{"service": "captive-portal"},
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// warmProvider fetches authority metadata ahead of the first sign-in.
// Failures are logged; the provider retries on demand.
func warmProvider(ctx context.Context, provider *oidc.Provider, logger *slog.Logger) {
	if provider == nil {
		return
	}
	if err := provider.Warm(ctx); err != nil {
		logger.WarnContext(ctx, "oidc metadata warm-up failed", "error", err, "issuer", provider.Issuer())
		return
	}
	logger.InfoContext(ctx, "oidc metadata loaded", "issuer", provider.Issuer())
}

// ServiceOrchestrationConfig contains configuration for running the portal.
type ServiceOrchestrationConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// RunServicesWithShutdown starts the portal and blocks until a shutdown
// signal, a server error, or ctx cancellation.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := NewServices(serviceCtx, &ServiceDeps{Config: cfg.Config, Logger: logger})
	if err != nil {
		return err
	}

	go warmProvider(serviceCtx, services.OIDC, logger)

	errCh := make(chan error, 1)
	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: services,
		Logger:   logger,
		ErrCh:    errCh,
	})
	if err != nil {
		return errors.Join(err, services.Close())
	}

	return waitForShutdown(shutdownConfig{
		ctx:        serviceCtx,
		cancel:     cancel,
		errCh:      errCh,
		httpServer: server,
		services:   services,
		logger:     logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx        context.Context
	cancel     context.CancelFunc
	errCh      <-chan error
	httpServer *http.Server
	services   ServiceContainer
	logger     *slog.Logger
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case <-cfg.ctx.Done():
		cfg.logger.Info("context cancelled, shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains the HTTP server then releases connections.
func gracefulStop(cfg shutdownConfig) error {
	var errs []error
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(cfg.ctx),
			Server:  cfg.httpServer,
			Timeout: shutdownWaitTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if err := cfg.services.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		cfg.logger.Info("all services stopped")
	}
	return errors.Join(errs...)
}
